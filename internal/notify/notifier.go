// Package notify posts ownership-change notices to an external endpoint
// (the asset pipeline). Delivery is fire-and-forget: the simulation never
// blocks on it and drops notices when the queue saturates.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"warfront.gg/internal/protocol"
)

type Stats struct {
	QueueDepth    int
	QueueCapacity int
	SentTotal     uint64
	FailTotal     uint64
	DroppedTotal  uint64
}

type Notifier struct {
	url    string
	client *http.Client
	logger *log.Logger

	jobs chan protocol.OwnershipNotice
	wg   sync.WaitGroup
	once sync.Once

	sentTotal    atomic.Uint64
	failTotal    atomic.Uint64
	droppedTotal atomic.Uint64
}

func New(url string, queueCapacity int, logger *log.Logger) *Notifier {
	if queueCapacity <= 0 {
		queueCapacity = 256
	}
	n := &Notifier{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
		logger: logger,
		jobs:   make(chan protocol.OwnershipNotice, queueCapacity),
	}
	n.wg.Add(1)
	go n.worker()
	return n
}

// NotifyOwnership enqueues a notice without blocking. Saturation drops the
// notice; the tick loop is never stalled by a slow consumer.
func (n *Notifier) NotifyOwnership(notice protocol.OwnershipNotice) {
	if n == nil {
		return
	}
	select {
	case n.jobs <- notice:
	default:
		dropped := n.droppedTotal.Add(1)
		if n.logger != nil && dropped%100 == 1 {
			n.logger.Printf("notify drop unit=%s reason=queue_saturated dropped_total=%d", notice.UnitID, dropped)
		}
	}
}

func (n *Notifier) worker() {
	defer n.wg.Done()
	for notice := range n.jobs {
		n.postOne(notice)
	}
}

func (n *Notifier) postOne(notice protocol.OwnershipNotice) {
	body, err := json.Marshal(notice)
	if err != nil {
		n.failTotal.Add(1)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		n.failTotal.Add(1)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		n.failTotal.Add(1)
		if n.logger != nil {
			n.logger.Printf("notify post failed unit=%s err=%v", notice.UnitID, err)
		}
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		n.failTotal.Add(1)
		if n.logger != nil {
			n.logger.Printf("notify post rejected unit=%s status=%d", notice.UnitID, resp.StatusCode)
		}
		return
	}
	n.sentTotal.Add(1)
}

func (n *Notifier) Stats() Stats {
	if n == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:    len(n.jobs),
		QueueCapacity: cap(n.jobs),
		SentTotal:     n.sentTotal.Load(),
		FailTotal:     n.failTotal.Load(),
		DroppedTotal:  n.droppedTotal.Load(),
	}
}

// Close drains the queue and stops the worker. Safe to call more than once.
func (n *Notifier) Close() {
	if n == nil {
		return
	}
	n.once.Do(func() {
		close(n.jobs)
		n.wg.Wait()
	})
}
