package hub

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	snapshotpkg "warfront.gg/internal/persistence/snapshot"
	"warfront.gg/internal/protocol"
	"warfront.gg/internal/sim/engine"
	"warfront.gg/internal/sim/siege"
	"warfront.gg/internal/sim/territory"
)

// Hub is the single authoritative synchronization loop. All territorial and
// siege state is mutated only from the loop goroutine; transports talk to it
// through channels. Submissions queue until the tick boundary and are
// applied in arrival order, so all mutations to one unit are totally
// ordered.
type Hub struct {
	cfg    Config
	store  *territory.Store
	engine *engine.Engine
	logger *log.Logger

	tick    atomic.Uint64
	metrics atomic.Value
	kicked  uint64

	sessions     map[string]*session
	siegesByUnit map[string]*siege.Instance
	siegesByID   map[string]*siege.Instance
	nextSiegeNum uint64
	siegeOrder   []string // instance ids in creation order, for deterministic ticking

	mapParams protocol.MapParams

	submit    chan SubmitEnvelope
	join      chan JoinRequest
	subscribe chan SubscribeRequest
	leave     chan string
	snapReqs  chan snapReq
	stop      chan struct{}

	snapshotSink chan<- snapshotpkg.SnapshotV1
	auditLogger  AuditLogger
	notifier     Notifier
}

func New(store *territory.Store, eng *engine.Engine, cfg Config, logger *log.Logger) *Hub {
	cfg.applyDefaults()
	h := &Hub{
		cfg:          cfg,
		store:        store,
		engine:       eng,
		logger:       logger,
		sessions:     make(map[string]*session),
		siegesByUnit: make(map[string]*siege.Instance),
		siegesByID:   make(map[string]*siege.Instance),
		submit:       make(chan SubmitEnvelope, 1024),
		join:         make(chan JoinRequest, 16),
		subscribe:    make(chan SubscribeRequest, 64),
		leave:        make(chan string, 64),
		snapReqs:     make(chan snapReq, 4),
		stop:         make(chan struct{}),
	}
	for _, id := range store.UnitIDs() {
		u, err := store.Unit(id)
		if err != nil {
			continue
		}
		switch u.Kind {
		case territory.KindRegion:
			h.mapParams.Regions++
		case territory.KindDistrict:
			h.mapParams.Districts++
		case territory.KindControlPoint:
			h.mapParams.ControlPoints++
		}
	}
	h.mapParams.TickRateHz = cfg.TickRateHz
	return h
}

func (h *Hub) Submit() chan<- SubmitEnvelope      { return h.submit }
func (h *Hub) Join() chan<- JoinRequest           { return h.join }
func (h *Hub) Subscribe() chan<- SubscribeRequest { return h.subscribe }
func (h *Hub) Leave() chan<- string               { return h.leave }

func (h *Hub) CurrentTick() uint64 { return h.tick.Load() }

func (h *Hub) Metrics() Metrics {
	if m, ok := h.metrics.Load().(Metrics); ok {
		return m
	}
	return Metrics{}
}

// SetSnapshotSink installs the channel interval snapshots are pushed to.
// Snapshot writing happens off-thread; a backed-up sink drops the snapshot
// rather than stalling the tick.
func (h *Hub) SetSnapshotSink(ch chan<- snapshotpkg.SnapshotV1) { h.snapshotSink = ch }

func (h *Hub) SetAuditLogger(l AuditLogger) { h.auditLogger = l }
func (h *Hub) SetNotifier(n Notifier)       { h.notifier = n }

// RequestSnapshot asks the loop for an immediate snapshot of current state.
// Used for graceful shutdown and the admin endpoint.
func (h *Hub) RequestSnapshot(ctx context.Context) (snapshotpkg.SnapshotV1, error) {
	req := snapReq{Resp: make(chan snapshotpkg.SnapshotV1, 1)}
	select {
	case h.snapReqs <- req:
	case <-ctx.Done():
		return snapshotpkg.SnapshotV1{}, ctx.Err()
	}
	select {
	case snap := <-req.Resp:
		return snap, nil
	case <-ctx.Done():
		return snapshotpkg.SnapshotV1{}, ctx.Err()
	}
}

func (h *Hub) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(h.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingSubmits []SubmitEnvelope
	var pendingLeaves []string

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.stop:
			return nil
		case req := <-h.join:
			h.handleJoin(req)
		case req := <-h.subscribe:
			h.handleSubscribe(req)
		case id := <-h.leave:
			pendingLeaves = append(pendingLeaves, id)
		case req := <-h.snapReqs:
			req.Resp <- h.ExportSnapshot(h.tick.Load())
		case env := <-h.submit:
			pendingSubmits = append(pendingSubmits, env)
		case <-ticker.C:
			// A slow step makes the ticker drop ticks instead of
			// queueing them, so steps never overlap or backlog.
			h.step(pendingLeaves, pendingSubmits)
			pendingLeaves = pendingLeaves[:0]
			pendingSubmits = pendingSubmits[:0]
		}
	}
}

func (h *Hub) Stop() { close(h.stop) }

// StepOnce advances the hub by a single tick with the same ordering
// semantics as Run. Intended for deterministic tests and replays.
func (h *Hub) StepOnce(leaves []string, submits []SubmitEnvelope) (tick uint64, digest string) {
	tick = h.tick.Load()
	h.step(leaves, submits)
	return tick, h.stateDigest()
}

func (h *Hub) handleJoin(req JoinRequest) {
	resp := JoinResponse{}
	if req.FactionID == "" || !h.store.HasFaction(req.FactionID) {
		resp.Code = protocol.ErrUnknownFaction
		req.Resp <- resp
		return
	}
	if len(h.sessions) >= h.cfg.MaxSubscribers {
		// Explicit capacity rejection: the service degrades predictably
		// instead of resetting connections under load.
		resp.Code = protocol.ErrCapacity
		req.Resp <- resp
		return
	}

	kind := req.Kind
	if kind != KindAgent {
		kind = KindPlayer
	}
	s := &session{
		ID:        "C_" + uuid.NewString()[:8],
		Name:      req.ClientName,
		FactionID: req.FactionID,
		Kind:      kind,
		Out:       req.Out,
		Kick:      make(chan struct{}),
		Filter:    h.normalizeFilter(req.Filter),
	}
	h.sessions[s.ID] = s

	resp.SessionID = s.ID
	resp.Kick = s.Kick
	resp.Welcome = protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       s.ID,
		FactionID:       s.FactionID,
		Tick:            h.tick.Load(),
		MapParams:       h.mapParams,
	}
	req.Resp <- resp
}

func (h *Hub) handleSubscribe(req SubscribeRequest) {
	s := h.sessions[req.SessionID]
	if s == nil {
		return
	}
	s.Filter = h.normalizeFilter(req.Filter)
}

// normalizeFilter keeps known unit ids only; an empty result matches all.
func (h *Hub) normalizeFilter(ids []string) map[string]struct{} {
	if len(ids) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, err := h.store.Unit(id); err == nil {
			out[id] = struct{}{}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (h *Hub) dropSession(s *session, reason string) {
	if _, ok := h.sessions[s.ID]; !ok {
		return
	}
	delete(h.sessions, s.ID)
	close(s.Kick)
	h.kicked++
	if h.logger != nil {
		h.logger.Printf("session %s dropped: %s", s.ID, reason)
	}
}

func (h *Hub) newSiegeID() string {
	h.nextSiegeNum++
	return fmt.Sprintf("S%06d", h.nextSiegeNum)
}

func (h *Hub) audit(entry AuditEntry) {
	if h.auditLogger == nil {
		return
	}
	_ = h.auditLogger.WriteAudit(entry)
}
