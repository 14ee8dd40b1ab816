package main

import (
	"fmt"
	"net/http"

	"warfront.gg/internal/notify"
	"warfront.gg/internal/persistence/indexdb"
	"warfront.gg/internal/sim/hub"
)

// writeMetrics emits the minimal Prometheus exposition format.
func writeMetrics(rw http.ResponseWriter, h *hub.Hub, notifier *notify.Notifier, idx *indexdb.SQLiteIndex) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

	m := h.Metrics()
	tick := h.CurrentTick()
	if m.Tick != 0 {
		tick = m.Tick
	}

	fmt.Fprintf(rw, "# HELP warfront_tick Current simulation tick.\n")
	fmt.Fprintf(rw, "# TYPE warfront_tick gauge\n")
	fmt.Fprintf(rw, "warfront_tick %d\n", tick)

	fmt.Fprintf(rw, "# HELP warfront_sessions Current number of subscribed sessions.\n")
	fmt.Fprintf(rw, "# TYPE warfront_sessions gauge\n")
	fmt.Fprintf(rw, "warfront_sessions %d\n", m.Sessions)

	fmt.Fprintf(rw, "# HELP warfront_sieges Active siege count.\n")
	fmt.Fprintf(rw, "# TYPE warfront_sieges gauge\n")
	fmt.Fprintf(rw, "warfront_sieges %d\n", m.Sieges)

	fmt.Fprintf(rw, "# HELP warfront_event_seq Last committed event sequence number.\n")
	fmt.Fprintf(rw, "# TYPE warfront_event_seq counter\n")
	fmt.Fprintf(rw, "warfront_event_seq %d\n", m.EventSeq)

	fmt.Fprintf(rw, "# HELP warfront_kicked_total Sessions dropped for outbound queue overflow.\n")
	fmt.Fprintf(rw, "# TYPE warfront_kicked_total counter\n")
	fmt.Fprintf(rw, "warfront_kicked_total %d\n", m.Kicked)

	fmt.Fprintf(rw, "# HELP warfront_queue_depth Channel backlog depth.\n")
	fmt.Fprintf(rw, "# TYPE warfront_queue_depth gauge\n")
	fmt.Fprintf(rw, "warfront_queue_depth{queue=%q} %d\n", "submit", m.QueueDepths.Submit)
	fmt.Fprintf(rw, "warfront_queue_depth{queue=%q} %d\n", "join", m.QueueDepths.Join)
	fmt.Fprintf(rw, "warfront_queue_depth{queue=%q} %d\n", "leave", m.QueueDepths.Leave)

	fmt.Fprintf(rw, "# HELP warfront_step_ms Last tick step duration in milliseconds.\n")
	fmt.Fprintf(rw, "# TYPE warfront_step_ms gauge\n")
	fmt.Fprintf(rw, "warfront_step_ms %.3f\n", m.StepMS)

	if notifier != nil {
		s := notifier.Stats()
		fmt.Fprintf(rw, "# HELP warfront_notify_queue_depth Ownership webhook queue depth.\n")
		fmt.Fprintf(rw, "# TYPE warfront_notify_queue_depth gauge\n")
		fmt.Fprintf(rw, "warfront_notify_queue_depth %d\n", s.QueueDepth)

		fmt.Fprintf(rw, "# HELP warfront_notify_sent_total Ownership webhook posts delivered.\n")
		fmt.Fprintf(rw, "# TYPE warfront_notify_sent_total counter\n")
		fmt.Fprintf(rw, "warfront_notify_sent_total %d\n", s.SentTotal)

		fmt.Fprintf(rw, "# HELP warfront_notify_fail_total Ownership webhook posts that failed.\n")
		fmt.Fprintf(rw, "# TYPE warfront_notify_fail_total counter\n")
		fmt.Fprintf(rw, "warfront_notify_fail_total %d\n", s.FailTotal)

		fmt.Fprintf(rw, "# HELP warfront_notify_dropped_total Ownership webhook posts dropped at enqueue.\n")
		fmt.Fprintf(rw, "# TYPE warfront_notify_dropped_total counter\n")
		fmt.Fprintf(rw, "warfront_notify_dropped_total %d\n", s.DroppedTotal)
	}

	if idx != nil {
		fmt.Fprintf(rw, "# HELP warfront_index_dropped_total Index writes dropped because the writer fell behind.\n")
		fmt.Fprintf(rw, "# TYPE warfront_index_dropped_total counter\n")
		fmt.Fprintf(rw, "warfront_index_dropped_total %d\n", idx.Dropped())
	}
}
