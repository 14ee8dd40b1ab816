package main

import (
	"warfront.gg/internal/persistence/indexdb"
	persistlog "warfront.gg/internal/persistence/log"
	"warfront.gg/internal/protocol"
	"warfront.gg/internal/sim/engine"
	"warfront.gg/internal/sim/hub"
)

// multiEventSink fans every territorial event out to the JSONL write-ahead
// log and (optionally) the sqlite read-model. The JSONL append is the
// durability guarantee; the index write is best-effort.
type multiEventSink struct {
	log *persistlog.EventLog
	idx *indexdb.SQLiteIndex
}

func (m multiEventSink) AppendEvent(ev engine.TerritorialEvent) error {
	err := m.log.AppendEvent(ev)
	if m.idx != nil {
		m.idx.RecordEvent(ev)
	}
	return err
}

// multiNotifier fans ownership-change notices out to the webhook worker and
// the index's ownership_changes table.
type multiNotifier struct {
	webhook hub.Notifier
	idx     *indexdb.SQLiteIndex
}

func (m multiNotifier) NotifyOwnership(n protocol.OwnershipNotice) {
	if m.webhook != nil {
		m.webhook.NotifyOwnership(n)
	}
	if m.idx != nil {
		m.idx.RecordOwnershipChange(n.Tick, n.UnitID, n.OldHolder, n.NewHolder)
	}
}

type multiAuditLogger struct {
	a hub.AuditLogger
	b *indexdb.SQLiteIndex
}

func (m multiAuditLogger) WriteAudit(entry hub.AuditEntry) error {
	if m.a != nil {
		_ = m.a.WriteAudit(entry)
	}
	if m.b != nil {
		_ = m.b.WriteAudit(entry)
	}
	return nil
}
