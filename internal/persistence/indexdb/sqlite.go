// Package indexdb maintains a queryable SQLite index of territorial events,
// submitted actions and snapshots. It is a secondary store: the JSONL event
// log is the source of truth, and the index drops writes rather than stall
// the simulation.
package indexdb

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"warfront.gg/internal/persistence/snapshot"
	"warfront.gg/internal/sim/engine"
	"warfront.gg/internal/sim/hub"
	"warfront.gg/internal/sim/tuning"
)

type SQLiteIndex struct {
	db *sqlx.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed       atomic.Bool
	droppedTotal atomic.Uint64
}

type reqKind int

const (
	reqEvent reqKind = iota + 1
	reqAudit
	reqSnapshot
	reqOwnership
	reqPrune
)

type req struct {
	kind reqKind

	event     engine.TerritorialEvent
	audit     hub.AuditEntry
	snapshot  snapshotRow
	ownership ownershipRow
	prune     time.Duration
}

type snapshotRow struct {
	Tick       uint64
	Path       string
	EventSeq   uint64
	Influence  int
	Sieges     int
	MapDigest  string
	RecordedAt string
}

type ownershipRow struct {
	Tick      uint64
	UnitID    string
	OldHolder string
	NewHolder string
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sqlx.Open("sqlite", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// High buffer: contested ticks burst many events per tick.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sqlx.DB) error {
	// WAL is much faster for append-style workloads. NORMAL is a decent
	// durability/perf tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sqlx.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			seq INTEGER PRIMARY KEY,
			tick INTEGER NOT NULL,
			unit_id TEXT NOT NULL,
			faction_id TEXT NOT NULL,
			delta REAL NOT NULL,
			value REAL NOT NULL,
			cause TEXT NOT NULL,
			actor TEXT,
			time_unix_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_unit_tick ON events(unit_id, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_events_cause_tick ON events(cause, tick);`,
		`CREATE TABLE IF NOT EXISTS audits (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			session_id TEXT NOT NULL,
			action_id TEXT,
			kind TEXT NOT NULL,
			unit_id TEXT,
			siege_id TEXT,
			code TEXT,
			message TEXT,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_session_tick ON audits(session_id, tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			event_seq INTEGER NOT NULL,
			influence_rows INTEGER NOT NULL,
			sieges INTEGER NOT NULL,
			map_digest TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ownership_changes (
			tick INTEGER NOT NULL,
			unit_id TEXT NOT NULL,
			old_holder TEXT,
			new_holder TEXT,
			PRIMARY KEY (tick, unit_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_ownership_unit ON ownership_changes(unit_id, tick);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Dropped() uint64 { return s.droppedTotal.Load() }

func (s *SQLiteIndex) enqueue(r req) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		// Drop if the indexer falls behind; the JSONL event log remains
		// the source of truth.
		s.droppedTotal.Add(1)
	}
}

func (s *SQLiteIndex) RecordEvent(ev engine.TerritorialEvent) {
	s.enqueue(req{kind: reqEvent, event: ev})
}

func (s *SQLiteIndex) WriteAudit(entry hub.AuditEntry) error {
	s.enqueue(req{kind: reqAudit, audit: entry})
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	s.enqueue(req{kind: reqSnapshot, snapshot: snapshotRow{
		Tick:       snap.Header.Tick,
		Path:       path,
		EventSeq:   snap.EventSeq,
		Influence:  len(snap.Influence),
		Sieges:     len(snap.Sieges),
		MapDigest:  snap.MapDigest,
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}})
}

func (s *SQLiteIndex) RecordOwnershipChange(tick uint64, unitID, oldHolder, newHolder string) {
	s.enqueue(req{kind: reqOwnership, ownership: ownershipRow{
		Tick:      tick,
		UnitID:    unitID,
		OldHolder: oldHolder,
		NewHolder: newHolder,
	}})
}

// Prune deletes indexed events and audits older than maxAge. Snapshot rows
// whose files have been retired are left to the snapshot retention sweep.
func (s *SQLiteIndex) Prune(maxAge time.Duration) {
	if maxAge <= 0 {
		return
	}
	s.enqueue(req{kind: reqPrune, prune: maxAge})
}

// UpsertTuning stores the tuning values actually applied, so a replay run
// can confirm it uses the same parameters the server ran with.
func (s *SQLiteIndex) UpsertTuning(tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)

	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('tuning',?)`, string(b)); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('tuning_digest',?)`, hex.EncodeToString(sum[:])); err != nil {
		return err
	}
	return tx.Commit()
}

// EventsForUnit returns indexed events for one unit in [fromTick, toTick],
// ordered by sequence. Query-side helper for tooling; the hot path never
// reads the index.
func (s *SQLiteIndex) EventsForUnit(unitID string, fromTick, toTick uint64) ([]engine.TerritorialEvent, error) {
	rows, err := s.db.Queryx(
		`SELECT seq, tick, unit_id, faction_id, delta, value, cause, actor, time_unix_ms
		 FROM events WHERE unit_id = ? AND tick BETWEEN ? AND ? ORDER BY seq`,
		unitID, int64(fromTick), int64(toTick))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.TerritorialEvent
	for rows.Next() {
		var ev engine.TerritorialEvent
		var actor *string
		if err := rows.Scan(&ev.Seq, &ev.Tick, &ev.UnitID, &ev.FactionID, &ev.Delta, &ev.Value, &ev.Cause, &actor, &ev.TimeUnixMs); err != nil {
			return nil, err
		}
		if actor != nil {
			ev.Actor = *actor
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// LatestSnapshot returns the most recent indexed snapshot row, or ok=false
// when the index has none.
func (s *SQLiteIndex) LatestSnapshot() (path string, tick uint64, ok bool, err error) {
	var row struct {
		Tick int64  `db:"tick"`
		Path string `db:"path"`
	}
	err = s.db.Get(&row, `SELECT tick, path FROM snapshots ORDER BY tick DESC LIMIT 1`)
	if err != nil {
		if err.Error() == "sql: no rows in result set" {
			return "", 0, false, nil
		}
		return "", 0, false, err
	}
	return row.Path, uint64(row.Tick), true, nil
}

func (s *SQLiteIndex) loop() {
	var (
		tx            *sqlx.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		lastAuditTick uint64
		auditSeq      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.Beginx()
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqEvent:
			ev := r.event
			if _, err := tx.Exec(
				`INSERT OR REPLACE INTO events(seq,tick,unit_id,faction_id,delta,value,cause,actor,time_unix_ms) VALUES(?,?,?,?,?,?,?,?,?)`,
				int64(ev.Seq), int64(ev.Tick), ev.UnitID, ev.FactionID, ev.Delta, ev.Value, string(ev.Cause), ev.Actor, ev.TimeUnixMs,
			); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqAudit:
			a := r.audit
			if a.Tick != lastAuditTick {
				lastAuditTick = a.Tick
				auditSeq = 0
			}
			seq := auditSeq
			auditSeq++
			raw, _ := json.Marshal(a)
			if _, err := tx.Exec(
				`INSERT OR REPLACE INTO audits(tick,seq,session_id,action_id,kind,unit_id,siege_id,code,message,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?)`,
				int64(a.Tick), seq, a.SessionID, a.ActionID, a.Kind, a.UnitID, a.SiegeID, a.Code, a.Message, string(raw),
			); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqSnapshot:
			sn := r.snapshot
			if _, err := tx.Exec(
				`INSERT OR REPLACE INTO snapshots(tick,path,event_seq,influence_rows,sieges,map_digest,recorded_at) VALUES(?,?,?,?,?,?,?)`,
				int64(sn.Tick), sn.Path, int64(sn.EventSeq), sn.Influence, sn.Sieges, sn.MapDigest, sn.RecordedAt,
			); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqOwnership:
			ow := r.ownership
			if _, err := tx.Exec(
				`INSERT OR REPLACE INTO ownership_changes(tick,unit_id,old_holder,new_holder) VALUES(?,?,?,?)`,
				int64(ow.Tick), ow.UnitID, ow.OldHolder, ow.NewHolder,
			); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqPrune:
			// Retention runs inside the writer so it never races appends.
			cutoff := time.Now().Add(-r.prune).UnixMilli()
			if _, err := tx.Exec(`DELETE FROM events WHERE time_unix_ms < ?`, cutoff); err != nil {
				rollback()
				continue
			}
			opCount++
		}
		flushIfNeeded()
	}

	commit()
}
