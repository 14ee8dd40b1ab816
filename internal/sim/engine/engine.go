package engine

import (
	"log"
	"time"

	"warfront.gg/internal/sim/territory"
)

type Config struct {
	TickRateHz     int
	DecayPerMinute float64
	DecayEvery     int    // ticks between decay sweeps
	GraceTicks     uint64 // unit activity window that suspends decay
}

// Engine applies influence deltas to the territory store. It is the only
// writer: gameplay actions, decay and siege outcomes all funnel through
// ApplyDelta so clamping and event emission are never bypassed. Calls must
// come from the hub loop; per-unit FIFO ordering follows from that.
type Engine struct {
	store  *territory.Store
	cfg    Config
	wal    EventAppender // may be nil
	logger *log.Logger

	seq          uint64
	lastActivity map[string]uint64 // unit id -> tick of last non-decay mutation
	walErrs      uint64
}

// Change reports one committed mutation together with the ownership
// transition it caused.
type Change struct {
	Event TerritorialEvent
	Prev  territory.Ownership
	Next  territory.Ownership
}

func New(store *territory.Store, cfg Config, wal EventAppender, logger *log.Logger) *Engine {
	if cfg.TickRateHz <= 0 {
		cfg.TickRateHz = 5
	}
	if cfg.DecayEvery <= 0 {
		cfg.DecayEvery = 50
	}
	return &Engine{
		store:        store,
		cfg:          cfg,
		wal:          wal,
		logger:       logger,
		lastActivity: make(map[string]uint64),
	}
}

// EventSeq returns the last assigned event sequence number.
func (e *Engine) EventSeq() uint64 { return e.seq }

// SetEventSeq seeds the sequence counter when resuming from a snapshot.
func (e *Engine) SetEventSeq(seq uint64) { e.seq = seq }

// LastActivity exposes the per-unit activity marks for snapshot export.
func (e *Engine) LastActivity() map[string]uint64 {
	out := make(map[string]uint64, len(e.lastActivity))
	for k, v := range e.lastActivity {
		out[k] = v
	}
	return out
}

func (e *Engine) SetLastActivity(unitID string, tick uint64) {
	e.lastActivity[unitID] = tick
}

// ApplyDelta clamps current+delta into [0,100], appends the event to the
// write-ahead log, writes the store and recomputes ownership. A WAL failure
// is logged and counted but never blocks the mutation; durability lags,
// gameplay does not.
func (e *Engine) ApplyDelta(tick uint64, unitID, factionID string, delta float64, cause Cause, actor string) (Change, error) {
	current, err := e.store.Influence(unitID, factionID)
	if err != nil {
		return Change{}, err
	}
	prev, err := e.store.OwnershipOf(unitID)
	if err != nil {
		return Change{}, err
	}

	newValue := clamp(current + delta)

	e.seq++
	ev := TerritorialEvent{
		Seq:        e.seq,
		Tick:       tick,
		UnitID:     unitID,
		FactionID:  factionID,
		Delta:      delta,
		Value:      newValue,
		Cause:      cause,
		Actor:      actor,
		TimeUnixMs: time.Now().UnixMilli(),
	}
	if e.wal != nil {
		if err := e.wal.AppendEvent(ev); err != nil {
			e.walErrs++
			if e.logger != nil {
				e.logger.Printf("event log append: %v", err)
			}
		}
	}

	if err := e.store.SetInfluence(unitID, factionID, newValue, e.cfg.DecayPerMinute, tick); err != nil {
		// Consistency violation: abort without corrupting the store.
		return Change{}, err
	}
	if cause != CauseDecayTick {
		e.lastActivity[unitID] = tick
	}

	next, err := e.store.OwnershipOf(unitID)
	if err != nil {
		return Change{}, err
	}
	return Change{Event: ev, Prev: prev, Next: next}, nil
}

// ApplyEvent re-applies a logged event during replay. Same arithmetic as
// ApplyDelta so the reconstructed value is bit-identical; nothing is logged
// or emitted.
func (e *Engine) ApplyEvent(ev TerritorialEvent) (float64, error) {
	current, err := e.store.Influence(ev.UnitID, ev.FactionID)
	if err != nil {
		return 0, err
	}
	newValue := clamp(current + ev.Delta)
	if err := e.store.SetInfluence(ev.UnitID, ev.FactionID, newValue, e.cfg.DecayPerMinute, ev.Tick); err != nil {
		return 0, err
	}
	if ev.Cause != CauseDecayTick {
		e.lastActivity[ev.UnitID] = ev.Tick
	}
	if ev.Seq > e.seq {
		e.seq = ev.Seq
	}
	return newValue, nil
}

// ShouldDecay reports whether the decay sweep runs on this tick.
func (e *Engine) ShouldDecay(tick uint64) bool {
	return tick > 0 && tick%uint64(e.cfg.DecayEvery) == 0
}

// DecayTick erodes every non-zero influence row whose unit has seen no
// gameplay activity inside the grace window. Decay shares the ApplyDelta
// path, so events and clamping apply as usual.
func (e *Engine) DecayTick(tick uint64) []Change {
	elapsedMinutes := float64(e.cfg.DecayEvery) / (60 * float64(e.cfg.TickRateHz))
	var changes []Change
	for _, row := range e.store.NonZeroRows() {
		last, ok := e.lastActivity[row.UnitID]
		if !ok {
			last = row.UpdatedTick
		}
		if tick-last <= e.cfg.GraceTicks {
			continue
		}
		delta := -row.DecayRate * elapsedMinutes
		if delta == 0 {
			continue
		}
		ch, err := e.ApplyDelta(tick, row.UnitID, row.FactionID, delta, CauseDecayTick, "")
		if err != nil {
			if e.logger != nil {
				e.logger.Printf("decay %s/%s: %v", row.UnitID, row.FactionID, err)
			}
			continue
		}
		changes = append(changes, ch)
	}
	return changes
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
