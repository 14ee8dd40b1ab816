package engine

// Cause tags recorded on every committed mutation.
type Cause string

const (
	CauseObjective     Cause = "objective_complete"
	CauseDecayTick     Cause = "decay_tick"
	CauseSiegeResolved Cause = "siege_resolved"
	CauseAIAction      Cause = "ai_action"
)

// TerritorialEvent is one entry of the append-only mutation log. Events are
// written ahead of the store mutation and never rewritten; replaying them
// from a snapshot reconstructs the exact influence values.
type TerritorialEvent struct {
	Seq        uint64  `json:"seq"`
	Tick       uint64  `json:"tick"`
	UnitID     string  `json:"unit_id"`
	FactionID  string  `json:"faction_id"`
	Delta      float64 `json:"delta"`
	Value      float64 `json:"value"` // influence after clamp
	Cause      Cause   `json:"cause"`
	Actor      string  `json:"actor,omitempty"`
	TimeUnixMs int64   `json:"time_unix_ms"`
}

// EventAppender receives every event synchronously before ApplyDelta
// returns. Implemented in internal/persistence/log.
type EventAppender interface {
	AppendEvent(TerritorialEvent) error
}
