// Package siege runs the per-control-point contest state machine. Instances
// trust pre-validated input only; the hub is the sole admission point.
package siege

import "math"

type Phase string

const (
	PhaseProbe     Phase = "PROBE"
	PhaseInterdict Phase = "INTERDICT"
	PhaseDominate  Phase = "DOMINATE"
	PhaseLocked    Phase = "LOCKED"
)

// Config holds the tunable siege thresholds. Dominance magnitude means
// |dominance - 0.5|, i.e. how far either side has pulled from the center.
type Config struct {
	InterdictThreshold float64 // magnitude to leave Probe
	DominateThreshold  float64 // magnitude that must be sustained
	DominateHoldTicks  int     // debounce for Interdict -> Dominate
	LockThreshold      float64 // magnitude that locks the siege
	LockDurationTicks  uint64
	CenteringPerTick   float64 // passive pull toward 0.5 when idle
	MaxContribution    float64 // per-action weight cap
	AttackerTickets    int
	DefenderTickets    int
	VictoryDelta       float64 // one-shot influence delta for the winner
}

func DefaultConfig() Config {
	return Config{
		InterdictThreshold: 0.15,
		DominateThreshold:  0.3,
		DominateHoldTicks:  5,
		LockThreshold:      0.45,
		LockDurationTicks:  900,
		CenteringPerTick:   0.002,
		MaxContribution:    0.05,
		AttackerTickets:    30,
		DefenderTickets:    30,
		VictoryDelta:       35,
	}
}

// Outcome reasons.
const (
	ReasonTickets = "TICKETS"
	ReasonLock    = "LOCK"
)

// Outcome is the terminal result of a siege. Exactly one outcome is produced
// per instance, by exactly one of ticket exhaustion or lock expiry.
type Outcome struct {
	Winner string
	Loser  string
	Reason string
}

// Instance is the contest state for one Contested control point.
// Dominance runs 0.0 (full defender control) to 1.0 (full attacker control).
type Instance struct {
	ID              string
	UnitID          string
	Phase           Phase
	Dominance       float64
	Attacker        string
	Defender        string
	Participants    []string
	AttackerTickets int
	DefenderTickets int
	LockExpiresTick uint64
	LockedWinner    string

	cfg       Config
	holdTicks int
	pending   float64
	active    bool
}

func New(id, unitID, attacker, defender string, participants []string, cfg Config) *Instance {
	return &Instance{
		ID:              id,
		UnitID:          unitID,
		Phase:           PhaseProbe,
		Dominance:       0.5,
		Attacker:        attacker,
		Defender:        defender,
		Participants:    append([]string(nil), participants...),
		AttackerTickets: cfg.AttackerTickets,
		DefenderTickets: cfg.DefenderTickets,
		cfg:             cfg,
	}
}

func (si *Instance) IsParticipant(factionID string) bool {
	for _, p := range si.Participants {
		if p == factionID {
			return true
		}
	}
	return false
}

// AcceptsStrikes reports whether dominance contributions are still taken.
func (si *Instance) AcceptsStrikes() bool { return si.Phase != PhaseLocked }

// Contribute queues a signed dominance weight for the next tick. Attacker
// actions push toward 1.0, defender actions toward 0.0. Weights are capped;
// membership was validated at the hub boundary.
func (si *Instance) Contribute(factionID string, weight float64) {
	if weight < 0 {
		weight = 0
	}
	if weight > si.cfg.MaxContribution {
		weight = si.cfg.MaxContribution
	}
	if factionID == si.Attacker {
		si.pending += weight
	} else {
		si.pending -= weight
	}
	si.active = true
}

// LoseTicket decrements the pool of the given side. Pools never increase.
// Only the attacker and the defender hold pools; callers reject anyone else.
func (si *Instance) LoseTicket(factionID string) {
	switch factionID {
	case si.Attacker:
		if si.AttackerTickets > 0 {
			si.AttackerTickets--
		}
	case si.Defender:
		if si.DefenderTickets > 0 {
			si.DefenderTickets--
		}
	}
}

// TickResult reports what one server tick did to the instance.
type TickResult struct {
	PhaseChanged bool
	Outcome      *Outcome
}

// Tick advances the instance by one server tick: apply queued contributions,
// center when idle, progress phases, and resolve terminal conditions. Ticket
// exhaustion is checked first and bypasses all phase timers.
func (si *Instance) Tick(now uint64) TickResult {
	var res TickResult

	if si.AttackerTickets <= 0 {
		res.Outcome = &Outcome{Winner: si.Defender, Loser: si.Attacker, Reason: ReasonTickets}
		return res
	}
	if si.DefenderTickets <= 0 {
		res.Outcome = &Outcome{Winner: si.Attacker, Loser: si.Defender, Reason: ReasonTickets}
		return res
	}

	if si.Phase != PhaseLocked {
		si.Dominance = clamp01(si.Dominance + si.pending)
		if !si.active {
			// Passive centering: a single burst cannot decide a long siege.
			if si.Dominance > 0.5 {
				si.Dominance = math.Max(0.5, si.Dominance-si.cfg.CenteringPerTick)
			} else if si.Dominance < 0.5 {
				si.Dominance = math.Min(0.5, si.Dominance+si.cfg.CenteringPerTick)
			}
		}
	}
	si.pending = 0
	si.active = false

	mag := math.Abs(si.Dominance - 0.5)
	switch si.Phase {
	case PhaseProbe:
		if mag > si.cfg.InterdictThreshold {
			si.Phase = PhaseInterdict
			si.holdTicks = 0
			res.PhaseChanged = true
		}
	case PhaseInterdict:
		if mag >= si.cfg.DominateThreshold {
			si.holdTicks++
		} else {
			si.holdTicks = 0
		}
		if si.holdTicks >= si.cfg.DominateHoldTicks {
			si.Phase = PhaseDominate
			res.PhaseChanged = true
		}
	case PhaseDominate:
		if mag >= si.cfg.LockThreshold {
			si.Phase = PhaseLocked
			si.LockExpiresTick = now + si.cfg.LockDurationTicks
			if si.Dominance > 0.5 {
				si.LockedWinner = si.Attacker
			} else {
				si.LockedWinner = si.Defender
			}
			res.PhaseChanged = true
		}
	case PhaseLocked:
		if now >= si.LockExpiresTick {
			loser := si.Defender
			if si.LockedWinner == si.Defender {
				loser = si.Attacker
			}
			res.Outcome = &Outcome{Winner: si.LockedWinner, Loser: loser, Reason: ReasonLock}
		}
	}
	return res
}

// VictoryDelta is the one-shot influence swing committed for the winner.
func (si *Instance) VictoryDelta() float64 { return si.cfg.VictoryDelta }

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
