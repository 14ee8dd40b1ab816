package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"warfront.gg/internal/sim/territory"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz         int `yaml:"tick_rate_hz"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`

	MaxSubscribers  int `yaml:"max_subscribers"`
	ClientQueue     int `yaml:"client_queue"`
	SubmitTimeoutMs int `yaml:"submit_timeout_ms"`

	MaxMagnitude    float64 `yaml:"max_magnitude"`
	StaleTickWindow uint64  `yaml:"stale_tick_window"`

	Decay     DecayTuning     `yaml:"decay"`
	Bands     territory.Bands `yaml:"ownership_bands"`
	Siege     SiegeTuning     `yaml:"siege"`
	Retention RetentionTuning `yaml:"retention"`
}

type DecayTuning struct {
	RatePerMinute float64 `yaml:"rate_per_minute"`
	EveryTicks    int     `yaml:"every_ticks"`
	GraceTicks    uint64  `yaml:"grace_ticks"`
}

type SiegeTuning struct {
	InterdictThreshold float64 `yaml:"interdict_threshold"`
	DominateThreshold  float64 `yaml:"dominate_threshold"`
	DominateHoldTicks  int     `yaml:"dominate_hold_ticks"`
	LockThreshold      float64 `yaml:"lock_threshold"`
	LockDurationTicks  uint64  `yaml:"lock_duration_ticks"`
	CenteringPerTick   float64 `yaml:"centering_per_tick"`
	MaxContribution    float64 `yaml:"max_contribution"`
	AttackerTickets    int     `yaml:"attacker_tickets"`
	DefenderTickets    int     `yaml:"defender_tickets"`
	VictoryDelta       float64 `yaml:"victory_delta"`
	StrikeWeight       float64 `yaml:"strike_weight"`
}

type RetentionTuning struct {
	MaxAgeHours int `yaml:"max_age_hours"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    "1.0",
		TickRateHz:         10,
		SnapshotEveryTicks: 3000,
		MaxSubscribers:     256,
		ClientQueue:        64,
		SubmitTimeoutMs:    1000,
		MaxMagnitude:       10,
		StaleTickWindow:    30,
		Decay: DecayTuning{
			RatePerMinute: 2.0,
			EveryTicks:    50,
			GraceTicks:    600,
		},
		Bands: territory.DefaultBands(),
		Siege: SiegeTuning{
			InterdictThreshold: 0.15,
			DominateThreshold:  0.3,
			DominateHoldTicks:  5,
			LockThreshold:      0.45,
			LockDurationTicks:  1800,
			CenteringPerTick:   0.002,
			MaxContribution:    0.05,
			AttackerTickets:    30,
			DefenderTickets:    30,
			VictoryDelta:       35,
			StrikeWeight:       0.005,
		},
		Retention: RetentionTuning{MaxAgeHours: 72},
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}
