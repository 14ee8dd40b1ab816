package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	body := []byte(`
tick_rate_hz: 20
decay:
  rate_per_minute: 4.5
siege:
  attacker_tickets: 12
`)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	tune, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tune.TickRateHz != 20 {
		t.Fatalf("tick_rate_hz = %d", tune.TickRateHz)
	}
	if tune.Decay.RatePerMinute != 4.5 {
		t.Fatalf("decay rate = %f", tune.Decay.RatePerMinute)
	}
	if tune.Siege.AttackerTickets != 12 {
		t.Fatalf("attacker tickets = %d", tune.Siege.AttackerTickets)
	}

	// Unset keys keep their defaults.
	def := Defaults()
	if tune.MaxSubscribers != def.MaxSubscribers {
		t.Fatalf("max_subscribers = %d", tune.MaxSubscribers)
	}
	if tune.Siege.VictoryDelta != def.Siege.VictoryDelta {
		t.Fatalf("victory_delta = %f", tune.Siege.VictoryDelta)
	}
	if tune.Bands != def.Bands {
		t.Fatalf("bands = %+v", tune.Bands)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	tune, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatalf("expected error")
	}
	if tune.TickRateHz != Defaults().TickRateHz {
		t.Fatalf("missing file did not fall back to defaults: %+v", tune)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("tick_rate_hz: [oops"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}
