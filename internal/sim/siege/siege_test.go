package siege

import "testing"

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.DominateHoldTicks = 3
	cfg.LockDurationTicks = 10
	cfg.AttackerTickets = 3
	cfg.DefenderTickets = 3
	return cfg
}

func TestProbeToInterdict(t *testing.T) {
	si := New("S1", "CP1", "red", "blue", []string{"red", "blue"}, testConfig())

	if si.Phase != PhaseProbe || si.Dominance != 0.5 {
		t.Fatalf("fresh siege: phase=%s dominance=%f", si.Phase, si.Dominance)
	}

	// Below the interdict threshold nothing happens.
	si.Contribute("red", 0.05)
	res := si.Tick(1)
	if res.PhaseChanged || si.Phase != PhaseProbe {
		t.Fatalf("phase moved at magnitude %f", si.Dominance-0.5)
	}

	// Push past it.
	for i := 0; i < 3; i++ {
		si.Contribute("red", 0.05)
	}
	res = si.Tick(2)
	if !res.PhaseChanged || si.Phase != PhaseInterdict {
		t.Fatalf("want INTERDICT, got %s (dominance=%f)", si.Phase, si.Dominance)
	}
}

func TestDominateDebounce(t *testing.T) {
	cfg := testConfig()
	si := New("S1", "CP1", "red", "blue", []string{"red", "blue"}, cfg)
	si.Phase = PhaseInterdict
	si.Dominance = 0.5 + cfg.DominateThreshold // magnitude exactly at threshold

	// A spike that is not sustained must not promote.
	si.Tick(1)
	si.Tick(2)
	si.Dominance = 0.5 // collapsed
	res := si.Tick(3)
	if res.PhaseChanged || si.Phase != PhaseInterdict {
		t.Fatalf("unsustained spike promoted to %s", si.Phase)
	}

	// Sustained magnitude promotes after the hold window. Contributions keep
	// the instance active so centering does not erode the margin.
	si.Dominance = 0.5 + cfg.DominateThreshold + 0.01
	var changed bool
	for now := uint64(4); now < 10; now++ {
		si.Contribute("red", 0)
		if r := si.Tick(now); r.PhaseChanged {
			changed = true
			break
		}
	}
	if !changed || si.Phase != PhaseDominate {
		t.Fatalf("sustained dominance did not promote: phase=%s", si.Phase)
	}
}

func TestLockAndExpiry(t *testing.T) {
	cfg := testConfig()
	si := New("S1", "CP1", "red", "blue", []string{"red", "blue"}, cfg)
	si.Phase = PhaseDominate
	si.Dominance = 0.5 + cfg.LockThreshold + 0.01

	si.Contribute("red", 0)
	res := si.Tick(100)
	if !res.PhaseChanged || si.Phase != PhaseLocked {
		t.Fatalf("want LOCKED, got %s", si.Phase)
	}
	if si.LockedWinner != "red" {
		t.Fatalf("locked winner = %q", si.LockedWinner)
	}
	if si.LockExpiresTick != 100+cfg.LockDurationTicks {
		t.Fatalf("lock expires at %d", si.LockExpiresTick)
	}

	// Locked sieges take no more strikes.
	if si.AcceptsStrikes() {
		t.Fatalf("locked siege accepts strikes")
	}

	// Before expiry: nothing.
	if r := si.Tick(si.LockExpiresTick - 1); r.Outcome != nil {
		t.Fatalf("outcome before lock expiry")
	}
	// At expiry: exactly one outcome.
	r := si.Tick(si.LockExpiresTick)
	if r.Outcome == nil || r.Outcome.Winner != "red" || r.Outcome.Reason != ReasonLock {
		t.Fatalf("outcome = %+v", r.Outcome)
	}
}

func TestTicketExhaustionBypassesTimers(t *testing.T) {
	cfg := testConfig()
	si := New("S1", "CP1", "red", "blue", []string{"red", "blue"}, cfg)

	// Defender loses all tickets while still in PROBE.
	for i := 0; i < cfg.DefenderTickets; i++ {
		si.LoseTicket("blue")
	}
	res := si.Tick(5)
	if res.Outcome == nil {
		t.Fatalf("no outcome after ticket exhaustion")
	}
	if res.Outcome.Winner != "red" || res.Outcome.Loser != "blue" || res.Outcome.Reason != ReasonTickets {
		t.Fatalf("outcome = %+v", res.Outcome)
	}
}

func TestTicketsNeverGoNegative(t *testing.T) {
	si := New("S1", "CP1", "red", "blue", []string{"red", "blue"}, testConfig())
	for i := 0; i < 10; i++ {
		si.LoseTicket("red")
	}
	if si.AttackerTickets != 0 {
		t.Fatalf("attacker tickets = %d", si.AttackerTickets)
	}
}

func TestContributionCapAndDirection(t *testing.T) {
	cfg := testConfig()
	si := New("S1", "CP1", "red", "blue", []string{"red", "blue"}, cfg)

	// A single oversized strike is capped at MaxContribution.
	si.Contribute("red", 10)
	si.Tick(1)
	if got, want := si.Dominance, 0.5+cfg.MaxContribution; got != want {
		t.Fatalf("dominance after capped strike = %f, want %f", got, want)
	}

	// Defender pulls the other way.
	si.Contribute("blue", 10)
	si.Tick(2)
	if si.Dominance != 0.5 {
		t.Fatalf("dominance after counter-strike = %f", si.Dominance)
	}
}

func TestCenteringOnlyWhenIdle(t *testing.T) {
	cfg := testConfig()
	si := New("S1", "CP1", "red", "blue", []string{"red", "blue"}, cfg)
	si.Dominance = 0.6

	// Idle tick pulls toward center.
	si.Tick(1)
	if got, want := si.Dominance, 0.6-cfg.CenteringPerTick; got != want {
		t.Fatalf("idle centering: %f want %f", got, want)
	}

	// Active tick does not center.
	before := si.Dominance
	si.Contribute("red", 0.01)
	si.Tick(2)
	if got, want := si.Dominance, before+0.01; got != want {
		t.Fatalf("active tick: %f want %f", got, want)
	}

	// Centering never crosses 0.5.
	si.Dominance = 0.5 + cfg.CenteringPerTick/2
	si.Tick(3)
	if si.Dominance != 0.5 {
		t.Fatalf("centering overshot: %f", si.Dominance)
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	cfg := testConfig()
	si := New("S9", "CP2", "red", "blue", []string{"red", "blue"}, cfg)
	si.Phase = PhaseInterdict
	si.Dominance = 0.72
	si.AttackerTickets = 2
	si.DefenderTickets = 1

	restored := Restore(RestoreState{
		ID:              si.ID,
		UnitID:          si.UnitID,
		Phase:           si.Phase,
		Dominance:       si.Dominance,
		Attacker:        si.Attacker,
		Defender:        si.Defender,
		Participants:    si.Participants,
		AttackerTickets: si.AttackerTickets,
		DefenderTickets: si.DefenderTickets,
		HoldTicks:       si.HoldTicks(),
	}, cfg)

	if restored.Phase != si.Phase || restored.Dominance != si.Dominance ||
		restored.AttackerTickets != si.AttackerTickets || restored.DefenderTickets != si.DefenderTickets {
		t.Fatalf("restore mismatch: %+v vs %+v", restored, si)
	}
}
