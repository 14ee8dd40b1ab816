package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	persistlog "warfront.gg/internal/persistence/log"
	"warfront.gg/internal/persistence/snapshot"
	"warfront.gg/internal/sim/engine"
	"warfront.gg/internal/sim/territory"
	"warfront.gg/internal/sim/tuning"
)

// Replays the event log on top of a snapshot and verifies the recorded
// post-clamp values match, proving the log is sufficient to reconstruct
// state after a crash.
func main() {
	var (
		snapPath = flag.String("snapshot", "", "path to .snap.zst")
		dataDir  = flag.String("data", "", "data dir containing events/ (optional; skip replay when empty)")
		mapPath  = flag.String("map", "./configs/worldmap.yaml", "path to worldmap.yaml")
		tunePath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
	)
	flag.Parse()

	if *snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(*snapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}

	fmt.Printf("snapshot v%d tick=%d event_seq=%d influence_rows=%d sieges=%d map_digest=%.12s\n",
		snap.Header.Version, snap.Header.Tick, snap.EventSeq,
		len(snap.Influence), len(snap.Sieges), snap.MapDigest)

	if *dataDir == "" {
		return
	}

	tune, err := tuning.Load(*tunePath)
	if err != nil {
		if os.IsNotExist(err) {
			tune = tuning.Defaults()
		} else {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
	}

	worldMap, err := territory.LoadMap(*mapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load map:", err)
		os.Exit(1)
	}

	store := territory.NewStore(worldMap, tune.Bands)
	if snap.MapDigest != "" && snap.MapDigest != store.MapDigest() {
		fmt.Fprintln(os.Stderr, "map digest mismatch: snapshot was taken against a different map")
		os.Exit(1)
	}

	for _, r := range snap.Influence {
		if err := store.SetInfluence(r.UnitID, r.FactionID, r.Value, r.DecayRate, r.UpdatedTick); err != nil {
			fmt.Fprintln(os.Stderr, "restore influence:", err)
			os.Exit(1)
		}
	}

	eng := engine.New(store, engine.Config{
		TickRateHz:     tune.TickRateHz,
		DecayPerMinute: tune.Decay.RatePerMinute,
		DecayEvery:     tune.Decay.EveryTicks,
		GraceTicks:     tune.Decay.GraceTicks,
	}, nil, log.New(os.Stderr, "[replay] ", log.LstdFlags))
	eng.SetEventSeq(snap.EventSeq)

	events, err := persistlog.ReadEventsSince(*dataDir, snap.EventSeq)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read events:", err)
		os.Exit(1)
	}

	var mismatches int
	for _, ev := range events {
		got, err := eng.ApplyEvent(ev)
		if err != nil {
			fmt.Fprintf(os.Stderr, "apply seq=%d: %v\n", ev.Seq, err)
			os.Exit(1)
		}
		if got != ev.Value {
			mismatches++
			fmt.Printf("MISMATCH seq=%d unit=%s faction=%s got=%.6f logged=%.6f\n",
				ev.Seq, ev.UnitID, ev.FactionID, got, ev.Value)
		}
	}

	if mismatches > 0 {
		fmt.Printf("replay FAILED: %d mismatches over %d events\n", mismatches, len(events))
		os.Exit(1)
	}
	fmt.Printf("replay ok: %d events, final event_seq=%d\n", len(events), eng.EventSeq())
}
