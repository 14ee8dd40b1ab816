package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"warfront.gg/internal/notify"
	"warfront.gg/internal/persistence/indexdb"
	persistlog "warfront.gg/internal/persistence/log"
	"warfront.gg/internal/persistence/snapshot"
	"warfront.gg/internal/sim/engine"
	"warfront.gg/internal/sim/hub"
	"warfront.gg/internal/sim/siege"
	"warfront.gg/internal/sim/territory"
	"warfront.gg/internal/sim/tuning"
	"warfront.gg/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		mapPath    = flag.String("map", "", "path to worldmap.yaml (default: <configs>/worldmap.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite read-model index")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")

		notifyURL = flag.String("notify_url", "", "ownership-change webhook url (empty to disable)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	_ = os.MkdirAll(*dataDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	mp := strings.TrimSpace(*mapPath)
	if mp == "" {
		mp = filepath.Join(*configDir, "worldmap.yaml")
	}

	tune, err := tuning.Load(tp)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", tp)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}

	worldMap, err := territory.LoadMap(mp)
	if err != nil {
		logger.Fatalf("load map: %v", err)
	}

	// Optional: read-model index (does not affect sim determinism).
	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index.db"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
		if err := idx.UpsertTuning(tune); err != nil {
			logger.Printf("index: upsert tuning: %v", err)
		}
	}

	store := territory.NewStore(worldMap, tune.Bands)

	eventLog := persistlog.NewEventLog(*dataDir)
	defer eventLog.Close()
	auditLog := persistlog.NewAuditLog(*dataDir)
	defer auditLog.Close()

	eng := engine.New(store, engine.Config{
		TickRateHz:     tune.TickRateHz,
		DecayPerMinute: tune.Decay.RatePerMinute,
		DecayEvery:     tune.Decay.EveryTicks,
		GraceTicks:     tune.Decay.GraceTicks,
	}, multiEventSink{log: eventLog, idx: idx}, logger)

	h := hub.New(store, eng, hub.Config{
		TickRateHz:         tune.TickRateHz,
		SnapshotEveryTicks: tune.SnapshotEveryTicks,
		MaxSubscribers:     tune.MaxSubscribers,
		MaxMagnitude:       tune.MaxMagnitude,
		StrikeWeight:       tune.Siege.StrikeWeight,
		StaleTickWindow:    tune.StaleTickWindow,
		Siege: siege.Config{
			InterdictThreshold: tune.Siege.InterdictThreshold,
			DominateThreshold:  tune.Siege.DominateThreshold,
			DominateHoldTicks:  tune.Siege.DominateHoldTicks,
			LockThreshold:      tune.Siege.LockThreshold,
			LockDurationTicks:  tune.Siege.LockDurationTicks,
			CenteringPerTick:   tune.Siege.CenteringPerTick,
			MaxContribution:    tune.Siege.MaxContribution,
			AttackerTickets:    tune.Siege.AttackerTickets,
			DefenderTickets:    tune.Siege.DefenderTickets,
			VictoryDelta:       tune.Siege.VictoryDelta,
		},
	}, logger)
	h.SetAuditLogger(multiAuditLogger{a: auditLog, b: idx})

	var notifier *notify.Notifier
	if url := strings.TrimSpace(*notifyURL); url != "" {
		notifier = notify.New(url, 256, logger)
		defer notifier.Close()
	}
	if notifier != nil || idx != nil {
		nf := multiNotifier{idx: idx}
		if notifier != nil {
			nf.webhook = notifier
		}
		h.SetNotifier(nf)
	}

	// Resume: snapshot first, then replay events appended after its offset.
	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(*dataDir)
	}
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if err := h.ImportSnapshot(snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		events, err := persistlog.ReadEventsSince(*dataDir, snap.EventSeq)
		if err != nil {
			logger.Fatalf("read event log: %v", err)
		}
		for _, ev := range events {
			if _, err := eng.ApplyEvent(ev); err != nil {
				logger.Fatalf("replay event seq=%d: %v", ev.Seq, err)
			}
		}
		logger.Printf("resumed from snapshot=%s tick=%d replayed=%d",
			filepath.Base(snapshotToLoad), h.CurrentTick(), len(events))
	}

	ctx, cancel := signalContext()
	defer cancel()

	// Snapshot writer. A failed write is retried at the next cadence; the
	// hub never blocks on it.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	h.SetSnapshotSink(snapCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				path := filepath.Join(*dataDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Tick))
				if err := snapshot.WriteSnapshot(path, snap); err != nil {
					logger.Printf("snapshot write: %v", err)
					continue
				}
				if idx != nil {
					idx.RecordSnapshot(path, snap)
					if tune.Retention.MaxAgeHours > 0 {
						idx.Prune(time.Duration(tune.Retention.MaxAgeHours) * time.Hour)
					}
				}
				pruneSnapshots(*dataDir, tune.Retention.MaxAgeHours, logger)
			}
		}
	}()

	// The hub outlives the signal context: the shutdown snapshot below
	// needs a live loop to answer it, so the loop is stopped explicitly
	// only after that snapshot is taken.
	hubDone := make(chan error, 1)
	go func() { hubDone <- h.Run(context.Background()) }()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		writeMetrics(rw, h, notifier, idx)
	})

	enableAdminHTTP := envBool("WF_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("WF_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		// Local-only admin endpoints (do not affect simulation determinism).
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				Tick    uint64      `json:"tick"`
				Digest  string      `json:"digest"`
				Metrics hub.Metrics `json:"metrics"`
			}{
				Tick:    h.CurrentTick(),
				Digest:  h.Digest(),
				Metrics: h.Metrics(),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
		mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel2()
			snap, err := h.RequestSnapshot(ctx2)
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
				return
			}
			path := filepath.Join(*dataDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Tick))
			if err := snapshot.WriteSnapshot(path, snap); err != nil {
				rw.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": snap.Header.Tick, "path": path})
		})
	} else {
		logger.Printf("admin endpoints disabled (WF_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	submitTimeout := time.Duration(tune.SubmitTimeoutMs) * time.Millisecond
	mux.HandleFunc("/v1/ws", ws.NewServer(h, tune.ClientQueue, submitTimeout, logger).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (map=%s factions=%d units=%d)",
		*addr, filepath.Base(mp), len(worldMap.Factions), len(worldMap.Units))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	// Final snapshot on clean shutdown so a restart replays little or
	// nothing from the event log. The hub loop is still running here and
	// is stopped only once the snapshot has been taken.
	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if snap, err := h.RequestSnapshot(ctx2); err != nil {
		logger.Printf("shutdown snapshot: %v", err)
	} else {
		path := filepath.Join(*dataDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Tick))
		if err := snapshot.WriteSnapshot(path, snap); err != nil {
			logger.Printf("shutdown snapshot: %v", err)
		} else {
			logger.Printf("shutdown snapshot written tick=%d", snap.Header.Tick)
		}
	}
	h.Stop()
	<-hubDone
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func latestSnapshot(dataDir string) string {
	dir := filepath.Join(dataDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		base := strings.TrimSuffix(name, ".snap.zst")
		tick, err := strconv.ParseUint(base, 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}

// pruneSnapshots retires snapshot files older than the retention window,
// always keeping the newest one.
func pruneSnapshots(dataDir string, maxAgeHours int, logger *log.Logger) {
	if maxAgeHours <= 0 {
		return
	}
	dir := filepath.Join(dataDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	newest := filepath.Base(latestSnapshot(dataDir))
	cutoff := time.Now().Add(-time.Duration(maxAgeHours) * time.Hour)
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".snap.zst") || e.Name() == newest {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			logger.Printf("prune snapshot %s: %v", e.Name(), err)
		}
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
