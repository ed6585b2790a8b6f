package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
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

	"rtsim.ai/internal/observe"
	"rtsim.ai/internal/persistence/indexdb"
	persistlog "rtsim.ai/internal/persistence/log"
	"rtsim.ai/internal/persistence/snapshot"
	"rtsim.ai/internal/sim/catalogs"
	"rtsim.ai/internal/sim/rtsim"
	"rtsim.ai/internal/sim/rtsim/data"
	"rtsim.ai/internal/sim/rtsim/feed"
	"rtsim.ai/internal/sim/tuning"
	"rtsim.ai/internal/sim/world"
	"rtsim.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "world_1", "world id")
		seed       = flag.Uint64("seed", 0, "world seed override (fresh worlds only; 0 keeps the tuning seed)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to rtsim.yaml (default: <configs>/rtsim.yaml)")
		lang       = flag.String("lang", "en", "speech catalog language")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir, *lang)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "rtsim.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(worldDir)
	}

	var d *data.Data
	var terrain *world.Procedural
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if snap.Header.WorldID != "" && snap.Header.WorldID != *worldID {
			logger.Fatalf("snapshot world id mismatch: flag=%s snap=%s", *worldID, snap.Header.WorldID)
		}
		// The terrain is regenerated from the snapshot's seed and size.
		tune.Seed = snap.Seed
		tune.World.Size = snap.WorldSize
		if snap.TickRate > 0 {
			tune.TickRateHz = snap.TickRate
		}
		terrain = newTerrain(tune)
		if d, err = data.ImportSnapshot(snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s tick=%d npcs=%d", filepath.Base(snapshotToLoad), d.Tick, len(d.Npcs))
	} else {
		if *seed != 0 {
			tune.Seed = *seed
		}
		terrain = newTerrain(tune)
		d = data.New()
		rtsim.NewSpawner(tune.Seed, terrain).Populate(d, terrain, tune.World)
		logger.Printf("fresh world seed=%d sites=%d npcs=%d", tune.Seed, len(d.Sites.IDs()), len(d.Npcs))
	}

	ctx, cancel := signalContext()
	defer cancel()

	var src feed.Source
	if addr := strings.TrimSpace(tune.Feed.RedisAddr); addr != "" {
		rdb, err := feed.NewRedisClient(ctx, addr)
		if err != nil {
			logger.Fatalf("event feed: %v", err)
		}
		defer rdb.Close()
		src = feed.NewRedisSource(rdb, tune.Feed.Stream, tune.Feed.StartID, log.New(os.Stdout, "[feed] ", log.LstdFlags))
		logger.Printf("event feed: redis %s stream=%s", addr, tune.Feed.Stream)
	}

	sim := rtsim.New(rtsim.Config{ID: *worldID, Tuning: tune, Speech: &cats.Speech}, d, terrain, src,
		log.New(os.Stdout, "[rtsim] ", log.LstdFlags|log.Lmicroseconds))

	// Optional read-model index (does not affect sim determinism).
	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(worldDir, "index", "world.sqlite"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
		if err := idx.UpsertCatalogs(cats, tune); err != nil {
			logger.Printf("index: upsert catalogs: %v", err)
		}
	}

	tickLog := persistlog.NewTickLogger(worldDir)
	reportLog := persistlog.NewReportLogger(worldDir)
	defer tickLog.Close()
	defer reportLog.Close()
	loggers := []rtsim.TickLogger{tickLog, reportLog}
	if idx != nil {
		loggers = append(loggers, idx)
	}
	sim.SetTickLogger(rtsim.TeeTickLogger(loggers...))

	mp, err := observe.NewProvider()
	if err != nil {
		logger.Fatalf("metrics: %v", err)
	}
	defer mp.Shutdown(context.Background())
	metrics, err := observe.NewMetrics(mp, *worldID)
	if err != nil {
		logger.Fatalf("metrics: %v", err)
	}
	sim.SetMetrics(metrics)

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	sim.SetSnapshotSink(snapCh)
	writeSnap := func(snap snapshot.SnapshotV1) {
		path := snapshot.Path(worldDir, snap.Header.Tick)
		if err := snapshot.WriteSnapshot(path, snap); err != nil {
			logger.Printf("snapshot write: %v", err)
			return
		}
		idx.RecordSnapshot(path, snap)
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				writeSnap(snap)
			}
		}
	}()

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := sim.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("sim stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", mp.Handler())

	if envBool("RTSIM_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			resp := struct {
				WorldID string          `json:"world_id"`
				Tick    uint64          `json:"tick"`
				Stats   rtsim.TickStats `json:"stats"`
				Index   *indexdb.Stats  `json:"index,omitempty"`
			}{WorldID: *worldID, Tick: sim.CurrentTick(), Stats: sim.Stats()}
			if idx != nil {
				st := idx.Stats()
				resp.Index = &st
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(resp)
		})
		mux.HandleFunc("/admin/v1/reports", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			if idx == nil {
				http.Error(rw, "index disabled", http.StatusNotFound)
				return
			}
			rows, err := idx.Reports(r.URL.Query().Get("actor"))
			if err != nil {
				http.Error(rw, err.Error(), http.StatusInternalServerError)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(rows)
		})
	} else {
		logger.Printf("admin endpoints disabled (RTSIM_ENABLE_ADMIN_HTTP=false)")
	}
	if envBool("RTSIM_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(sim, log.New(os.Stdout, "[ws] ", log.LstdFlags)).Handler())

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

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	// The loop has stopped, so the registry can be read safely.
	<-runDone
	writeSnap(sim.ExportSnapshot())
	logger.Printf("stopped at tick %d", sim.CurrentTick())
}

func newTerrain(t tuning.Tuning) *world.Procedural {
	return world.NewProcedural(world.ProceduralConfig{
		Seed:  int64(t.Seed),
		Size:  t.World.Size,
		Sites: t.World.Sites,
	})
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func latestSnapshot(worldDir string) string {
	dir := filepath.Join(worldDir, "snapshots")
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
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
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
