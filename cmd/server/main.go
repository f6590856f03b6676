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
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"

	"github.com/NataleeRene/shinobi-alliance-smp-mod/internal/persistence/archive"
	"github.com/NataleeRene/shinobi-alliance-smp-mod/internal/persistence/auditlog"
	"github.com/NataleeRene/shinobi-alliance-smp-mod/internal/persistence/indexdb"
	"github.com/NataleeRene/shinobi-alliance-smp-mod/internal/persistence/warfile"
	"github.com/NataleeRene/shinobi-alliance-smp-mod/internal/sim/claims"
	"github.com/NataleeRene/shinobi-alliance-smp-mod/internal/sim/perms"
	"github.com/NataleeRene/shinobi-alliance-smp-mod/internal/sim/reconcile"
	"github.com/NataleeRene/shinobi-alliance-smp-mod/internal/sim/roster"
	"github.com/NataleeRene/shinobi-alliance-smp-mod/internal/sim/tuning"
	"github.com/NataleeRene/shinobi-alliance-smp-mod/internal/sim/war"
	"github.com/NataleeRene/shinobi-alliance-smp-mod/internal/transport/ws"
)

// envOverrides take precedence over flags so container deployments need no
// argument plumbing.
type envOverrides struct {
	Addr        string `env:"SHINOBI_ADDR"`
	ConfigDir   string `env:"SHINOBI_CONFIG_DIR"`
	DataDir     string `env:"SHINOBI_DATA_DIR"`
	TuningPath  string `env:"SHINOBI_TUNING"`
	DisableDB   bool   `env:"SHINOBI_DISABLE_DB"`
	EnablePprof bool   `env:"SHINOBI_ENABLE_PPROF"`
}

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite audit/points index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	var ov envOverrides
	if err := env.Parse(&ov); err != nil {
		logger.Fatalf("parse env: %v", err)
	}
	if ov.Addr != "" {
		*addr = ov.Addr
	}
	if ov.ConfigDir != "" {
		*configDir = ov.ConfigDir
	}
	if ov.DataDir != "" {
		*dataDir = ov.DataDir
	}
	if ov.TuningPath != "" {
		*tuningPath = ov.TuningPath
	}
	if ov.DisableDB {
		*disableDB = true
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
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
	grace := time.Duration(tune.GracePeriodMs) * time.Millisecond
	allyGrace := time.Duration(tune.AllyGracePeriodMs) * time.Millisecond

	_ = os.MkdirAll(*dataDir, 0o755)

	// Optional: sqlite read-model index for war audit and points history.
	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index.db"))
		if err != nil {
			logger.Fatalf("open index backend: %v", err)
		}
		defer idx.Close()
	} else {
		logger.Printf("sqlite index disabled")
	}

	ros := roster.New(logger)
	playersPath := filepath.Join(*dataDir, tune.PlayersFile)
	if err := ros.Load(playersPath); err != nil {
		logger.Fatalf("load players: %v", err)
	}

	clm := claims.NewService(logger)
	prm := perms.NewService(logger)

	wars := war.NewStore(war.Config{
		GracePeriod:     grace,
		AllyGracePeriod: allyGrace,
	}, ros, claims.NewBridge(clm), logger)

	warsPath := filepath.Join(*dataDir, tune.WarsFile)
	wf, err := warfile.Read(warsPath)
	if err != nil {
		// A corrupt save is not fatal: start empty and leave the bad file
		// on disk for inspection until the next write replaces it.
		logger.Printf("read wars: %v; starting with no wars", err)
		wf = warfile.File{V1: &warfile.SaveV1{Version: warfile.Version}}
	}
	if wf.Legacy != nil {
		// Keep a compressed copy of the pre-versioned file before the next
		// write replaces it.
		if archived, err := archive.ArchiveLegacyWarFile(*dataDir, warsPath, time.Now()); err != nil {
			logger.Printf("archive legacy wars: %v", err)
		} else {
			logger.Printf("archived legacy war file to %s", archived)
		}
	}
	wars.Restore(warfile.Migrate(wf, time.Now(), grace))
	wars.SetSaver(&warfile.Writer{Path: warsPath})

	fileAudit := auditlog.NewWarAuditLogger(*dataDir)
	defer fileAudit.Close()
	if idx != nil {
		wars.SetAuditLogger(multiAuditLogger{a: fileAudit, b: idx})
	} else {
		wars.SetAuditLogger(fileAudit)
	}

	ctx, cancel := signalContext()
	defer cancel()

	// War tick loop.
	go func() {
		interval := time.Second / time.Duration(tune.TickRateHz)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				wars.Tick(now)
			}
		}
	}()

	// Coarse rank/perms/claims reconciliation.
	rec := &reconcile.Reconciler{Roster: ros, Perms: prm, Claims: clm, Logger: logger}
	go rec.Run(ctx, time.Duration(tune.ResyncEverySeconds)*time.Second)

	// Periodic roster persistence; the final write happens at shutdown.
	go func() {
		t := time.NewTicker(time.Minute)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if err := ros.Save(playersPath); err != nil {
					logger.Printf("save players: %v", err)
				}
			}
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		online, atWar := 0, 0
		for _, p := range ros.Players() {
			if ros.IsOnline(p.ID) {
				online++
			}
			if wars.InvolvedInWar(p.ID) {
				atWar++
			}
		}
		active := 0
		all := wars.StatusOf(uuid.Nil)
		for _, st := range all {
			if st.BypassActive {
				active++
			}
		}

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP shinobi_players_registered Registered players.\n")
		fmt.Fprintf(rw, "# TYPE shinobi_players_registered gauge\n")
		fmt.Fprintf(rw, "shinobi_players_registered %d\n", len(ros.Players()))

		fmt.Fprintf(rw, "# HELP shinobi_players_online Currently connected players.\n")
		fmt.Fprintf(rw, "# TYPE shinobi_players_online gauge\n")
		fmt.Fprintf(rw, "shinobi_players_online %d\n", online)

		fmt.Fprintf(rw, "# HELP shinobi_wars_active Live declared wars.\n")
		fmt.Fprintf(rw, "# TYPE shinobi_wars_active gauge\n")
		fmt.Fprintf(rw, "shinobi_wars_active %d\n", len(all))

		fmt.Fprintf(rw, "# HELP shinobi_wars_bypass_active Wars with the claim bypass granted.\n")
		fmt.Fprintf(rw, "# TYPE shinobi_wars_bypass_active gauge\n")
		fmt.Fprintf(rw, "shinobi_wars_bypass_active %d\n", active)

		fmt.Fprintf(rw, "# HELP shinobi_players_at_war Players leading or defending a war.\n")
		fmt.Fprintf(rw, "# TYPE shinobi_players_at_war gauge\n")
		fmt.Fprintf(rw, "shinobi_players_at_war %d\n", atWar)
	})
	// Local-only admin endpoints.
	mux.HandleFunc("/admin/v1/award", func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		player, err := uuid.Parse(r.URL.Query().Get("player"))
		if err != nil {
			http.Error(rw, "bad player", http.StatusBadRequest)
			return
		}
		achievement := r.URL.Query().Get("achievement")
		pts, ok := roster.AwardFor(achievement)
		if !ok {
			http.Error(rw, "unknown achievement", http.StatusBadRequest)
			return
		}
		counted, total := ros.AwardAchievement(player, achievement, pts)
		if counted {
			if idx != nil {
				_ = idx.WritePoints(indexdb.PointsRow{
					AtMs:        time.Now().UnixMilli(),
					Player:      player.String(),
					Achievement: achievement,
					Points:      pts,
					Total:       total,
				})
			}
			// Converge groups and claim allowance right away instead of
			// waiting for the next periodic pass.
			rec.Pass()
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]any{"counted": counted, "total": total})
	})
	mux.HandleFunc("/admin/v1/audit", func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		if idx == nil {
			http.Error(rw, "index disabled", http.StatusServiceUnavailable)
			return
		}
		entries, err := idx.RecentAudit(100)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(entries)
	})
	if ov.EnablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (SHINOBI_ENABLE_PPROF=false)")
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(wars, ros, clm, grace, logger).Handler())

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

	logger.Printf("listening on %s (grace=%s tick=%dHz)", *addr, grace, tune.TickRateHz)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	if err := ros.Save(playersPath); err != nil {
		logger.Printf("save players at shutdown: %v", err)
	}
}

// multiAuditLogger fans each entry out to the file trail and the sqlite
// index. Individual sink failures are already logged by the store.
type multiAuditLogger struct {
	a war.AuditLogger
	b war.AuditLogger
}

func (m multiAuditLogger) WriteWarAudit(entry war.AuditEntry) error {
	if m.a != nil {
		_ = m.a.WriteWarAudit(entry)
	}
	if m.b != nil {
		_ = m.b.WriteWarAudit(entry)
	}
	return nil
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
