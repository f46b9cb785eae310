// Command tradehost runs an authoritative trading session: it generates the
// world, resolves turns as players end them and serves the observation API
// plus, in host mode, the /ws endpoint remote players join through.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/talgya/tradewinds/internal/api"
	"github.com/talgya/tradewinds/internal/config"
	"github.com/talgya/tradewinds/internal/engine"
	"github.com/talgya/tradewinds/internal/entropy"
	"github.com/talgya/tradewinds/internal/logging"
	"github.com/talgya/tradewinds/internal/netsync"
	"github.com/talgya/tradewinds/internal/persistence"
	"github.com/talgya/tradewinds/internal/world"
)

func main() {
	cfgPath := flag.String("config", "", "YAML config file (optional)")
	flag.Parse()

	loader, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg := loader.Config()

	closer := logging.Setup(cfg.Log)
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, loader); err != nil {
		slog.Error("tradehost failed", "error", err)
		os.Exit(1)
	}
	fmt.Println("Session closed.")
}

func run(ctx context.Context, loader *config.Loader) error {
	cfg := loader.Config()

	// ── World ─────────────────────────────────────────────────────────
	seed := cfg.Game.Seed
	if seed == 0 {
		seed = entropy.NewClient(cfg.Entropy.RandomOrgKey).Seed(ctx)
	}
	names := world.GenerateCityNames(rand.New(rand.NewSource(int64(seed))), world.DefaultNameCounts())
	ws, err := engine.NewWorldState(seed, names, cfg.Game.StartingStock)
	if err != nil {
		return err
	}
	slog.Info("world generated",
		"seed", seed,
		"cities", ws.Stats.Cities,
		"edges", ws.Stats.FinalEdgeCount,
		"bridges", ws.Stats.BridgesAdded,
		"pruned", ws.Stats.EdgesPruned,
		"digest", ws.GenesisDigest[:12],
	)

	// ── Hub ───────────────────────────────────────────────────────────
	hub := netsync.NewHub(ws, netsync.Config{
		Rules:         cfg.Game.Rules(),
		StartingMoney: cfg.Game.StartingMoney,
		LocalPlayer:   cfg.Game.PlayerName,
		TurnTimeout:   cfg.Game.TurnTimeout,
	})

	// ── Journal ───────────────────────────────────────────────────────
	var db *persistence.DB
	if cfg.DB.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.DB.Path), 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
		db, err = persistence.Open(cfg.DB.Path)
		if err != nil {
			return err
		}
		defer db.Close()

		var saveErr error
		hub.View(func(ws *engine.WorldState) { saveErr = db.SaveSession(ws) })
		if saveErr != nil {
			return saveErr
		}
		hub.OnTurn = func(r netsync.TurnResult) { journal(db, r) }
	}

	// ── Poll loop and HTTP ────────────────────────────────────────────
	eng := engine.NewEngine(cfg.Game.PollInterval)
	eng.OnTick = func(uint64) { hub.Poll() }

	limiter := api.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)
	srv := &api.Server{
		Hub:         hub,
		DB:          db,
		Addr:        cfg.Server.Addr,
		PublicURL:   cfg.Server.PublicURL,
		AdminKey:    cfg.Server.AdminKey,
		PlayerKey:   cfg.Server.PlayerKey,
		AllowJoin:   cfg.Game.Mode == config.ModeHost,
		CORSOrigins: cfg.Server.CORSOrigins,
		Limiter:     limiter,
	}
	if srv.AdminKey == "" {
		slog.Warn("server.admin_key not set, admin endpoints disabled")
	}
	if _, local := hub.LocalPlayer(); local && srv.PlayerKey == "" {
		srv.PlayerKey = uuid.NewString()
		fmt.Printf("Local player key: %s\n", srv.PlayerKey)
	}

	loader.Watch(func(c config.Config) {
		logging.SetLevel(c.Log.Level)
		hub.SetTurnTimeout(c.Game.TurnTimeout)
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return eng.Run(gctx) })
	g.Go(func() error { return srv.ListenAndServe(gctx) })
	g.Go(func() error { return limiter.Run(gctx, time.Minute) })

	fmt.Printf("\nTradewinds session open: %d cities, mode %s.\n", len(ws.Cities), cfg.Game.Mode)
	fmt.Printf("API: %s/api/v1/status\n", cfg.Server.PublicURL)
	if srv.AllowJoin {
		fmt.Printf("Join: %s/ws?name=<you>\n", cfg.Server.PublicURL)
	}
	return g.Wait()
}

// journal records a resolved turn. It runs on the hub goroutine.
func journal(db *persistence.DB, r netsync.TurnResult) {
	rec := persistence.TurnRecord{Report: r.Report, Snapshot: r.Snapshot, Digest: r.Digest, Players: r.Players}
	if err := db.RecordTurn(rec); err != nil {
		slog.Error("turn journal failed", "turn", r.Report.Turn, "error", err)
		return
	}
	for _, p := range r.Players {
		slog.Debug("balance", "turn", r.Report.Turn, "player", p.Name, "money", humanize.Commaf(p.Money))
	}
}
