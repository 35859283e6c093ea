// Command tilesim runs the tile-grid navigation simulation: terrain from a
// seed, a flock of sheep following the food flow field, humans walking A*
// routes, and an HTTP API to watch it.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/VerechoTJI/SimulationGame/internal/api"
	"github.com/VerechoTJI/SimulationGame/internal/config"
	"github.com/VerechoTJI/SimulationGame/internal/engine"
	"github.com/VerechoTJI/SimulationGame/internal/persistence"
	"github.com/VerechoTJI/SimulationGame/internal/world"
)

func main() {
	level := slog.LevelInfo
	if os.Getenv("TILESIM_DEBUG") != "" {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))

	if err := run(); err != nil {
		slog.Error("tilesim failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv(config.Default())
	if err != nil {
		return err
	}

	// ── Database ──────────────────────────────────────────────────────
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := persistence.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.DBPath)

	// A saved world keeps the parameters it was generated with.
	resuming := db.HasWorldState()
	if resuming {
		saved, err := db.LoadConfig(cfg)
		switch {
		case err == nil:
			cfg = saved
		case errors.Is(err, persistence.ErrNoMeta):
			slog.Warn("saved world has no config, using current settings")
		default:
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// ── Terrain (regenerated from the seed on every start) ────────────
	grid, err := world.Generate(cfg.Terrain)
	if err != nil {
		return err
	}
	for name, n := range grid.Counts() {
		slog.Info("terrain", "type", name, "count", n)
	}

	// ── Simulation ────────────────────────────────────────────────────
	sim, err := engine.NewSimulation(cfg, grid)
	if err != nil {
		return err
	}
	if resuming {
		if err := db.LoadWorldState(sim); err != nil {
			return err
		}
	} else {
		slog.Info("no saved state found, spawning population")
		sim.Populate()
		if err := db.SaveWorldState(sim); err != nil {
			slog.Error("initial save failed", "error", err)
		}
	}

	started := time.Now()
	eng := engine.NewEngine()
	eng.Tick = sim.Status().Tick
	eng.Interval = cfg.TickInterval
	eng.ReportInterval = cfg.ReportInterval
	eng.SaveInterval = cfg.SaveInterval
	eng.OnTick = sim.Tick
	eng.OnReport = func(tick uint64) {
		sim.Report(tick, started)
	}
	eng.OnSave = func(tick uint64) {
		if err := db.SaveWorldState(sim); err != nil {
			slog.Error("auto-save failed", "tick", tick, "error", err)
		}
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.AdminKey == "" {
		slog.Warn("TILESIM_ADMIN_KEY not set, admin POST endpoints disabled")
	}
	server := &api.Server{
		Sim:      sim,
		Eng:      eng,
		DB:       db,
		Port:     cfg.APIPort,
		AdminKey: cfg.AdminKey,
	}
	server.Start()

	// ── Start ─────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		eng.Stop()
	}()

	st := sim.Status()
	fmt.Printf("\n%d humans and %d sheep on a %dx%d grid (%s cells).\n",
		st.Stats.Humans, st.Stats.Sheep, grid.Width, grid.Height, humanize.Comma(int64(grid.Size())))
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.APIPort)
	if eng.Tick > 0 {
		fmt.Printf("Resuming from tick %s\n", humanize.Comma(int64(eng.Tick)))
	}
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	eng.Run()

	slog.Info("final save...")
	if err := db.SaveWorldState(sim); err != nil {
		return fmt.Errorf("final save: %w", err)
	}
	fmt.Println("Simulation stopped. World state saved.")
	return nil
}
