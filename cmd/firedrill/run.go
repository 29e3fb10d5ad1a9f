package main

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/firedrill/internal/api"
	"github.com/talgya/firedrill/internal/clock"
	"github.com/talgya/firedrill/internal/config"
	"github.com/talgya/firedrill/internal/engine"
	"github.com/talgya/firedrill/internal/entropy"
	"github.com/talgya/firedrill/internal/persistence"
)

var (
	runSeed     int64
	runDB       string
	runDuration float64
	runSpeed    float64
	runHeadless bool
	runPort     int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one drill",
	Long: `Run one drill and store its report.

Examples:
  firedrill run --headless --duration 300     # as fast as possible, 5 sim-minutes
  firedrill run --speed 2 --port 8080         # paced, observable over HTTP
  firedrill run -c drill.yaml --seed 42       # scenario file with a fixed seed`,
	RunE: runDrill,
}

func init() {
	f := runCmd.Flags()
	f.Int64Var(&runSeed, "seed", 0, "random seed (0 draws one from the entropy source)")
	f.StringVar(&runDB, "db", "", "SQLite run store path (empty string disables storage)")
	f.Float64Var(&runDuration, "duration", 0, "simulated seconds to run (0 runs until the building is empty)")
	f.Float64Var(&runSpeed, "speed", 1, "pacing multiplier, 1 is real time")
	f.BoolVar(&runHeadless, "headless", false, "run unpaced without the HTTP API")
	f.IntVar(&runPort, "port", 8080, "HTTP API port (0 disables the API)")
}

// loadConfig reads the scenario and applies explicitly set run flags.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	flags := cmd.Flags()
	if flags.Changed("seed") {
		cfg.Seed = runSeed
	}
	if flags.Changed("db") {
		cfg.Run.DBPath = runDB
	}
	if flags.Changed("duration") {
		cfg.Run.Duration = runDuration
	}
	if flags.Changed("speed") {
		cfg.Run.Speed = runSpeed
	}
	if flags.Changed("port") {
		cfg.Run.Port = runPort
	}
	return cfg, cfg.Validate()
}

func runDrill(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Seed == 0 {
		src := entropy.NewClient(cfg.Run.RandomOrgKey)
		cfg.Seed = src.Seed(ctx)
		slog.Info("seed drawn", "seed", cfg.Seed, "random_org", src.Enabled())
	}

	// ── Simulation ────────────────────────────────────────────────────
	startedAt := time.Now()
	sim, err := engine.NewSimulation(cfg.Params())
	if err != nil {
		return fmt.Errorf("build simulation: %w", err)
	}

	eng := engine.NewEngine()
	eng.Step = cfg.Tick()
	eng.SetSpeed(cfg.Run.Speed)
	eng.OnTick = sim.Step
	limit := time.Duration(math.MaxInt64)
	if cfg.Run.Duration > 0 {
		limit = clock.Seconds(cfg.Run.Duration)
	}
	eng.Done = func() bool {
		return sim.Finished() || eng.Elapsed() >= limit
	}
	if every := clock.Seconds(cfg.Run.ReportEvery); every >= eng.Step {
		eng.ReportEvery = uint64(every / eng.Step)
		eng.OnReport = func(uint64) { logProgress(sim.Status()) }
	}

	var db *persistence.DB
	if cfg.Run.DBPath != "" {
		if db, err = openStore(cfg.Run.DBPath); err != nil {
			return err
		}
		defer db.Close()
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	if !runHeadless && cfg.Run.Port > 0 {
		if cfg.Run.AdminKey == "" {
			slog.Warn("FIREDRILL_ADMIN_KEY not set, admin POST endpoints will be disabled")
		}
		srv := &api.Server{Sim: sim, Eng: eng, DB: db, Port: cfg.Run.Port, AdminKey: cfg.Run.AdminKey}
		srv.Start(ctx)
		fmt.Fprintf(cmd.OutOrStdout(), "API: http://localhost:%d/api/v1/status\n", cfg.Run.Port)
	}

	// ── Start ─────────────────────────────────────────────────────────
	if runHeadless {
		eng.RunFor(ctx, limit)
	} else {
		eng.Run(ctx)
	}
	if ctx.Err() != nil {
		slog.Info("interrupted, saving partial report")
	}

	report := sim.Report()
	printReport(cmd.OutOrStdout(), report)

	if db == nil {
		return nil
	}
	id, err := db.SaveRun(startedAt, report)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved as run %s\n", id)
	return nil
}

func openStore(path string) (*persistence.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := persistence.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open run store: %w", err)
	}
	return db, nil
}

func logProgress(st engine.Status) {
	slog.Info("progress",
		"sim_time", st.SimTime,
		"alive", st.Alive,
		"evacuating", st.Evacuating,
		"panicking", st.Panicking,
		"in_smoke", st.InSmoke,
		"evacuated", st.Totals.Evacuated,
		"fire_deaths", st.Totals.FireDeaths,
		"fire_nodes", st.Fire.Nodes,
		"panic_mean", fmt.Sprintf("%.3f", st.PanicMean),
	)
}

func printReport(w io.Writer, r engine.RunReport) {
	pct := func(n int) string {
		if r.Spawned == 0 {
			return "0%"
		}
		return humanize.FtoaWithDigits(100*float64(n)/float64(r.Spawned), 1) + "%"
	}
	fmt.Fprintf(w, "\nDrill finished after %s (%s ticks, seed %d)\n",
		engine.SimTime(r.Duration), humanize.Comma(int64(r.Ticks)), r.Seed)
	fmt.Fprintf(w, "  spawned     %s\n", humanize.Comma(int64(r.Spawned)))
	fmt.Fprintf(w, "  evacuated   %s (%s)\n", humanize.Comma(int64(r.Evacuated)), pct(r.Evacuated))
	fmt.Fprintf(w, "  fire deaths %s (%s)\n", humanize.Comma(int64(r.FireDeaths)), pct(r.FireDeaths))
	fmt.Fprintf(w, "  culled      %s\n", humanize.Comma(int64(r.Culled)))
	fmt.Fprintf(w, "  remaining   %s\n", humanize.Comma(int64(r.Remaining)))
	fmt.Fprintf(w, "  fire nodes  %s\n", humanize.Comma(int64(r.FireNodes)))
	fmt.Fprintf(w, "  panic       %.2f ± %.2f\n", r.PanicMean, r.PanicStdDev)
}
