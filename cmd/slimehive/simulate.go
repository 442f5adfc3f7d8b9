package main

import (
	"fmt"
	"log/slog"
	"math"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pthm-cable/slimehive/config"
	"github.com/pthm-cable/slimehive/engine"
)

var (
	simDuration float64
	simDrones   int
	simMode     string
	simSpawn    string
	simRate     float64
	simOutput   string
	simRecord   bool
	simSeed     int64
	simLogStats bool
)

// simulateCmd runs the virtual swarm without a broker
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a headless virtual swarm",
	Long: `Simulate runs the virtual swarm alone, ticking as fast as possible for the
given simulated duration. Swarm metrics are written once per simulated second
to metrics.csv in the output directory.

Examples:
  # Two minutes of foraging with 40 drones
  slimehive simulate --duration 120 --drones 40 --mode FORAGE,AVOID

  # Boids from the center, recorded
  slimehive simulate --mode BOIDS --spawn center --record`,
	RunE: runSimulate,
}

func init() {
	f := simulateCmd.Flags()
	f.Float64Var(&simDuration, "duration", 60, "Simulated seconds")
	f.IntVar(&simDrones, "drones", -1, "Virtual drone count (-1 = use config)")
	f.StringVar(&simMode, "mode", "", "Behavior mode (empty = use config)")
	f.StringVar(&simSpawn, "spawn", "", "Spawn pattern: random, center, corners, line (empty = use config)")
	f.Float64Var(&simRate, "rate", 0, "Tick rate in Hz (0 = use config)")
	f.StringVar(&simOutput, "output", "sim_output", "Directory for metrics CSVs and config snapshot")
	f.BoolVar(&simRecord, "record", false, "Save a session recording")
	f.Int64Var(&simSeed, "seed", 0, "RNG seed (0 = time-based)")
	f.BoolVar(&simLogStats, "log-stats", false, "Log window stats")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if simDuration <= 0 {
		return fmt.Errorf("--duration must be positive, got %v", simDuration)
	}

	cfg := config.Cfg().Clone()
	if simDrones >= 0 {
		cfg.Swarm.VirtualCount = simDrones
	}
	if simMode != "" {
		cfg.Swarm.Mode = simMode
	}
	if simSpawn != "" {
		cfg.Swarm.Spawn = simSpawn
	}
	if simRate > 0 {
		cfg.Tick.Rate = simRate
	}
	if simRecord {
		cfg.Recorder.Enabled = true
	}
	// Simulated drones are not flown
	cfg.FlightLog.Enabled = false
	if err := cfg.Refresh(); err != nil {
		return err
	}

	maxTicks := uint64(math.Ceil(simDuration * cfg.Tick.Rate))
	eng, err := engine.New(cfg, engine.Options{
		Seed:      simSeed,
		OutputDir: simOutput,
		LogStats:  simLogStats,
		Headless:  true,
		MaxTicks:  maxTicks,
	})
	if err != nil {
		return err
	}

	slog.Info("starting headless simulation",
		"seed", simSeed,
		"duration", simDuration,
		"max_ticks", maxTicks,
		"drones", cfg.Swarm.VirtualCount,
		"mode", eng.Mode(),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := eng.Run(ctx); err != nil {
		return err
	}

	res := eng.Result()
	slog.Info("simulation complete",
		"reason", res.Reason,
		"ticks", res.Ticks,
		"elapsed", res.Elapsed,
		"output", simOutput,
		"recording", res.RecordingPath,
	)
	return nil
}
