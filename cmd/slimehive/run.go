package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pthm-cable/slimehive/config"
	"github.com/pthm-cable/slimehive/engine"
	"github.com/pthm-cable/slimehive/ingress"
	"github.com/pthm-cable/slimehive/status"
	"github.com/pthm-cable/slimehive/telemetry"
	"github.com/pthm-cable/slimehive/transport"
)

var (
	runOutputDir string
	runLogStats  bool
	runSeed      int64
	runNoStatus  bool
)

// runCmd runs the live hive
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the hive against the NATS broker",
	Long: `Run connects to the broker, ingests deposits and control commands, ticks the
hive at the configured rate and serves the status API.

Failing to reach the broker at startup is fatal. Losing it later is retried
up to transport.max_reconnects times before the hive stops.`,
	RunE: runHive,
}

func init() {
	runCmd.Flags().StringVar(&runOutputDir, "output-dir", "", "Directory for CSV telemetry and config snapshot")
	runCmd.Flags().BoolVar(&runLogStats, "log-stats", false, "Log window stats")
	runCmd.Flags().Int64Var(&runSeed, "seed", 0, "RNG seed (0 = time-based)")
	runCmd.Flags().BoolVar(&runNoStatus, "no-status", false, "Do not start the status server")
}

func runHive(cmd *cobra.Command, args []string) error {
	cfg := config.Cfg()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(reg)

	eng, err := engine.New(cfg, engine.Options{
		Seed:      runSeed,
		Metrics:   metrics,
		OutputDir: runOutputDir,
		LogStats:  runLogStats,
	})
	if err != nil {
		return err
	}

	sub, err := transport.NewSubscriber(cfg.Transport, cfg.Position.DefaultRSSI, eng, metrics)
	if err != nil {
		slog.Error("cannot reach broker", "url", cfg.Transport.URL, "error", err)
		return abortRun(eng, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	// Other workers stop once the engine returns
	ctx, cancel := context.WithCancel(ctx)

	g.Go(func() error {
		defer cancel()
		return eng.Run(ctx)
	})

	g.Go(func() error {
		if err := sub.Run(ctx); err != nil {
			return fmt.Errorf("transport: %w", err)
		}
		return nil
	})

	if !runNoStatus {
		srv := status.NewServer(eng, status.Options{
			Addr:           cfg.Status.Addr,
			ArchiveDir:     cfg.Export.ArchiveDir,
			LiveConfigPath: cfg.Status.LiveConfigPath,
			LiveBase:       cfg.Live(),
			Gatherer:       reg,
		})
		g.Go(func() error { return srv.Run(ctx) })
	}

	g.Go(func() error {
		return config.WatchLive(ctx, cfg.Status.LiveConfigPath, cfg.Live(), func(l config.Live) {
			eng.SubmitCommand(ingress.SetLive(l))
		})
	})

	err = g.Wait()
	cancel()

	res := eng.Result()
	if errors.Is(res.Cause, engine.ErrExtinction) {
		slog.Warn("hive ended in extinction", "ticks", res.Ticks)
	}
	if errors.Is(err, transport.ErrConnectionLost) {
		slog.Error("broker connection lost", "error", err)
	}
	return err
}

// abortRun closes an engine that never started and returns cause.
func abortRun(eng interface{ Finish(string, error) error }, cause error) error {
	if err := eng.Finish(engine.ReasonStopped, cause); err != nil {
		slog.Error("failed to close hive outputs", "error", err)
	}
	return cause
}
