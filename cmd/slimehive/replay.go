package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pthm-cable/slimehive/config"
	"github.com/pthm-cable/slimehive/ingress"
	"github.com/pthm-cable/slimehive/telemetry"
	"github.com/pthm-cable/slimehive/transport"
)

var replaySpeed float64

// replayCmd republishes a flight log
var replayCmd = &cobra.Command{
	Use:   "replay <flight_log.csv>",
	Short: "Republish a flight log to the broker",
	Long: `Replay publishes every row of a flight log on the deposit subject, keeping
the original spacing between rows divided by --speed.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1, "Playback speed multiplier")
}

func runReplay(cmd *cobra.Command, args []string) error {
	if replaySpeed <= 0 {
		return fmt.Errorf("--speed must be positive, got %v", replaySpeed)
	}
	records, err := telemetry.ReadFlightLog(args[0])
	if err != nil {
		return err
	}

	pub, err := transport.NewPublisher(config.Cfg().Transport)
	if err != nil {
		return err
	}
	defer pub.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("replaying flight log", "path", args[0], "rows", len(records), "speed", replaySpeed)
	sent, err := replay(ctx, records, replaySpeed, pub.PublishDeposit)
	slog.Info("replay finished", "sent", sent)
	return err
}

// replay sends records in order, sleeping the scaled gap between
// consecutive timestamps. It returns how many were sent.
func replay(ctx context.Context, records []telemetry.FlightRecord, speed float64, send func(ingress.DepositEvent) error) (int, error) {
	for i, rec := range records {
		if i > 0 {
			gap := rec.Time().Sub(records[i-1].Time())
			if gap > 0 {
				timer := time.NewTimer(time.Duration(float64(gap) / speed))
				select {
				case <-ctx.Done():
					timer.Stop()
					return i, nil
				case <-timer.C:
				}
			}
		}
		ev := ingress.DepositEvent{
			AgentID:   rec.DroneID,
			X:         rec.X,
			Y:         rec.Y,
			Intensity: rec.Intensity,
			RSSI:      rec.RSSI,
		}
		if err := send(ev); err != nil {
			return i, fmt.Errorf("publish row %d: %w", i, err)
		}
	}
	return len(records), nil
}
