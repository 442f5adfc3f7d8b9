package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/pthm-cable/slimehive/telemetry"
)

// inspectCmd prints recording metadata
var inspectCmd = &cobra.Command{
	Use:   "inspect <recording.slimehive>",
	Short: "Print a recording's metadata and verify its checksum",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := telemetry.LoadRecording(args[0])
		if err != nil {
			return err
		}
		printRecording(cmd.OutOrStdout(), rec)
		if err := rec.Verify(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "checksum:   ok")
		return nil
	},
}

func printRecording(w io.Writer, rec *telemetry.Recording) {
	m := rec.Metadata
	fmt.Fprintf(w, "session:    %s\n", m.SessionID)
	fmt.Fprintf(w, "version:    %d\n", rec.Version)
	fmt.Fprintf(w, "mode:       %s\n", m.Mode)
	fmt.Fprintf(w, "drones:     %d\n", m.DroneCount)
	fmt.Fprintf(w, "grid:       %dx%d\n", m.GridSize, m.GridSize)
	fmt.Fprintf(w, "started:    %s\n", m.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "duration:   %.1fs (%d ticks at %.0f Hz)\n", m.Duration, m.Ticks, m.TickRate)
	fmt.Fprintf(w, "keyframes:  %d (every %.2fs)\n", m.KeyframeCount, m.KeyframeInterval)
	fmt.Fprintf(w, "events:     %d\n", m.EventCount)
	if m.StopReason != "" {
		fmt.Fprintf(w, "stopped:    %s\n", m.StopReason)
	}
}
