package engine

import (
	"errors"
	"log/slog"

	"github.com/pthm-cable/slimehive/estimator"
	"github.com/pthm-cable/slimehive/ingress"
	"github.com/pthm-cable/slimehive/swarm"
	"github.com/pthm-cable/slimehive/telemetry"
)

// applyDeposit lands one ingested deposit on the registry and field.
func (e *Engine) applyDeposit(ev ingress.DepositEvent) {
	applied, err := e.registry.ApplyDeposit(ev)
	if errors.Is(err, estimator.ErrUnknownAnchor) {
		slog.Debug("deposit from unknown anchor", "anchor", ev.AnchorID, "agent", ev.AgentID)
	}

	e.collector.RecordDeposit()
	e.metrics.Deposits.Inc()
	if applied.Created {
		slog.Info("physical agent joined", "agent", applied.AgentID, "x", applied.X, "y", applied.Y)
	}

	// The log keeps the resolved cell and the wire intensity; the weak-link
	// penalty is applied again when the row is replayed.
	if err := e.flightLog.Log(telemetry.FlightRecord{
		Timestamp: float64(e.now().UnixNano()) / 1e9,
		DroneID:   applied.AgentID,
		X:         applied.X,
		Y:         applied.Y,
		Intensity: ev.Intensity,
		RSSI:      applied.RSSI,
	}); err != nil {
		e.metrics.ExportErrors.Inc()
		slog.Error("failed to write flight log", "error", err)
	}
}

// apply runs a control command between ticks.
func (e *Engine) apply(cmd ingress.Command) {
	e.metrics.Commands.WithLabelValues(cmd.Kind.String()).Inc()

	switch cmd.Kind {
	case ingress.CommandSetMode:
		mode, err := swarm.ParseMode(cmd.Mode, e.cfg.Behavior.Weights)
		if err != nil {
			slog.Warn("ignoring mode change", "mode", cmd.Mode, "error", err)
			return
		}
		from := e.Mode()
		e.behavior.SetMode(mode)
		e.recorder.RecordEvent(telemetry.NewModeChangeEvent(e.elapsed, from, mode.Name))
		slog.Info("mode changed", "from", from, "to", mode.Name)

	case ingress.CommandSetSwarmCount:
		added, removed := e.registry.Resize(cmd.Count, e.cfg.Swarm.Spawn, e.cfg.Swarm.HopperRatio, e.rng)
		e.recorder.RecordEvent(telemetry.NewResizeEvent(e.elapsed, cmd.Count, added, removed))
		slog.Info("virtual swarm resized", "count", cmd.Count, "added", len(added), "removed", len(removed))

	case ingress.CommandReset:
		e.reset()

	case ingress.CommandSetLive:
		e.cfg.ApplyLive(cmd.Live)
		e.pher.SetGhostRatio(e.cfg.Derived.GhostRatio)
		e.recorder.RecordEvent(telemetry.Event{
			Type: telemetry.EventLiveConfig,
			Time: e.elapsed,
			Data: map[string]any{
				"decay_rate":       e.cfg.Pheromones.DecayRate,
				"deposit_amount":   e.cfg.Pheromones.DepositAmount,
				"ghost_deposit":    e.cfg.Pheromones.GhostDeposit,
				"detection_radius": e.cfg.Behavior.DetectionRadius,
				"pheromone_boost":  e.cfg.Food.PheromoneBoost,
				"death_mode":       e.cfg.Hunger.DeathMode,
			},
		})
		slog.Info("live config applied", "live", e.cfg.Live())

	default:
		slog.Warn("unknown command", "command", cmd.Kind.String())
	}
}

// reset archives the current state, then clears grids, agents, RSSI
// buffers, deaths and food.
func (e *Engine) reset() {
	e.publish(e.state())
	archive, err := e.exporter.Archive(e.now())
	if err != nil {
		e.metrics.ExportErrors.Inc()
		slog.Error("failed to archive state", "error", err)
	}

	e.pher.Clear()
	e.registry.Clear()
	e.est.Reset()
	e.lifecycle.Reset()
	e.food = e.layoutFood()
	e.extinct = false

	e.recorder.RecordEvent(telemetry.NewResetEvent(e.elapsed, archive))
	slog.Info("hive reset", "archive", archive)
}
