package engine

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/pthm-cable/slimehive/components"
	"github.com/pthm-cable/slimehive/swarm"
	"github.com/pthm-cable/slimehive/telemetry"
)

// Run spawns the initial virtual swarm and ticks until ctx is done, the
// tick budget is spent or the swarm dies out (when configured to stop).
// Outputs are finalized before it returns.
func (e *Engine) Run(ctx context.Context) error {
	e.Start()

	interval := time.Duration(e.cfg.Derived.TickSeconds * float64(time.Second))
	var ticker *time.Ticker
	if !e.opts.Headless {
		ticker = time.NewTicker(interval)
		defer ticker.Stop()
		e.perf.SetBudget(interval)
	}

	reason := ReasonStopped
	var cause error
loop:
	for {
		if e.opts.Headless {
			if ctx.Err() != nil {
				break loop
			}
		} else {
			select {
			case <-ctx.Done():
				break loop
			case <-ticker.C:
			}
		}

		e.Step()

		if e.extinct && e.cfg.Tick.StopOnExtinct {
			reason, cause = ReasonExtinction, ErrExtinction
			slog.Warn("swarm extinct, stopping", "tick", e.tick)
			break loop
		}
		if e.opts.MaxTicks > 0 && e.tick >= e.opts.MaxTicks {
			reason = ReasonDuration
			break loop
		}
	}

	return e.Finish(reason, cause)
}

// Start spawns the configured virtual swarm, publishes the initial state
// and begins recording. Run calls it; tests driving Step call it directly.
func (e *Engine) Start() {
	e.startedAt = e.now()
	added, _ := e.registry.Resize(e.cfg.Swarm.VirtualCount, e.cfg.Swarm.Spawn, e.cfg.Swarm.HopperRatio, e.rng)

	initial := e.state()
	e.publish(initial)
	e.recorder.Start(telemetry.Metadata{
		Mode:       e.Mode(),
		DroneCount: e.registry.VirtualCount(),
		GridSize:   e.cfg.Grid.Size,
		TickRate:   e.cfg.Tick.Rate,
		StartedAt:  e.startedAt.UTC(),
	}, initial)

	slog.Info("hive started",
		"mode", e.Mode(),
		"virtual", len(added),
		"food_sources", len(e.food.Sources),
		"tick_rate", e.cfg.Tick.Rate,
		"headless", e.opts.Headless,
	)
}

// Step runs a single tick.
func (e *Engine) Step() {
	e.perf.StartTick()

	// 1. Apply queued commands and deposits
	e.perf.StartPhase(telemetry.PhaseIngest)
	e.drainInbox()

	// 2. Decay (and optional diffusion)
	e.perf.StartPhase(telemetry.PhaseDecay)
	e.pher.Tick(e.cfg.Pheromones.DecayRate)

	// 3. Move virtual agents
	e.perf.StartPhase(telemetry.PhaseBehavior)
	events := e.behavior.Step(e.registry, e.pher, e.food)

	// 4. Pickup, delivery and grazing
	e.perf.StartPhase(telemetry.PhaseFood)
	events = append(events, e.food.Interact(e.registry, e.pher, e.cfg, e.behavior.Mode().Deliver())...)

	// 5. Hunger and death policy
	e.perf.StartPhase(telemetry.PhaseLifecycle)
	before := e.registry.Len()
	events = append(events, e.lifecycle.Step(e.tick, e.registry)...)
	switch {
	case before > 0 && e.registry.Len() == 0:
		e.extinct = true
		events = append(events, swarm.Event{Kind: swarm.EventExtinction})
	case e.registry.Len() > 0:
		e.extinct = false
	}

	e.tick++
	e.elapsed = float64(e.tick) * e.cfg.Derived.TickSeconds

	// 6. Events and keyframes
	e.perf.StartPhase(telemetry.PhaseRecord)
	e.collector.RecordEvents(events)
	for _, ev := range events {
		e.metrics.Events.WithLabelValues(string(ev.Kind)).Inc()
		e.recorder.RecordEvent(telemetry.NewSwarmEvent(e.elapsed, ev))
	}
	s := e.state()
	e.recorder.RecordTick(e.elapsed, s)

	// 7. Export and periodic telemetry
	e.perf.StartPhase(telemetry.PhaseExport)
	e.publish(s)
	e.flushTelemetry()

	e.observe(e.perf.EndTick())
}

// drainInbox applies what is queued now. Messages arriving meanwhile wait
// for the next tick, so a flood cannot stall the loop.
func (e *Engine) drainInbox() {
	for n := len(e.commands); n > 0; n-- {
		e.apply(<-e.commands)
	}
	for n := len(e.deposits); n > 0; n-- {
		e.applyDeposit(<-e.deposits)
	}

	if n := e.dropped.Swap(0); n > 0 {
		e.collector.RecordDrop(int(n))
	}
	for n := e.decodeErrors.Swap(0); n > 0; n-- {
		e.collector.RecordDecodeError()
	}
}

func (e *Engine) state() telemetry.HiveState {
	return telemetry.BuildState(telemetry.StateInput{
		Config:   e.cfg,
		Registry: e.registry,
		Field:    e.pher,
		Food:     e.food,
		Mode:     e.Mode(),
		Tick:     e.tick,
		Elapsed:  e.elapsed,
		Dead:     len(e.lifecycle.Dead),
		Extinct:  e.extinct,
	})
}

func (e *Engine) publish(s telemetry.HiveState) {
	if err := e.exporter.Publish(s); err != nil {
		e.metrics.ExportErrors.Inc()
		slog.Error("failed to export state", "error", err)
	}
}

// observe updates the Prometheus gauges after a tick.
func (e *Engine) observe(d time.Duration) {
	e.metrics.Ticks.Inc()
	e.metrics.TickDuration.Observe(d.Seconds())

	var physical, virtual int
	e.registry.Each(func(a swarm.Agent) {
		if a.Kind == components.KindVirtual {
			virtual++
		} else {
			physical++
		}
	})
	e.metrics.Agents.WithLabelValues("physical").Set(float64(physical))
	e.metrics.Agents.WithLabelValues("virtual").Set(float64(virtual))
	e.metrics.ActiveTotal.Set(e.pher.Total())
	e.metrics.QueenStock.Set(e.food.QueenStock)
}

// flushTelemetry writes swarm metrics once per simulated second and window
// stats when a window closes.
func (e *Engine) flushTelemetry() {
	if perSecond := uint64(e.cfg.Tick.Rate + 0.5); perSecond > 0 && e.tick%perSecond == 0 {
		m := swarm.Measure(e.registry, e.pher, e.food)
		m.Tick, m.Time = e.tick, e.elapsed
		if err := e.output.WriteMetrics(m); err != nil {
			slog.Error("failed to write metrics", "error", err)
		}
	}

	if !e.collector.ShouldFlush(e.tick) {
		return
	}

	stats := e.collector.Flush(e.tick, e.registry, e.pher, e.food)
	perfStats := e.perf.Stats()

	if e.opts.LogStats {
		stats.LogStats()
		perfStats.LogStats()
	}

	if err := e.output.WriteTelemetry(stats); err != nil {
		slog.Error("failed to write telemetry", "error", err)
	}
	if err := e.output.WritePerf(perfStats, stats.WindowEndTick); err != nil {
		slog.Error("failed to write perf", "error", err)
	}
}

// Finish publishes the final state, saves the recording and closes every
// output. It records the result and returns the first close error.
func (e *Engine) Finish(reason string, cause error) error {
	e.publish(e.state())

	e.result = Result{Reason: reason, Cause: cause, Ticks: e.tick, Elapsed: e.elapsed}

	if rec := e.recorder.Finish(telemetry.Grids{Active: e.pher.Active(), Ghost: e.pher.Ghost()}, e.elapsed, e.tick, reason); rec != nil {
		name := telemetry.RecordingName(rec.Metadata.Mode, rec.Metadata.DroneCount, e.startedAt)
		path := filepath.Join(e.cfg.Recorder.Dir, name)
		if err := telemetry.Save(path, rec); err != nil {
			e.metrics.ExportErrors.Inc()
			slog.Error("failed to save recording", "error", err)
		} else {
			e.result.RecordingPath = path
			slog.Info("recording saved", "path", path, "keyframes", rec.Metadata.KeyframeCount, "events", rec.Metadata.EventCount)
		}
	}

	slog.Info("hive stopped", "reason", reason, "ticks", e.tick, "elapsed", e.elapsed)

	var firstErr error
	if err := e.flightLog.Close(); err != nil {
		firstErr = err
	}
	if err := e.output.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
