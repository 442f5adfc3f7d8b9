// Package engine runs the hive tick loop. The Engine is the single writer
// of the field, registry, estimator and food; everything else talks to it
// through bounded inboxes and reads only published snapshots.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/paulmach/orb"

	"github.com/pthm-cable/slimehive/config"
	"github.com/pthm-cable/slimehive/estimator"
	"github.com/pthm-cable/slimehive/field"
	"github.com/pthm-cable/slimehive/ingress"
	"github.com/pthm-cable/slimehive/swarm"
	"github.com/pthm-cable/slimehive/telemetry"
)

// ErrExtinction is the stop cause when every agent has died. It is
// reported in the Result, not returned from Run.
var ErrExtinction = errors.New("swarm extinct")

// Stop reasons recorded in Result and recording metadata.
const (
	ReasonStopped    = "stopped"
	ReasonDuration   = "duration"
	ReasonExtinction = "extinction"
)

// Options configures an Engine beyond the hive config.
type Options struct {
	Seed      int64            // 0 = time-based
	Clock     func() time.Time // nil = time.Now
	Metrics   *telemetry.Metrics
	OutputDir string // CSV telemetry and config snapshot; empty disables
	LogStats  bool

	// Headless runs ticks back to back instead of at the configured rate
	Headless bool
	MaxTicks uint64 // 0 = until stopped
}

// Result describes how a run ended.
type Result struct {
	Reason        string
	Cause         error // ErrExtinction when the swarm died out
	Ticks         uint64
	Elapsed       float64 // Simulated seconds
	RecordingPath string
}

// Engine holds the complete hive state.
type Engine struct {
	cfg  *config.Config
	opts Options
	rng  *rand.Rand
	now  func() time.Time

	pher      *field.Pheromone
	est       *estimator.Estimator
	registry  *swarm.Registry
	behavior  *swarm.Behavior
	food      *swarm.Food
	lifecycle *swarm.Lifecycle

	// Inboxes, written by any goroutine
	deposits     chan ingress.DepositEvent
	commands     chan ingress.Command
	dropped      atomic.Int64
	decodeErrors atomic.Int64

	// Output
	exporter  *telemetry.Exporter
	recorder  *telemetry.Recorder
	flightLog *telemetry.FlightLogger
	collector *telemetry.Collector
	perf      *telemetry.PerfCollector
	output    *telemetry.OutputManager
	metrics   *telemetry.Metrics

	// State
	tick      uint64
	elapsed   float64
	extinct   bool
	startedAt time.Time
	result    Result
}

// New creates an engine owning a private copy of cfg.
func New(cfg *config.Config, opts Options) (*Engine, error) {
	cfg = cfg.Clone()

	mode, err := swarm.ParseMode(cfg.Swarm.Mode, cfg.Behavior.Weights)
	if err != nil {
		return nil, fmt.Errorf("swarm mode: %w", err)
	}
	if _, err := swarm.ParseDeathPolicy(cfg.Hunger.DeathMode); err != nil {
		return nil, fmt.Errorf("death mode: %w", err)
	}
	method, err := estimator.ParseMethod(cfg.Position.Method)
	if err != nil {
		return nil, fmt.Errorf("position method: %w", err)
	}

	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Metrics == nil {
		opts.Metrics = telemetry.NewMetrics(nil)
	}

	e := &Engine{
		cfg:      cfg,
		opts:     opts,
		rng:      rand.New(rand.NewSource(seed)),
		now:      opts.Clock,
		deposits: make(chan ingress.DepositEvent, cfg.Tick.InboxCapacity),
		commands: make(chan ingress.Command, cfg.Tick.InboxCapacity),
		metrics:  opts.Metrics,
	}

	e.pher = field.New(cfg.Grid.Size, cfg.Pheromones.MaxValue, cfg.Derived.GhostRatio)
	e.pher.SetDiffusion(cfg.Pheromones.Diffusion)

	anchors := make([]estimator.Anchor, 0, len(cfg.Anchors))
	for _, a := range cfg.Anchors {
		anchors = append(anchors, estimator.Anchor{ID: a.ID, Pos: orb.Point{a.X, a.Y}})
	}
	e.est = estimator.New(anchors, estimator.Options{
		StaleAfter:  time.Duration(cfg.Position.StaleAfter * float64(time.Second)),
		MaxSamples:  cfg.Position.MaxSamples,
		MinAnchors:  cfg.Position.MinAnchors,
		Method:      method,
		TxPower:     cfg.Position.TxPower,
		PathLossExp: cfg.Position.PathLossExp,
		Now:         e.now,
	})

	bounds := swarm.BoundsFrom(cfg.Boundary)
	e.registry = swarm.NewRegistry(bounds, cfg.Swarm.TrailLength, e.est, e.pher, swarm.DepositOptions{
		WeakRSSI:    cfg.Position.WeakRSSI,
		WeakPenalty: cfg.Position.WeakPenalty,
	})
	e.registry.SetClock(e.now)
	e.behavior = swarm.NewBehavior(cfg, mode, bounds, e.rng)
	e.lifecycle = swarm.NewLifecycle(cfg, e.rng)
	e.food = e.layoutFood()

	e.exporter = telemetry.NewExporter(cfg.Export.Path, cfg.Export.ArchiveDir)
	if cfg.Recorder.Enabled {
		e.recorder = telemetry.NewRecorder(cfg.Recorder.KeyframeInterval)
	}
	if cfg.FlightLog.Enabled {
		e.flightLog, err = telemetry.NewFlightLogger(cfg.FlightLog.Dir, e.now())
		if err != nil {
			return nil, err
		}
	}
	e.collector = telemetry.NewCollector(cfg.Telemetry.StatsWindow, cfg.Derived.TickSeconds)
	e.perf = telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow)
	e.output, err = telemetry.NewOutputManager(opts.OutputDir)
	if err != nil {
		e.flightLog.Close()
		return nil, err
	}
	if err := e.output.WriteConfig(cfg); err != nil {
		slog.Error("failed to write config", "error", err)
	}

	return e, nil
}

func (e *Engine) layoutFood() *swarm.Food {
	queen := orb.Point{float64(e.cfg.Derived.QueenX), float64(e.cfg.Derived.QueenY)}
	return swarm.NewFood(swarm.LayoutFood(e.cfg.Food.Sources, e.cfg.Food, e.registry.Bounds(), queen, e.rng))
}

// SubmitDeposit enqueues a deposit without blocking. A full inbox drops
// the deposit and reports false.
func (e *Engine) SubmitDeposit(ev ingress.DepositEvent) bool {
	select {
	case e.deposits <- ev:
		return true
	default:
		e.dropped.Add(1)
		e.metrics.Dropped.WithLabelValues("deposit").Inc()
		return false
	}
}

// SubmitCommand enqueues a control command without blocking.
func (e *Engine) SubmitCommand(cmd ingress.Command) bool {
	select {
	case e.commands <- cmd:
		return true
	default:
		e.dropped.Add(1)
		e.metrics.Dropped.WithLabelValues("command").Inc()
		slog.Warn("command dropped, inbox full", "command", cmd.Kind.String())
		return false
	}
}

// RecordDecodeError counts a payload the transport could not decode.
func (e *Engine) RecordDecodeError() { e.decodeErrors.Add(1) }

// Latest returns the last published state.
func (e *Engine) Latest() []byte { return e.exporter.Latest() }

// Exporter returns the state exporter.
func (e *Engine) Exporter() *telemetry.Exporter { return e.exporter }

// Tick returns the number of completed ticks.
func (e *Engine) Tick() uint64 { return e.tick }

// Result returns how the last run ended.
func (e *Engine) Result() Result { return e.result }

// Registry exposes the agent registry. Only safe while Run is not active.
func (e *Engine) Registry() *swarm.Registry { return e.registry }

// Field exposes the pheromone field. Only safe while Run is not active.
func (e *Engine) Field() *field.Pheromone { return e.pher }

// Food exposes the food model. Only safe while Run is not active.
func (e *Engine) Food() *swarm.Food { return e.food }

// Mode returns the active behavior mode name.
func (e *Engine) Mode() string { return e.behavior.Mode().Name }
