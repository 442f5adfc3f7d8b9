package main

import (
	"context"
	"math"
	"sync"

	"github.com/pthm-cable/slimehive/config"
	"github.com/pthm-cable/slimehive/engine"
	"github.com/pthm-cable/slimehive/swarm"
)

// FitnessEvaluator runs headless hives and scores how well they feed the
// queen while covering the field.
type FitnessEvaluator struct {
	params     *ParamVector
	maxTicks   uint64
	seeds      []int64
	baseConfig *config.Config

	mu          sync.Mutex
	lastQuality float64 // Mean coverage of the most recent Evaluate call
}

// NewFitnessEvaluator creates a new evaluator. baseCfg is copied per run.
func NewFitnessEvaluator(params *ParamVector, maxTicks uint64, seeds []int64, baseCfg *config.Config) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:     params,
		maxTicks:   maxTicks,
		seeds:      seeds,
		baseConfig: baseCfg,
	}
}

// LastQuality returns the mean coverage from the most recent evaluation.
func (fe *FitnessEvaluator) LastQuality() float64 {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastQuality
}

// runResult holds the outcome of a single hive run.
type runResult struct {
	ticks   uint64 // Ticks survived, maxTicks when the swarm lasted
	metrics swarm.Metrics
	extinct bool
	failed  bool
}

// Evaluate computes fitness for a parameter vector (lower = better).
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	cfg := fe.baseConfig.Clone()
	fe.params.ApplyToConfig(cfg, x)
	if err := cfg.Refresh(); err != nil {
		return math.Inf(1)
	}

	// Run all seeds in parallel
	results := make([]runResult, len(fe.seeds))
	var wg sync.WaitGroup
	for i, seed := range fe.seeds {
		wg.Add(1)
		go func(idx int, s int64) {
			defer wg.Done()
			results[idx] = fe.runHive(cfg, s)
		}(i, seed)
	}
	wg.Wait()

	var total, coverage float64
	for _, r := range results {
		total += fe.computeFitness(r)
		coverage += r.metrics.CoveragePercent
	}
	n := float64(len(fe.seeds))

	fe.mu.Lock()
	fe.lastQuality = coverage / n
	fe.mu.Unlock()

	return total / n
}

// runHive runs one seed to completion with every file output disabled.
func (fe *FitnessEvaluator) runHive(base *config.Config, seed int64) runResult {
	cfg := base.Clone()
	cfg.Export.Path = ""
	cfg.Recorder.Enabled = false
	cfg.FlightLog.Enabled = false
	cfg.Tick.StopOnExtinct = true

	eng, err := engine.New(cfg, engine.Options{Seed: seed, Headless: true, MaxTicks: fe.maxTicks})
	if err != nil {
		return runResult{failed: true}
	}
	if err := eng.Run(context.Background()); err != nil {
		return runResult{failed: true}
	}

	res := eng.Result()
	return runResult{
		ticks:   res.Ticks,
		metrics: swarm.Measure(eng.Registry(), eng.Field(), eng.Food()),
		extinct: res.Reason == engine.ReasonExtinction,
	}
}

// computeFitness rewards delivered food, then coverage, scaled by the
// fraction of the run the swarm survived.
func (fe *FitnessEvaluator) computeFitness(r runResult) float64 {
	if r.failed {
		return math.Inf(1)
	}
	survived := 1.0
	if r.extinct && fe.maxTicks > 0 {
		survived = float64(r.ticks) / float64(fe.maxTicks)
	}
	score := r.metrics.QueenStock + float64(r.metrics.Trips) + r.metrics.CoveragePercent
	return -survived * (1 + score)
}
