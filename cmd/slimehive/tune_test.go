package main

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/slimehive/config"
	"github.com/pthm-cable/slimehive/swarm"
)

func TestParamVector_DefaultsMatchConfig(t *testing.T) {
	pv := NewParamVector()
	assert.InDeltaSlice(t, pv.DefaultVector(), pv.ExtractFromConfig(config.Default()), 1e-9)
}

func TestParamVector_NormalizeRoundTrip(t *testing.T) {
	pv := NewParamVector()
	raw := pv.DefaultVector()
	back := pv.Denormalize(pv.Normalize(raw))
	assert.InDeltaSlice(t, raw, back, 1e-9)

	for i, v := range pv.Normalize(raw) {
		assert.GreaterOrEqual(t, v, 0.0, pv.Specs[i].Name)
		assert.LessOrEqual(t, v, 1.0, pv.Specs[i].Name)
	}
}

func TestParamVector_ApplyClamps(t *testing.T) {
	pv := NewParamVector()
	values := make([]float64, pv.Dim())
	for i := range values {
		values[i] = 1e6
	}

	cfg := config.Default()
	pv.ApplyToConfig(cfg, values)
	require.NoError(t, cfg.Refresh())

	assert.Equal(t, 0.99, cfg.Pheromones.DecayRate)
	assert.Equal(t, 50, cfg.Behavior.DetectionRadius)
	assert.Equal(t, 3.0, cfg.Behavior.Weights["FORAGE"])
	assert.Equal(t, 0.5, cfg.Swarm.HopperRatio)
	assert.InDelta(t, 5.0/20.0, cfg.Derived.GhostRatio, 1e-9)
}

func TestComputeFitness(t *testing.T) {
	fe := NewFitnessEvaluator(NewParamVector(), 100, []int64{1}, config.Default())

	lasted := fe.computeFitness(runResult{ticks: 100, metrics: swarm.Metrics{QueenStock: 10, Trips: 2, CoveragePercent: 8}})
	assert.Equal(t, -21.0, lasted)

	halfway := fe.computeFitness(runResult{ticks: 50, extinct: true, metrics: swarm.Metrics{QueenStock: 10, Trips: 2, CoveragePercent: 8}})
	assert.Equal(t, -10.5, halfway)

	assert.True(t, math.IsInf(fe.computeFitness(runResult{failed: true}), 1))
}

func TestEvaluate_IsDeterministicPerSeed(t *testing.T) {
	cfg := config.Default()
	cfg.Swarm.VirtualCount = 5
	pv := NewParamVector()
	fe := NewFitnessEvaluator(pv, 20, []int64{1, 2}, cfg)

	a := fe.Evaluate(pv.DefaultVector())
	b := fe.Evaluate(pv.DefaultVector())
	assert.False(t, math.IsInf(a, 0))
	assert.Equal(t, a, b)
	assert.Less(t, a, 0.0)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "1m05s", formatDuration(65*time.Second))
	assert.Equal(t, "2h03m04s", formatDuration(2*time.Hour+3*time.Minute+4*time.Second))
}
