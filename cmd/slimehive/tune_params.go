package main

import (
	"math"

	"github.com/pthm-cable/slimehive/config"
)

// ParamSpec defines a single tunable parameter.
type ParamSpec struct {
	Name    string  // Human-readable name
	Path    string  // Config path for logging
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Default float64 // Default value
}

// ParamVector holds the set of all tunable parameters.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates the standard set of tunable parameters.
func NewParamVector() *ParamVector {
	return &ParamVector{
		Specs: []ParamSpec{
			// Field
			{Name: "decay_rate", Path: "pheromones.decay_rate", Min: 0.8, Max: 0.99, Default: 0.95},
			{Name: "deposit_amount", Path: "pheromones.deposit_amount", Min: 1, Max: 20, Default: 5},
			{Name: "ghost_deposit", Path: "pheromones.ghost_deposit", Min: 0, Max: 5, Default: 0.5},
			// Behavior
			{Name: "detection_radius", Path: "behavior.detection_radius", Min: 5, Max: 50, Default: 20},
			{Name: "forage_weight", Path: "behavior.weights.FORAGE", Min: 0, Max: 3, Default: 1.5},
			{Name: "avoid_weight", Path: "behavior.weights.AVOID", Min: 0, Max: 3, Default: 2},
			{Name: "flock_weight", Path: "behavior.weights.FLOCK", Min: 0, Max: 3, Default: 0.5},
			// Food
			{Name: "pheromone_boost", Path: "food.pheromone_boost", Min: 1, Max: 10, Default: 3},
			// Swarm makeup
			{Name: "hopper_ratio", Path: "swarm.hopper_ratio", Min: 0, Max: 0.5, Default: 0.2},
		},
	}
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// DefaultVector returns the default parameter values as a slice.
func (pv *ParamVector) DefaultVector() []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = spec.Default
	}
	return v
}

// Normalize converts raw parameter values to [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		clamped[i] = math.Max(spec.Min, math.Min(spec.Max, v[i]))
	}
	return clamped
}

// ApplyToConfig applies parameter values to cfg. Order must match Specs.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) {
	c := pv.Clamp(values)

	cfg.Pheromones.DecayRate = c[0]
	cfg.Pheromones.DepositAmount = c[1]
	cfg.Pheromones.GhostDeposit = c[2]

	cfg.Behavior.DetectionRadius = int(math.Round(c[3]))
	if cfg.Behavior.Weights == nil {
		cfg.Behavior.Weights = make(map[string]float64)
	}
	cfg.Behavior.Weights["FORAGE"] = c[4]
	cfg.Behavior.Weights["AVOID"] = c[5]
	cfg.Behavior.Weights["FLOCK"] = c[6]

	cfg.Food.PheromoneBoost = c[7]
	cfg.Swarm.HopperRatio = c[8]
}

// ExtractFromConfig extracts current parameter values from cfg.
func (pv *ParamVector) ExtractFromConfig(cfg *config.Config) []float64 {
	return []float64{
		cfg.Pheromones.DecayRate,
		cfg.Pheromones.DepositAmount,
		cfg.Pheromones.GhostDeposit,
		float64(cfg.Behavior.DetectionRadius),
		cfg.Behavior.Weights["FORAGE"],
		cfg.Behavior.Weights["AVOID"],
		cfg.Behavior.Weights["FLOCK"],
		cfg.Food.PheromoneBoost,
		cfg.Swarm.HopperRatio,
	}
}
