package swarm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownPrimitive is returned for a mode naming no known primitive.
var ErrUnknownPrimitive = errors.New("unknown behavior primitive")

// Primitive is one movement rule.
type Primitive uint8

const (
	PrimAvoid Primitive = iota
	PrimFlock
	PrimAlign
	PrimForage
	PrimScatter
	PrimSwarm
	PrimRandom
	PrimDeliver // Overrides everything else while carrying
)

var primitiveNames = [...]string{
	PrimAvoid:   "AVOID",
	PrimFlock:   "FLOCK",
	PrimAlign:   "ALIGN",
	PrimForage:  "FORAGE",
	PrimScatter: "SCATTER",
	PrimSwarm:   "SWARM",
	PrimRandom:  "RANDOM",
	PrimDeliver: "FEED_QUEEN",
}

func (p Primitive) String() string {
	if int(p) < len(primitiveNames) {
		return primitiveNames[p]
	}
	return fmt.Sprintf("primitive(%d)", uint8(p))
}

// aliases maps accepted names, including presets, to primitives.
var aliases = map[string][]Primitive{
	"AVOID":      {PrimAvoid},
	"SEPARATE":   {PrimAvoid},
	"FLOCK":      {PrimFlock},
	"COHESION":   {PrimFlock},
	"ALIGN":      {PrimAlign},
	"FORAGE":     {PrimForage},
	"SCATTER":    {PrimScatter},
	"SWARM":      {PrimSwarm},
	"RANDOM":     {PrimRandom},
	"FEED_QUEEN": {PrimDeliver},
	"DELIVER":    {PrimDeliver},
	"BOIDS":      {PrimAvoid, PrimFlock, PrimAlign},
}

// Weighted is a primitive with its resolved weight.
type Weighted struct {
	Prim   Primitive
	Weight float64
}

// Mode is an ordered set of primitives with weights resolved once.
type Mode struct {
	Name  string // Canonical, comma-joined
	Steps []Weighted
}

// ParseMode parses a comma-separated list such as "FORAGE,AVOID" against
// a weight table keyed by primitive name. Missing weights default to 1.
// Duplicates are dropped, keeping first occurrence order.
func ParseMode(s string, weights map[string]float64) (Mode, error) {
	var m Mode
	seen := make(map[Primitive]bool)
	var names []string

	for _, tok := range strings.Split(s, ",") {
		tok = strings.ToUpper(strings.TrimSpace(tok))
		if tok == "" {
			continue
		}
		prims, ok := aliases[tok]
		if !ok {
			return Mode{}, fmt.Errorf("%w: %q", ErrUnknownPrimitive, tok)
		}
		for _, p := range prims {
			if seen[p] {
				continue
			}
			seen[p] = true
			w, ok := weights[p.String()]
			if !ok {
				w = 1
			}
			m.Steps = append(m.Steps, Weighted{Prim: p, Weight: w})
			names = append(names, p.String())
		}
	}
	if len(m.Steps) == 0 {
		return Mode{}, fmt.Errorf("%w: empty mode %q", ErrUnknownPrimitive, s)
	}
	m.Name = strings.Join(names, ",")
	return m, nil
}

// Has reports whether the mode includes p.
func (m Mode) Has(p Primitive) bool {
	for _, s := range m.Steps {
		if s.Prim == p {
			return true
		}
	}
	return false
}

// Deliver reports whether food is carried to the queen rather than grazed.
func (m Mode) Deliver() bool { return m.Has(PrimDeliver) }
