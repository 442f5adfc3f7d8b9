// Package components defines ECS components for hive agents.
package components

import (
	"fmt"
	"time"
)

// MaxHunger is a fully fed agent.
const MaxHunger = 100

// Kind distinguishes hardware drones from simulated ones.
type Kind uint8

const (
	KindPhysical Kind = iota
	KindVirtual
)

func (k Kind) String() string {
	if k == KindVirtual {
		return "virtual"
	}
	return "physical"
}

// Role selects how an agent moves.
type Role uint8

const (
	RoleWorker Role = iota // Incremental steps from weighted primitives
	RoleHopper             // Radial leaps on a cooldown
)

func (r Role) String() string {
	switch r {
	case RoleWorker:
		return "worker"
	case RoleHopper:
		return "hopper"
	}
	return fmt.Sprintf("role(%d)", uint8(r))
}

// ParseRole is the inverse of Role.String.
func ParseRole(s string) (Role, error) {
	switch s {
	case "worker":
		return RoleWorker, nil
	case "hopper":
		return RoleHopper, nil
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

// State is what an alive agent is doing.
type State uint8

const (
	StateSearching State = iota
	StateCarrying
	StateScouting
)

func (s State) String() string {
	switch s {
	case StateSearching:
		return "searching"
	case StateCarrying:
		return "carrying"
	case StateScouting:
		return "scouting"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// DefaultState returns the state an agent of role starts in.
func DefaultState(r Role) State {
	if r == RoleHopper {
		return StateScouting
	}
	return StateSearching
}

// Drone holds agent identity and behavioral state.
type Drone struct {
	ID    string
	Seq   int // Numeric suffix of virtual ids, used to pick resize victims
	Kind  Kind
	Role  Role
	State State

	Hunger      int     // [0, MaxHunger]
	Carry       float64 // Food held while carrying
	Frozen      bool    // Starved under the freeze policy
	HopCooldown int     // Ticks until the next hop

	RSSI     int
	LastSeen time.Time
}

// Desperation is the normalized hunger deficit in [0,1].
func (d *Drone) Desperation() float64 {
	return 1 - float64(d.Hunger)/MaxHunger
}

// Feed resets hunger and clears the frozen flag.
func (d *Drone) Feed() {
	d.Hunger = MaxHunger
	d.Frozen = false
}

// Starve lowers hunger by n, never below zero.
func (d *Drone) Starve(n int) {
	d.Hunger -= n
	if d.Hunger < 0 {
		d.Hunger = 0
	}
}
