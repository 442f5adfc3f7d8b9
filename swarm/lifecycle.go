package swarm

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/pthm-cable/slimehive/components"
	"github.com/pthm-cable/slimehive/config"
)

// DeathPolicy decides what happens to an agent whose hunger reaches zero.
type DeathPolicy uint8

const (
	DeathFreeze  DeathPolicy = iota // Stay in place, rarely act, revive when fed
	DeathDie                        // Removed and recorded as dead
	DeathRespawn                    // Reborn at the queen with full hunger
)

func (p DeathPolicy) String() string {
	switch p {
	case DeathFreeze:
		return "freeze"
	case DeathDie:
		return "die"
	case DeathRespawn:
		return "respawn"
	}
	return fmt.Sprintf("death(%d)", uint8(p))
}

// ParseDeathPolicy accepts freeze, die and respawn, plus the legacy
// toggles "no" (freeze) and "yes" (die).
func ParseDeathPolicy(s string) (DeathPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "freeze", "no", "":
		return DeathFreeze, nil
	case "die", "yes":
		return DeathDie, nil
	case "respawn":
		return DeathRespawn, nil
	}
	return DeathFreeze, fmt.Errorf("unknown death mode %q", s)
}

// DeadAgent records where and when an agent died.
type DeadAgent struct {
	ID   string `json:"id"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
	Tick uint64 `json:"tick"`
	Role string `json:"role"`
}

// Lifecycle applies hunger decay and the death policy to virtual agents.
type Lifecycle struct {
	cfg  *config.Config
	rng  *rand.Rand
	Dead []DeadAgent
}

// NewLifecycle creates a lifecycle manager reading cfg every tick.
func NewLifecycle(cfg *config.Config, rng *rand.Rand) *Lifecycle {
	return &Lifecycle{cfg: cfg, rng: rng}
}

// Policy returns the configured death policy, falling back to freeze.
func (l *Lifecycle) Policy() DeathPolicy {
	p, err := ParseDeathPolicy(l.cfg.Hunger.DeathMode)
	if err != nil {
		return DeathFreeze
	}
	return p
}

// Reset forgets recorded deaths.
func (l *Lifecycle) Reset() { l.Dead = nil }

// Step decays hunger on the configured interval and resolves starved
// agents. Physical agents are never touched.
func (l *Lifecycle) Step(tick uint64, r *Registry) []Event {
	interval := uint64(l.cfg.Hunger.DecayInterval)
	if interval == 0 {
		interval = 1
	}
	decay := tick%interval == 0
	policy := l.Policy()

	// Collect first, mutate after
	var starved []Agent
	for _, a := range r.Agents() {
		if a.Kind != components.KindVirtual {
			continue
		}
		if decay {
			lose := a.Role == components.RoleWorker || l.rng.Float64() < l.cfg.Hunger.HopperDecayFraction
			if lose && a.Hunger > 0 {
				r.mutate(a.ID, func(d *components.Drone) { d.Starve(1) })
				a.Hunger--
			}
		}
		if a.Hunger == 0 {
			starved = append(starved, a)
		}
	}

	var events []Event
	for _, a := range starved {
		death := Event{Kind: EventDeath, AgentID: a.ID, X: a.Pos.X, Y: a.Pos.Y, Role: a.Role.String()}

		switch policy {
		case DeathFreeze:
			if a.Frozen {
				continue
			}
			r.mutate(a.ID, func(d *components.Drone) { d.Frozen = true })
			events = append(events, death)

		case DeathDie:
			r.Remove(a.ID)
			l.Dead = append(l.Dead, DeadAgent{ID: a.ID, X: a.Pos.X, Y: a.Pos.Y, Tick: tick, Role: a.Role.String()})
			events = append(events, death)

		case DeathRespawn:
			r.Remove(a.ID)
			x, y := l.nearQueen(r.Bounds())
			reborn := components.Drone{
				ID:     a.ID,
				Seq:    a.Seq,
				Kind:   components.KindVirtual,
				Role:   a.Role,
				State:  components.DefaultState(a.Role),
				Hunger: components.MaxHunger,
			}
			if err := r.Spawn(reborn, x, y); err != nil {
				continue
			}
			events = append(events, death, Event{Kind: EventRespawn, AgentID: a.ID, X: x, Y: y, Role: a.Role.String()})
		}
	}
	return events
}

// nearQueen picks a cell within the respawn jitter of the queen.
func (l *Lifecycle) nearQueen(b Bounds) (int, int) {
	x, y := l.cfg.Derived.QueenX, l.cfg.Derived.QueenY
	if j := l.cfg.Hunger.RespawnJitter; j > 0 {
		x += l.rng.Intn(2*j+1) - j
		y += l.rng.Intn(2*j+1) - j
	}
	return b.Clamp(x, y)
}

// Alive counts virtual agents that are not frozen.
func Alive(r *Registry) int {
	var n int
	for _, a := range r.Agents() {
		if a.Kind == components.KindVirtual && !a.Frozen {
			n++
		}
	}
	return n
}
