package swarm

import (
	"math"
	"math/rand"

	"github.com/paulmach/orb"

	"github.com/pthm-cable/slimehive/components"
	"github.com/pthm-cable/slimehive/config"
	"github.com/pthm-cable/slimehive/field"
)

type vec struct{ X, Y float64 }

func (v vec) add(o vec) vec { return vec{v.X + o.X, v.Y + o.Y} }

func (v vec) scale(k float64) vec { return vec{v.X * k, v.Y * k} }

func (v vec) length() float64 { return math.Hypot(v.X, v.Y) }

func toward(from, to orb.Point) vec { return vec{to[0] - from[0], to[1] - from[1]}.unit() }

func posPoint(p components.Position) orb.Point {
	return orb.Point{float64(p.X), float64(p.Y)}
}

func (v vec) unit() vec {
	l := v.length()
	if l == 0 {
		return vec{}
	}
	return vec{v.X / l, v.Y / l}
}

// Behavior moves virtual agents one step per tick. Workers combine the
// mode's weighted primitives; hoppers leap on a cooldown.
type Behavior struct {
	cfg  *config.Config
	rng  *rand.Rand
	mode Mode
	grid *SpatialGrid

	// Scratch buffer reused across agents
	neighbors []Neighbor
}

// NewBehavior creates a behavior engine. cfg is read every tick, so live
// config changes take effect immediately.
func NewBehavior(cfg *config.Config, mode Mode, bounds Bounds, rng *rand.Rand) *Behavior {
	cell := int(math.Ceil(math.Max(cfg.Behavior.NeighborRadius, cfg.Behavior.SeparationDistance)))
	return &Behavior{
		cfg:  cfg,
		rng:  rng,
		mode: mode,
		grid: NewSpatialGrid(bounds, cell),
	}
}

// Mode returns the active mode.
func (b *Behavior) Mode() Mode { return b.mode }

// SetMode replaces the active mode.
func (b *Behavior) SetMode(m Mode) { b.mode = m }

// Step moves every virtual agent once, deposits pheromone for workers and
// handles hopper landings. Decisions read a snapshot taken at the start of
// the step, so agent order does not matter.
func (b *Behavior) Step(r *Registry, pher *field.Pheromone, food *Food) []Event {
	agents := r.Agents()
	if len(agents) == 0 {
		return nil
	}
	b.grid.Rebuild(agents)
	centroid := meanPosition(agents)

	var events []Event
	for i := range agents {
		a := &agents[i]
		if a.Kind != components.KindVirtual {
			continue
		}
		// Starved agents under the freeze policy rarely act
		if a.Frozen && b.rng.Float64() >= b.cfg.Hunger.FreezeActChance {
			continue
		}

		if a.Role == components.RoleHopper {
			events = append(events, b.hop(r, pher, food, a)...)
			continue
		}

		nx, ny := a.Pos.X, a.Pos.Y
		if b.rng.Float64() < b.cfg.Behavior.MoveProbability {
			dx, dy := b.decide(agents, i, centroid, pher, food)
			nx, ny = b.resolve(r.Bounds(), food, a.Pos, dx, dy)
		}
		r.step(a.ID, nx, ny)
		pher.Deposit(nx, ny, b.cfg.Pheromones.DepositAmount)
	}
	return events
}

// decide returns the discrete step for the worker at agents[i].
func (b *Behavior) decide(agents []Agent, i int, centroid orb.Point, pher *field.Pheromone, food *Food) (int, int) {
	a := &agents[i]
	thr := b.cfg.Behavior.StepThreshold

	// Carrying agents head straight home
	if a.State == components.StateCarrying {
		queen := orb.Point{float64(b.cfg.Derived.QueenX), float64(b.cfg.Derived.QueenY)}
		v := vec{queen[0] - float64(a.Pos.X), queen[1] - float64(a.Pos.Y)}
		return sign(v.X, 0), sign(v.Y, 0)
	}

	radius := math.Max(b.cfg.Behavior.NeighborRadius, b.cfg.Behavior.SeparationDistance)
	b.neighbors = b.grid.QueryRadiusInto(b.neighbors[:0], agents, a.Pos.X, a.Pos.Y, radius, i)

	var v vec
	for _, step := range b.mode.Steps {
		var p vec
		switch step.Prim {
		case PrimAvoid:
			p = b.avoid(a)
		case PrimFlock:
			p = b.flock(a, centroid)
		case PrimAlign:
			p = b.align(agents)
		case PrimForage:
			p = b.forage(a, pher, food)
		case PrimScatter:
			p = b.scatter(a)
		case PrimSwarm:
			p = toward(posPoint(a.Pos), centroid)
		case PrimRandom:
			p = b.randomVec(1)
		}
		v = v.add(p.scale(step.Weight))
	}

	dx, dy := sign(v.X, thr), sign(v.Y, thr)
	if dx == 0 && dy == 0 && b.rng.Float64() < b.cfg.Behavior.RandomFallback {
		dx, dy = b.rng.Intn(3)-1, b.rng.Intn(3)-1
	}
	return dx, dy
}

// avoid pushes away from neighbors inside the separation distance,
// weighted by inverse distance. Hungry agents tolerate crowding.
func (b *Behavior) avoid(a *Agent) vec {
	var v vec
	for _, n := range b.neighbors {
		if n.Dist >= b.cfg.Behavior.SeparationDistance {
			continue
		}
		away := vec{-n.DX, -n.DY}.unit()
		if n.Dist == 0 {
			away = b.randomVec(1).unit()
		}
		v = v.add(away.scale(1 / math.Max(n.Dist, 0.5)))
	}
	return v.scale(1 - a.Desperation())
}

// flock steers toward the mean neighbor offset, or toward the swarm
// centroid when no neighbor is in range.
func (b *Behavior) flock(a *Agent, centroid orb.Point) vec {
	var sum vec
	var n int
	for _, nb := range b.neighbors {
		if nb.Dist > b.cfg.Behavior.NeighborRadius {
			continue
		}
		sum = sum.add(vec{nb.DX, nb.DY})
		n++
	}
	if n == 0 {
		return toward(posPoint(a.Pos), centroid)
	}
	return sum.scale(1 / float64(n)).unit()
}

// align follows the mean velocity of neighbors.
func (b *Behavior) align(agents []Agent) vec {
	var sum vec
	var n int
	for _, nb := range b.neighbors {
		if nb.Dist > b.cfg.Behavior.NeighborRadius {
			continue
		}
		vel := agents[nb.Index].Vel
		sum = sum.add(vec{float64(vel.X), float64(vel.Y)})
		n++
	}
	if n == 0 {
		return vec{}
	}
	return sum.scale(1 / float64(n)).unit()
}

// forage heads for the nearest visible food; the detection radius widens
// with desperation. Without visible food it climbs the Ghost field, and
// without any signal it wanders, more erratically when hungry.
func (b *Behavior) forage(a *Agent, pher *field.Pheromone, food *Food) vec {
	desperation := a.Desperation()
	radius := float64(b.cfg.Behavior.DetectionRadius) * (1 + desperation)
	if s, _, ok := food.Nearest(a.Pos.X, a.Pos.Y, radius); ok {
		return toward(posPoint(a.Pos), s.Point())
	}

	best := 0.0
	var bx, by int
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			if g := pher.GhostAt(a.Pos.X+dx, a.Pos.Y+dy); g > best {
				best, bx, by = g, dx, dy
			}
		}
	}
	if best > 0 {
		return vec{float64(bx), float64(by)}.unit()
	}

	return b.randomVec(1 + desperation)
}

// scatter pushes away from the boundary center.
func (b *Behavior) scatter(a *Agent) vec {
	v := toward(b.boundsCenter(), posPoint(a.Pos))
	if v == (vec{}) {
		return b.randomVec(1).unit()
	}
	return v
}

func (b *Behavior) boundsCenter() orb.Point {
	return BoundsFrom(b.cfg.Boundary).Center()
}

// randomVec returns a vector with components uniform in [-amp, amp].
func (b *Behavior) randomVec(amp float64) vec {
	return vec{(b.rng.Float64()*2 - 1) * amp, (b.rng.Float64()*2 - 1) * amp}
}

// resolve applies a step, clamps it to the boundary and steers around
// food footprints: a blocked diagonal retries x-only then y-only before
// holding in place. Agents already inside a footprint may move freely.
func (b *Behavior) resolve(bounds Bounds, food *Food, pos components.Position, dx, dy int) (int, int) {
	nx, ny := bounds.Clamp(pos.X+dx, pos.Y+dy)
	if !food.Blocks(nx, ny) || food.Blocks(pos.X, pos.Y) {
		return nx, ny
	}
	if dx != 0 {
		if x, y := bounds.Clamp(pos.X+dx, pos.Y); !food.Blocks(x, y) {
			return x, y
		}
	}
	if dy != 0 {
		if x, y := bounds.Clamp(pos.X, pos.Y+dy); !food.Blocks(x, y) {
			return x, y
		}
	}
	return pos.X, pos.Y
}

// hop handles one tick of a hopper: count down, then leap a fixed radial
// distance and inspect the landing cell for food.
func (b *Behavior) hop(r *Registry, pher *field.Pheromone, food *Food, a *Agent) []Event {
	if a.HopCooldown > 0 {
		r.mutate(a.ID, func(d *components.Drone) { d.HopCooldown-- })
		return nil
	}

	angle := b.rng.Float64() * 2 * math.Pi
	dist := b.cfg.Hopper.Distance
	nx, ny := r.Bounds().Clamp(
		a.Pos.X+int(math.Round(math.Cos(angle)*dist)),
		a.Pos.Y+int(math.Round(math.Sin(angle)*dist)),
	)
	r.step(a.ID, nx, ny)
	r.mutate(a.ID, func(d *components.Drone) { d.HopCooldown = b.cfg.Hopper.Cooldown })

	return b.land(r, pher, food, a.ID, nx, ny)
}

// land feeds a hopper next to food and leaves a strong found-food beacon,
// or a weaker smell beacon when food is only within smelling range.
func (b *Behavior) land(r *Registry, pher *field.Pheromone, food *Food, id string, x, y int) []Event {
	if s, ok := food.Touching(x, y, 1); ok {
		got := s.take(b.cfg.Hopper.Consume)
		r.mutate(id, func(d *components.Drone) { d.Feed() })
		pher.Beacon(x, y, b.cfg.Hopper.FoundBeacon)
		events := []Event{{Kind: EventFoundFood, AgentID: id, X: x, Y: y, Amount: got, FoodID: s.ID}}
		if s.Consumed {
			events = append(events, Event{Kind: EventDepleted, X: int(s.X), Y: int(s.Y), FoodID: s.ID})
		}
		return events
	}
	if s, ok := food.Touching(x, y, b.cfg.Hopper.SmellRadius); ok {
		pher.Beacon(x, y, b.cfg.Hopper.SmellBeacon)
		return []Event{{Kind: EventSmellFood, AgentID: id, X: x, Y: y, FoodID: s.ID}}
	}
	return nil
}

func meanPosition(agents []Agent) orb.Point {
	var sx, sy float64
	for _, a := range agents {
		sx += float64(a.Pos.X)
		sy += float64(a.Pos.Y)
	}
	n := float64(len(agents))
	return orb.Point{sx / n, sy / n}
}
