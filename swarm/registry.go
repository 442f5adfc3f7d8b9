// Package swarm implements the agent registry, movement behaviors,
// food and hunger lifecycle of the hive.
package swarm

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/mlange-42/ark/ecs"
	"github.com/paulmach/orb"

	"github.com/pthm-cable/slimehive/components"
	"github.com/pthm-cable/slimehive/estimator"
	"github.com/pthm-cable/slimehive/field"
	"github.com/pthm-cable/slimehive/ingress"
)

var (
	// ErrUnknownAgent is returned when an id is not in the registry.
	ErrUnknownAgent = errors.New("unknown agent")

	// ErrDuplicateAgent is returned when spawning an id that already exists.
	ErrDuplicateAgent = errors.New("agent already exists")
)

// Agent is a read-only copy of one registry entry.
type Agent struct {
	components.Drone
	Pos   components.Position
	Vel   components.Velocity
	Trail []components.Position
}

// DepositOptions controls how ingested deposits land on the field.
type DepositOptions struct {
	WeakRSSI    int     // Below this the intensity is penalized
	WeakPenalty float64 // Intensity multiplier for weak links
}

// Applied describes what a deposit did.
type Applied struct {
	AgentID   string
	X, Y      int
	Intensity float64 // After any weak-link penalty
	RSSI      int
	Estimated bool // Position came from the estimator
	Created   bool // First deposit seen from this agent
}

// Registry is the unified record of physical and virtual agents. Agents
// live in an ECS world; an id index gives O(1) lookup. It is owned by the
// tick loop and not safe for concurrent use.
type Registry struct {
	world  *ecs.World
	mapper *ecs.Map4[components.Position, components.Velocity, components.Trail, components.Drone]
	filter *ecs.Filter4[components.Position, components.Velocity, components.Trail, components.Drone]
	index  map[string]ecs.Entity

	bounds   Bounds
	trailLen int
	now      func() time.Time

	est  *estimator.Estimator
	pher *field.Pheromone
	opts DepositOptions
}

// NewRegistry creates an empty registry whose deposits resolve through
// est and land on pher.
func NewRegistry(bounds Bounds, trailLen int, est *estimator.Estimator, pher *field.Pheromone, opts DepositOptions) *Registry {
	world := ecs.NewWorld()
	if trailLen <= 0 {
		trailLen = 10
	}
	return &Registry{
		world:    world,
		mapper:   ecs.NewMap4[components.Position, components.Velocity, components.Trail, components.Drone](world),
		filter:   ecs.NewFilter4[components.Position, components.Velocity, components.Trail, components.Drone](world),
		index:    make(map[string]ecs.Entity),
		bounds:   bounds,
		trailLen: trailLen,
		now:      time.Now,
		est:      est,
		pher:     pher,
		opts:     opts,
	}
}

// SetClock replaces the lastSeen clock.
func (r *Registry) SetClock(now func() time.Time) { r.now = now }

// SetDepositOptions changes the weak-link penalty.
func (r *Registry) SetDepositOptions(opts DepositOptions) { r.opts = opts }

// Bounds returns the operational rectangle.
func (r *Registry) Bounds() Bounds { return r.bounds }

// Len returns the number of agents.
func (r *Registry) Len() int { return len(r.index) }

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.index[id]
	return ok
}

// ApplyDeposit resolves the event's position, upserts the agent and
// deposits pheromone at the resolved cell.
//
// With an anchor the RSSI sample is buffered first; an estimate backed by
// enough fresh anchors overrides the self-reported coordinate. The returned
// error is non-nil only for an unknown anchor, in which case the deposit is
// still applied at the self-reported coordinate.
func (r *Registry) ApplyDeposit(ev ingress.DepositEvent) (Applied, error) {
	var sampleErr error
	x, y := ev.X, ev.Y
	estimated := false

	if ev.HasAnchor() && r.est != nil {
		sampleErr = r.est.AddSample(ev.AgentID, ev.AnchorID, float64(ev.RSSI))
		if est, ok := r.est.Estimate(ev.AgentID); ok {
			x, y = est.Cell()
			estimated = true
		}
	}

	x, y = r.bounds.Clamp(x, y)
	created := !r.Has(ev.AgentID)
	if created {
		r.spawn(components.Drone{
			ID:     ev.AgentID,
			Kind:   components.KindPhysical,
			Role:   components.RoleWorker,
			State:  components.StateSearching,
			Hunger: components.MaxHunger,
		}, x, y)
	} else {
		r.moveTo(r.index[ev.AgentID], x, y)
	}

	_, _, _, d := r.mapper.Get(r.index[ev.AgentID])
	d.RSSI = ev.RSSI
	d.LastSeen = r.now()

	intensity := ev.Intensity
	if ev.RSSI < r.opts.WeakRSSI {
		intensity *= r.opts.WeakPenalty
	}
	if r.pher != nil {
		r.pher.Deposit(x, y, intensity)
	}

	return Applied{
		AgentID:   ev.AgentID,
		X:         x,
		Y:         y,
		Intensity: intensity,
		RSSI:      ev.RSSI,
		Estimated: estimated,
		Created:   created,
	}, sampleErr
}

// Spawn adds a new agent at (x,y), clamped to the boundary.
func (r *Registry) Spawn(d components.Drone, x, y int) error {
	if d.ID == "" {
		return fmt.Errorf("spawn: empty agent id")
	}
	if r.Has(d.ID) {
		return fmt.Errorf("spawn %q: %w", d.ID, ErrDuplicateAgent)
	}
	x, y = r.bounds.Clamp(x, y)
	r.spawn(d, x, y)
	return nil
}

func (r *Registry) spawn(d components.Drone, x, y int) {
	if d.LastSeen.IsZero() {
		d.LastSeen = r.now()
	}
	pos := components.Position{X: x, Y: y}
	vel := components.Velocity{}
	trail := components.Trail{Points: make([]components.Position, 0, r.trailLen)}
	trail.Push(pos, r.trailLen)
	r.index[d.ID] = r.mapper.NewEntity(&pos, &vel, &trail, &d)
}

// Move relocates an agent, clamped to the boundary, and records the
// displacement as its velocity.
func (r *Registry) Move(id string, x, y int) error {
	e, ok := r.index[id]
	if !ok {
		return fmt.Errorf("move %q: %w", id, ErrUnknownAgent)
	}
	r.moveTo(e, x, y)
	return nil
}

func (r *Registry) moveTo(e ecs.Entity, x, y int) {
	x, y = r.bounds.Clamp(x, y)
	pos, vel, trail, _ := r.mapper.Get(e)
	vel.X, vel.Y = x-pos.X, y-pos.Y
	pos.X, pos.Y = x, y
	trail.Push(*pos, r.trailLen)
}

// Update mutates an agent's drone state in place.
func (r *Registry) Update(id string, fn func(d *components.Drone)) error {
	e, ok := r.index[id]
	if !ok {
		return fmt.Errorf("update %q: %w", id, ErrUnknownAgent)
	}
	_, _, _, d := r.mapper.Get(e)
	fn(d)
	return nil
}

// step and mutate serve the tick systems, which only pass ids taken from
// the registry; a miss is logged rather than returned.
func (r *Registry) step(id string, x, y int) bool {
	if err := r.Move(id, x, y); err != nil {
		slog.Error("failed to move agent", "error", err)
		return false
	}
	return true
}

func (r *Registry) mutate(id string, fn func(d *components.Drone)) bool {
	if err := r.Update(id, fn); err != nil {
		slog.Error("failed to update agent", "error", err)
		return false
	}
	return true
}

// Remove deletes an agent. It reports whether the agent existed.
func (r *Registry) Remove(id string) bool {
	e, ok := r.index[id]
	if !ok {
		return false
	}
	r.world.RemoveEntity(e)
	delete(r.index, id)
	if r.est != nil {
		r.est.Forget(id)
	}
	return true
}

// Clear removes every agent.
func (r *Registry) Clear() {
	for _, id := range r.IDs() {
		r.Remove(id)
	}
}

// Get returns a copy of one agent.
func (r *Registry) Get(id string) (Agent, bool) {
	e, ok := r.index[id]
	if !ok {
		return Agent{}, false
	}
	pos, vel, trail, d := r.mapper.Get(e)
	return snapshot(pos, vel, trail, d), true
}

// IDs returns every agent id, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.index))
	for id := range r.index {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Agents returns copies of every agent sorted by id.
func (r *Registry) Agents() []Agent {
	out := make([]Agent, 0, len(r.index))
	query := r.filter.Query()
	for query.Next() {
		pos, vel, trail, d := query.Get()
		out = append(out, snapshot(pos, vel, trail, d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Each calls fn for every agent in id order.
func (r *Registry) Each(fn func(a Agent)) {
	for _, a := range r.Agents() {
		fn(a)
	}
}

// Centroid returns the mean position of all agents.
func (r *Registry) Centroid() (orb.Point, bool) {
	if len(r.index) == 0 {
		return orb.Point{}, false
	}
	var sx, sy float64
	query := r.filter.Query()
	for query.Next() {
		pos, _, _, _ := query.Get()
		sx += float64(pos.X)
		sy += float64(pos.Y)
	}
	n := float64(len(r.index))
	return orb.Point{sx / n, sy / n}, true
}

func snapshot(pos *components.Position, vel *components.Velocity, trail *components.Trail, d *components.Drone) Agent {
	return Agent{
		Drone: *d,
		Pos:   *pos,
		Vel:   *vel,
		Trail: append([]components.Position(nil), trail.Points...),
	}
}
