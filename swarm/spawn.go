package swarm

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/pthm-cable/slimehive/components"
)

// Spawn patterns for virtual agents.
const (
	SpawnRandom  = "random"
	SpawnCenter  = "center"
	SpawnCorners = "corners"
	SpawnLine    = "line"
)

// VirtualID formats the id of the virtual agent with sequence number seq.
func VirtualID(seq int) string { return fmt.Sprintf("S-%03d", seq) }

// SpawnPositions returns n starting cells inside b for pattern. Unknown
// patterns fall back to random.
func SpawnPositions(pattern string, n int, b Bounds, rng *rand.Rand) []components.Position {
	out := make([]components.Position, 0, n)
	w, h := b.MaxX-b.MinX, b.MaxY-b.MinY
	center := b.Center()

	for i := 0; i < n; i++ {
		var x, y int
		switch pattern {
		case SpawnCenter:
			// Tight cluster around the middle
			x = int(center[0]) + rng.Intn(7) - 3
			y = int(center[1]) + rng.Intn(7) - 3
		case SpawnCorners:
			corners := [4][2]int{
				{b.MinX + 2, b.MinY + 2},
				{b.MaxX - 2, b.MinY + 2},
				{b.MinX + 2, b.MaxY - 2},
				{b.MaxX - 2, b.MaxY - 2},
			}
			c := corners[i%4]
			x = c[0] + rng.Intn(5) - 2
			y = c[1] + rng.Intn(5) - 2
		case SpawnLine:
			// Evenly spaced across the middle row
			x = b.MinX + int(math.Round(float64(w)*float64(i+1)/float64(n+1)))
			y = int(center[1])
		default:
			x = b.MinX + rng.Intn(w+1)
			y = b.MinY + rng.Intn(h+1)
		}
		x, y = b.Clamp(x, y)
		out = append(out, components.Position{X: x, Y: y})
	}
	return out
}

// SpawnVirtual adds one virtual agent with the next free sequence number
// and returns its id.
func (r *Registry) SpawnVirtual(role components.Role, x, y int) (string, error) {
	seq := r.nextSeq()
	d := components.Drone{
		ID:     VirtualID(seq),
		Seq:    seq,
		Kind:   components.KindVirtual,
		Role:   role,
		State:  components.DefaultState(role),
		Hunger: components.MaxHunger,
	}
	if err := r.Spawn(d, x, y); err != nil {
		return "", err
	}
	return d.ID, nil
}

// Resize grows or shrinks the virtual population to n. New agents are
// placed with pattern and become hoppers with probability hopperRatio;
// extras are removed highest sequence first. Physical agents are never
// touched. It returns the ids added and removed.
func (r *Registry) Resize(n int, pattern string, hopperRatio float64, rng *rand.Rand) (added, removed []string) {
	virtual := r.virtual()
	switch {
	case len(virtual) < n:
		for _, p := range SpawnPositions(pattern, n-len(virtual), r.bounds, rng) {
			role := components.RoleWorker
			if rng.Float64() < hopperRatio {
				role = components.RoleHopper
			}
			id, err := r.SpawnVirtual(role, p.X, p.Y)
			if err != nil {
				continue
			}
			added = append(added, id)
		}

	case len(virtual) > n:
		sort.Slice(virtual, func(i, j int) bool { return virtual[i].Seq > virtual[j].Seq })
		for _, a := range virtual[:len(virtual)-n] {
			if r.Remove(a.ID) {
				removed = append(removed, a.ID)
			}
		}
	}
	return added, removed
}

// VirtualCount returns the number of virtual agents.
func (r *Registry) VirtualCount() int { return len(r.virtual()) }

func (r *Registry) virtual() []Agent {
	var out []Agent
	for _, a := range r.Agents() {
		if a.Kind == components.KindVirtual {
			out = append(out, a)
		}
	}
	return out
}

func (r *Registry) nextSeq() int {
	seq := 1
	for _, a := range r.virtual() {
		if a.Seq >= seq {
			seq = a.Seq + 1
		}
	}
	return seq
}
