package swarm

import (
	"math"
	"math/rand"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/pthm-cable/slimehive/components"
	"github.com/pthm-cable/slimehive/config"
	"github.com/pthm-cable/slimehive/field"
)

// FoodSource is a finite resource. Sources only ever deplete.
type FoodSource struct {
	ID        int     `json:"id"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Radius    float64 `json:"radius"`
	Amount    float64 `json:"amount"`
	MaxAmount float64 `json:"max_amount"`
	Consumed  bool    `json:"consumed"`
}

// Point returns the source center.
func (s *FoodSource) Point() orb.Point { return orb.Point{s.X, s.Y} }

// DistanceTo returns the distance from (x,y) to the source center.
func (s *FoodSource) DistanceTo(x, y int) float64 {
	return planar.Distance(orb.Point{float64(x), float64(y)}, s.Point())
}

// take removes up to amount and returns what was actually taken.
func (s *FoodSource) take(amount float64) float64 {
	if s.Consumed || amount <= 0 {
		return 0
	}
	got := math.Min(amount, s.Amount)
	s.Amount -= got
	if s.Amount <= 0 {
		s.Amount = 0
		s.Consumed = true
	}
	return got
}

// Food holds every source plus what has reached the queen.
type Food struct {
	Sources    []FoodSource
	QueenStock float64
	Trips      int
}

// NewFood wraps a fixed layout.
func NewFood(sources []FoodSource) *Food {
	return &Food{Sources: sources}
}

// LayoutFood places n sources inside b, at least minQueenDist from the
// queen and not overlapping each other. Placement gives up on a source
// after a bounded number of attempts.
func LayoutFood(n int, cfg config.FoodConfig, b Bounds, queen orb.Point, rng *rand.Rand) []FoodSource {
	out := make([]FoodSource, 0, n)
	inset := int(math.Ceil(cfg.Radius))
	w := b.MaxX - b.MinX - 2*inset
	h := b.MaxY - b.MinY - 2*inset
	if w <= 0 || h <= 0 {
		return out
	}

	for id := 0; id < n; id++ {
		for attempt := 0; attempt < 200; attempt++ {
			p := orb.Point{
				float64(b.MinX + inset + rng.Intn(w+1)),
				float64(b.MinY + inset + rng.Intn(h+1)),
			}
			if planar.Distance(p, queen) < cfg.MinQueenDist {
				continue
			}
			overlaps := false
			for _, s := range out {
				if planar.Distance(p, s.Point()) < s.Radius+cfg.Radius+2 {
					overlaps = true
					break
				}
			}
			if overlaps {
				continue
			}
			out = append(out, FoodSource{
				ID:        id,
				X:         p[0],
				Y:         p[1],
				Radius:    cfg.Radius,
				Amount:    cfg.Amount,
				MaxAmount: cfg.Amount,
			})
			break
		}
	}
	return out
}

// Nearest returns the closest undepleted source within maxDist of (x,y).
func (f *Food) Nearest(x, y int, maxDist float64) (*FoodSource, float64, bool) {
	var best *FoodSource
	bestDist := math.Inf(1)
	for i := range f.Sources {
		s := &f.Sources[i]
		if s.Consumed {
			continue
		}
		if d := s.DistanceTo(x, y); d <= maxDist && d < bestDist {
			best, bestDist = s, d
		}
	}
	return best, bestDist, best != nil
}

// Touching returns the closest undepleted source whose edge is within
// margin cells of (x,y).
func (f *Food) Touching(x, y int, margin float64) (*FoodSource, bool) {
	var best *FoodSource
	bestGap := math.Inf(1)
	for i := range f.Sources {
		s := &f.Sources[i]
		if s.Consumed {
			continue
		}
		if gap := s.DistanceTo(x, y) - s.Radius; gap <= margin && gap < bestGap {
			best, bestGap = s, gap
		}
	}
	return best, best != nil
}

// Blocks reports whether (x,y) lies inside an undepleted source's footprint.
func (f *Food) Blocks(x, y int) bool {
	for i := range f.Sources {
		s := &f.Sources[i]
		if !s.Consumed && s.DistanceTo(x, y) <= s.Radius {
			return true
		}
	}
	return false
}

// Remaining returns the total amount left across sources.
func (f *Food) Remaining() float64 {
	var sum float64
	for _, s := range f.Sources {
		sum += s.Amount
	}
	return sum
}

// Active returns how many sources are not yet consumed.
func (f *Food) Active() int {
	var n int
	for _, s := range f.Sources {
		if !s.Consumed {
			n++
		}
	}
	return n
}

// Interact applies one tick of food interaction for every virtual agent.
//
// In deliver mode a searching agent within radius+2 of a source picks up
// a load and starts carrying; a carrying agent within queenRadius of the
// queen drops it into the queen stock. In graze mode an agent within one
// cell of a source's edge eats graze_rate and reinforces the trail by
// depositing extra pheromone, so the total near food is boost times normal.
func (f *Food) Interact(r *Registry, pher *field.Pheromone, cfg *config.Config, deliver bool) []Event {
	var events []Event
	queen := orb.Point{float64(cfg.Derived.QueenX), float64(cfg.Derived.QueenY)}

	for _, a := range r.Agents() {
		if a.Kind != components.KindVirtual || a.Role != components.RoleWorker {
			continue
		}

		// A load picked up before a mode switch is still delivered
		if a.State == components.StateCarrying {
			p := orb.Point{float64(a.Pos.X), float64(a.Pos.Y)}
			if planar.Distance(p, queen) > cfg.Food.QueenRadius {
				continue
			}
			f.QueenStock += a.Carry
			f.Trips++
			r.mutate(a.ID, func(d *components.Drone) {
				d.State = components.StateSearching
				d.Carry = 0
			})
			events = append(events, Event{Kind: EventDelivery, AgentID: a.ID, X: a.Pos.X, Y: a.Pos.Y, Amount: a.Carry})
			continue
		}

		if deliver {
			s, ok := f.Touching(a.Pos.X, a.Pos.Y, 2)
			if !ok {
				continue
			}
			got := s.take(cfg.Food.PickupAmount)
			if got <= 0 {
				continue
			}
			r.mutate(a.ID, func(d *components.Drone) {
				d.State = components.StateCarrying
				d.Carry = got
				d.Feed()
			})
			events = append(events, Event{Kind: EventPickup, AgentID: a.ID, X: a.Pos.X, Y: a.Pos.Y, Amount: got, FoodID: s.ID})
			if s.Consumed {
				events = append(events, Event{Kind: EventDepleted, X: int(s.X), Y: int(s.Y), FoodID: s.ID})
			}
			continue
		}

		// Graze
		s, ok := f.Touching(a.Pos.X, a.Pos.Y, 1)
		if !ok {
			continue
		}
		got := s.take(cfg.Food.GrazeRate)
		if got <= 0 {
			continue
		}
		r.mutate(a.ID, func(d *components.Drone) { d.Feed() })
		if boost := cfg.Food.PheromoneBoost; boost > 1 {
			pher.Deposit(a.Pos.X, a.Pos.Y, cfg.Pheromones.DepositAmount*(boost-1))
		}
		if s.Consumed {
			events = append(events, Event{Kind: EventDepleted, X: int(s.X), Y: int(s.Y), FoodID: s.ID})
		}
	}
	return events
}
