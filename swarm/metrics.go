package swarm

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/slimehive/components"
	"github.com/pthm-cable/slimehive/field"
)

// Metrics summarizes the swarm at one tick.
type Metrics struct {
	Tick              uint64  `csv:"tick"`
	Time              float64 `csv:"time"`
	DroneCount        int     `csv:"drone_count"`
	AvgNeighborDist   float64 `csv:"avg_neighbor_distance"`
	AvgNearest        float64 `csv:"avg_nearest_neighbor"`
	Spread            float64 `csv:"swarm_spread"` // std x + std y
	CenterX           float64 `csv:"center_x"`
	CenterY           float64 `csv:"center_y"`
	VelocityAlignment float64 `csv:"velocity_alignment"` // |mean unit velocity| in [0,1]
	Collisions        int     `csv:"collisions"`         // Pairs sharing a cell
	CoveragePercent   float64 `csv:"coverage_percent"`
	AvgHunger         float64 `csv:"avg_hunger"`
	Carrying          int     `csv:"carrying"`
	Frozen            int     `csv:"frozen"`
	QueenStock        float64 `csv:"queen_stock"`
	Trips             int     `csv:"trips"`
}

// Measure computes metrics over every agent. Pairwise statistics are
// quadratic in the agent count, which is fine at hive scale.
func Measure(r *Registry, pher *field.Pheromone, food *Food) Metrics {
	agents := r.Agents()
	m := Metrics{DroneCount: len(agents)}
	if pher != nil {
		m.CoveragePercent = pher.Coverage() * 100
	}
	if food != nil {
		m.QueenStock = food.QueenStock
		m.Trips = food.Trips
	}
	if len(agents) == 0 {
		return m
	}

	xs := make([]float64, len(agents))
	ys := make([]float64, len(agents))
	hunger := make([]float64, len(agents))
	var vx, vy float64
	var moving int
	for i, a := range agents {
		xs[i] = float64(a.Pos.X)
		ys[i] = float64(a.Pos.Y)
		hunger[i] = float64(a.Hunger)
		if a.State == components.StateCarrying {
			m.Carrying++
		}
		if a.Frozen {
			m.Frozen++
		}
		if a.Vel.X != 0 || a.Vel.Y != 0 {
			l := math.Hypot(float64(a.Vel.X), float64(a.Vel.Y))
			vx += float64(a.Vel.X) / l
			vy += float64(a.Vel.Y) / l
			moving++
		}
	}

	var sx, sy float64
	m.CenterX, sx = stat.PopMeanStdDev(xs, nil)
	m.CenterY, sy = stat.PopMeanStdDev(ys, nil)
	m.Spread = sx + sy
	m.AvgHunger = stat.Mean(hunger, nil)
	if moving > 0 {
		m.VelocityAlignment = math.Hypot(vx, vy) / float64(moving)
	}

	if len(agents) < 2 {
		return m
	}
	var pairSum, nearestSum float64
	var pairs int
	for i := range agents {
		nearest := math.Inf(1)
		for j := range agents {
			if i == j {
				continue
			}
			d := math.Hypot(xs[i]-xs[j], ys[i]-ys[j])
			if d < nearest {
				nearest = d
			}
			if j > i {
				pairSum += d
				pairs++
				if d == 0 {
					m.Collisions++
				}
			}
		}
		nearestSum += nearest
	}
	m.AvgNeighborDist = pairSum / float64(pairs)
	m.AvgNearest = nearestSum / float64(len(agents))
	return m
}
