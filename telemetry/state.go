package telemetry

import (
	"github.com/pthm-cable/slimehive/components"
	"github.com/pthm-cable/slimehive/config"
	"github.com/pthm-cable/slimehive/field"
	"github.com/pthm-cable/slimehive/swarm"
)

// Moods summarize the swarm for dashboards.
const (
	MoodExtinct      = "EXTINCT"
	MoodStarving     = "STARVING"
	MoodHungry       = "HUNGRY"
	MoodForaging     = "FORAGING"
	MoodCalm         = "CALM"
	MoodNoSimulation = "NO_SIMULATION"
)

// DroneState is one agent in an exported state.
type DroneState struct {
	X        int      `json:"x"`
	Y        int      `json:"y"`
	RSSI     int      `json:"rssi"`
	LastSeen float64  `json:"last_seen"` // Unix seconds
	Trail    [][2]int `json:"trail"`
	Hunger   int      `json:"hunger"`
	Role     string   `json:"role"`
	State    string   `json:"state"`
	Kind     string   `json:"kind"`
	Frozen   bool     `json:"frozen,omitempty"`
	Carry    float64  `json:"carry,omitempty"`
}

// BoundaryState is the operational rectangle.
type BoundaryState struct {
	MinX int `json:"min_x"`
	MinY int `json:"min_y"`
	MaxX int `json:"max_x"`
	MaxY int `json:"max_y"`
}

// HiveState is the full live state written every tick and captured in
// recording keyframes.
type HiveState struct {
	Grid        [][]float64           `json:"grid"`
	GhostGrid   [][]float64           `json:"ghost_grid"`
	Drones      map[string]DroneState `json:"drones"`
	FoodSources []swarm.FoodSource    `json:"food_sources"`
	Boundary    BoundaryState         `json:"boundary"`
	Mood        string                `json:"mood"`
	DecayRate   float64               `json:"decay_rate"`
	SimMode     string                `json:"sim_mode"`
	Tick        uint64                `json:"tick"`
	Elapsed     float64               `json:"elapsed"`
	QueenStock  float64               `json:"queen_stock"`
	Trips       int                   `json:"trips"`
	Alive       int                   `json:"alive"`
	Dead        int                   `json:"dead"`
}

// StateInput gathers what BuildState reads.
type StateInput struct {
	Config   *config.Config
	Registry *swarm.Registry
	Field    *field.Pheromone
	Food     *swarm.Food
	Mode     string
	Tick     uint64
	Elapsed  float64
	Dead     int
	Extinct  bool
}

// BuildState snapshots the engine into an exportable state. Grids and
// trails are copied so the result is safe to hand to other goroutines.
func BuildState(in StateInput) HiveState {
	agents := in.Registry.Agents()
	s := HiveState{
		Grid:      in.Field.Active(),
		GhostGrid: in.Field.Ghost(),
		Drones:    make(map[string]DroneState, len(agents)),
		DecayRate: in.Config.Pheromones.DecayRate,
		SimMode:   in.Mode,
		Tick:      in.Tick,
		Elapsed:   in.Elapsed,
		Dead:      in.Dead,
		Boundary: BoundaryState{
			MinX: in.Config.Boundary.MinX,
			MinY: in.Config.Boundary.MinY,
			MaxX: in.Config.Boundary.MaxX,
			MaxY: in.Config.Boundary.MaxY,
		},
	}
	if in.Food != nil {
		s.FoodSources = append([]swarm.FoodSource(nil), in.Food.Sources...)
		s.QueenStock = in.Food.QueenStock
		s.Trips = in.Food.Trips
	}
	if s.FoodSources == nil {
		s.FoodSources = []swarm.FoodSource{}
	}

	for _, a := range agents {
		trail := make([][2]int, len(a.Trail))
		for i, p := range a.Trail {
			trail[i] = [2]int{p.X, p.Y}
		}
		s.Drones[a.ID] = DroneState{
			X:        a.Pos.X,
			Y:        a.Pos.Y,
			RSSI:     a.RSSI,
			LastSeen: float64(a.LastSeen.UnixNano()) / 1e9,
			Trail:    trail,
			Hunger:   a.Hunger,
			Role:     a.Role.String(),
			State:    a.State.String(),
			Kind:     a.Kind.String(),
			Frozen:   a.Frozen,
			Carry:    a.Carry,
		}
		if !a.Frozen {
			s.Alive++
		}
	}

	s.Mood = Mood(agents, in.Extinct)
	return s
}

// Mood classifies the swarm by hunger and activity.
func Mood(agents []swarm.Agent, extinct bool) string {
	if extinct {
		return MoodExtinct
	}
	var sum, n int
	carrying := false
	for _, a := range agents {
		if a.Kind != components.KindVirtual {
			continue
		}
		sum += a.Hunger
		n++
		if a.State == components.StateCarrying {
			carrying = true
		}
	}
	if n == 0 {
		return MoodCalm
	}
	avg := float64(sum) / float64(n)
	switch {
	case avg < 20:
		return MoodStarving
	case avg < 50:
		return MoodHungry
	case carrying:
		return MoodForaging
	}
	return MoodCalm
}

// EmptyState is served when no simulation has published yet.
func EmptyState() map[string]any {
	return map[string]any{
		"grid":   []any{},
		"drones": map[string]any{},
		"mood":   MoodNoSimulation,
	}
}
