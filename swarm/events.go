package swarm

// EventKind names a discrete swarm occurrence.
type EventKind string

const (
	EventDeath      EventKind = "death"
	EventRespawn    EventKind = "respawn"
	EventPickup     EventKind = "pickup"
	EventDelivery   EventKind = "delivery"
	EventDepleted   EventKind = "food_depleted"
	EventFoundFood  EventKind = "found_food"
	EventSmellFood  EventKind = "smell_food"
	EventExtinction EventKind = "extinction"
)

// Event is produced by a swarm step for recording.
type Event struct {
	Kind    EventKind
	AgentID string
	X, Y    int
	Role    string
	Amount  float64
	FoodID  int
}

// Data flattens the event for a recording.
func (e Event) Data() map[string]any {
	data := map[string]any{"x": e.X, "y": e.Y}
	if e.AgentID != "" {
		data["agent_id"] = e.AgentID
	}
	if e.Role != "" {
		data["role"] = e.Role
	}
	switch e.Kind {
	case EventPickup, EventDelivery, EventFoundFood:
		data["amount"] = e.Amount
	}
	switch e.Kind {
	case EventPickup, EventDepleted, EventFoundFood, EventSmellFood:
		data["food_id"] = e.FoodID
	}
	return data
}
