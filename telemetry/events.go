// Package telemetry provides live state export, session recording,
// flight logs, windowed stats and Prometheus metrics for the hive.
package telemetry

import "github.com/pthm-cable/slimehive/swarm"

// Event types that only the engine produces. Swarm events use their kind.
const (
	EventModeChange  = "mode_change"
	EventSwarmResize = "swarm_resize"
	EventReset       = "reset"
	EventLiveConfig  = "live_config"
)

// Event is one entry in a recording's event log.
type Event struct {
	Type string         `json:"type"`
	Time float64        `json:"time"` // Seconds since recording start
	Data map[string]any `json:"data,omitempty"`
}

// NewSwarmEvent converts a swarm event for recording.
func NewSwarmEvent(elapsed float64, ev swarm.Event) Event {
	return Event{Type: string(ev.Kind), Time: elapsed, Data: ev.Data()}
}

// NewModeChangeEvent records a behavior mode switch.
func NewModeChangeEvent(elapsed float64, from, to string) Event {
	return Event{
		Type: EventModeChange,
		Time: elapsed,
		Data: map[string]any{"from": from, "to": to},
	}
}

// NewResizeEvent records a change of the virtual population.
func NewResizeEvent(elapsed float64, count int, added, removed []string) Event {
	return Event{
		Type: EventSwarmResize,
		Time: elapsed,
		Data: map[string]any{"count": count, "added": len(added), "removed": len(removed)},
	}
}

// NewResetEvent records a reset and the archive it produced.
func NewResetEvent(elapsed float64, archive string) Event {
	return Event{
		Type: EventReset,
		Time: elapsed,
		Data: map[string]any{"archive": archive},
	}
}
