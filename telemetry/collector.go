package telemetry

import (
	"github.com/pthm-cable/slimehive/components"
	"github.com/pthm-cable/slimehive/field"
	"github.com/pthm-cable/slimehive/swarm"
)

// Collector accumulates events within time windows and produces WindowStats.
type Collector struct {
	windowDurationTicks uint64
	dt                  float64

	// Current window tracking
	windowStartTick uint64

	// Event counters for current window
	deaths       int
	respawns     int
	pickups      int
	deliveries   int
	depleted     int
	foundFood    int
	smellFood    int
	deposits     int
	decodeErrors int
	dropped      int
}

// NewCollector creates a new stats collector.
// windowDurationSec: how long each stats window lasts in simulation seconds
// dt: seconds per tick (used for tick-to-time conversion)
func NewCollector(windowDurationSec, dt float64) *Collector {
	ticksPerWindow := uint64(windowDurationSec / dt)
	if ticksPerWindow < 1 {
		ticksPerWindow = 1
	}
	return &Collector{
		windowDurationTicks: ticksPerWindow,
		dt:                  dt,
	}
}

// RecordEvents tallies swarm events.
func (c *Collector) RecordEvents(events []swarm.Event) {
	for _, ev := range events {
		switch ev.Kind {
		case swarm.EventDeath:
			c.deaths++
		case swarm.EventRespawn:
			c.respawns++
		case swarm.EventPickup:
			c.pickups++
		case swarm.EventDelivery:
			c.deliveries++
		case swarm.EventDepleted:
			c.depleted++
		case swarm.EventFoundFood:
			c.foundFood++
		case swarm.EventSmellFood:
			c.smellFood++
		}
	}
}

// RecordDeposit records an applied deposit.
func (c *Collector) RecordDeposit() { c.deposits++ }

// RecordDecodeError records a dropped malformed payload.
func (c *Collector) RecordDecodeError() { c.decodeErrors++ }

// RecordDrop records a message dropped on a full inbox.
func (c *Collector) RecordDrop(n int) { c.dropped += n }

// ShouldFlush returns true if enough ticks have passed to flush the window.
func (c *Collector) ShouldFlush(currentTick uint64) bool {
	return currentTick-c.windowStartTick >= c.windowDurationTicks
}

// Flush produces a WindowStats from the current engine state and resets
// counters for the next window.
func (c *Collector) Flush(currentTick uint64, r *swarm.Registry, pher *field.Pheromone, food *swarm.Food) WindowStats {
	stats := WindowStats{
		WindowStartTick: c.windowStartTick,
		WindowEndTick:   currentTick,
		SimTimeSec:      float64(currentTick) * c.dt,

		Deaths:     c.deaths,
		Respawns:   c.respawns,
		Pickups:    c.pickups,
		Deliveries: c.deliveries,
		Depleted:   c.depleted,
		FoundFood:  c.foundFood,
		SmellFood:  c.smellFood,

		Deposits:     c.deposits,
		DecodeErrors: c.decodeErrors,
		Dropped:      c.dropped,
	}

	var hunger []float64
	for _, a := range r.Agents() {
		stats.Drones++
		if a.Kind == components.KindPhysical {
			stats.Physical++
			stats.Alive++
			continue
		}
		stats.Virtual++
		if a.Frozen {
			stats.Frozen++
		} else {
			stats.Alive++
		}
		hunger = append(hunger, float64(a.Hunger))
	}
	stats.HungerMean, stats.HungerP10, stats.HungerP50, stats.HungerP90 = HungerQuantiles(hunger)

	if pher != nil {
		stats.ActiveTotal = pher.Total()
		stats.ActivePeak = pher.Peak()
		stats.Coverage = pher.Coverage()
	}
	if food != nil {
		stats.FoodRemaining = food.Remaining()
		stats.QueenStock = food.QueenStock
	}

	// Reset for next window
	c.windowStartTick = currentTick
	c.deaths = 0
	c.respawns = 0
	c.pickups = 0
	c.deliveries = 0
	c.depleted = 0
	c.foundFood = 0
	c.smellFood = 0
	c.deposits = 0
	c.decodeErrors = 0
	c.dropped = 0

	return stats
}

// WindowDurationTicks returns the number of ticks per window.
func (c *Collector) WindowDurationTicks() uint64 {
	return c.windowDurationTicks
}
