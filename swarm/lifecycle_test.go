package swarm

import (
	"testing"

	"github.com/pthm-cable/slimehive/components"
	"github.com/pthm-cable/slimehive/config"
)

func TestParseDeathPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    DeathPolicy
		wantErr bool
	}{
		{"freeze", DeathFreeze, false},
		{"no", DeathFreeze, false},
		{"die", DeathDie, false},
		{"YES", DeathDie, false},
		{"respawn", DeathRespawn, false},
		{"explode", DeathFreeze, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDeathPolicy(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error mismatch: got %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("policy mismatch: got %v, want %v", got, tt.want)
			}
		})
	}
}

func newTestLifecycle(t *testing.T, mode string) (*config.Config, *Lifecycle, *Registry) {
	t.Helper()
	cfg := config.Default()
	cfg.Hunger.DeathMode = mode
	cfg.Hunger.DecayInterval = 1
	cfg.Hunger.HopperDecayFraction = 0
	r, _ := newTestRegistry(t, BoundsFrom(cfg.Boundary))
	return cfg, NewLifecycle(cfg, newRand(1)), r
}

func TestHungerDecayClamps(t *testing.T) {
	_, l, r := newTestLifecycle(t, "freeze")
	spawnWorker(t, r, "S-001", 50, 50)
	r.Update("S-001", func(d *components.Drone) { d.Hunger = 3 })

	for tick := uint64(1); tick <= 10; tick++ {
		l.Step(tick, r)
		a, _ := r.Get("S-001")
		if a.Hunger < 0 || a.Hunger > components.MaxHunger {
			t.Fatalf("tick %d: hunger %d out of range", tick, a.Hunger)
		}
	}
	if a, _ := r.Get("S-001"); a.Hunger != 0 {
		t.Errorf("hunger mismatch: got %d, want 0", a.Hunger)
	}
}

func TestDecayInterval(t *testing.T) {
	cfg, l, r := newTestLifecycle(t, "freeze")
	cfg.Hunger.DecayInterval = 5
	spawnWorker(t, r, "S-001", 50, 50)

	for tick := uint64(1); tick <= 20; tick++ {
		l.Step(tick, r)
	}
	if a, _ := r.Get("S-001"); a.Hunger != components.MaxHunger-4 {
		t.Errorf("hunger mismatch: got %d, want %d", a.Hunger, components.MaxHunger-4)
	}
}

func TestHoppersDecaySlower(t *testing.T) {
	cfg, l, r := newTestLifecycle(t, "freeze")
	cfg.Hunger.HopperDecayFraction = 0
	hopper := components.Drone{ID: "S-002", Kind: components.KindVirtual, Role: components.RoleHopper, Hunger: 50}
	r.Spawn(hopper, 40, 40)

	for tick := uint64(1); tick <= 30; tick++ {
		l.Step(tick, r)
	}
	if a, _ := r.Get("S-002"); a.Hunger != 50 {
		t.Errorf("hopper hunger mismatch: got %d, want 50", a.Hunger)
	}
}

func TestFreezePolicy(t *testing.T) {
	_, l, r := newTestLifecycle(t, "freeze")
	spawnWorker(t, r, "S-001", 50, 50)
	r.Update("S-001", func(d *components.Drone) { d.Hunger = 1 })

	events := l.Step(1, r)
	if len(events) != 1 || events[0].Kind != EventDeath || events[0].X != 50 {
		t.Fatalf("events mismatch: got %+v", events)
	}
	a, _ := r.Get("S-001")
	if !a.Frozen {
		t.Error("agent should be frozen")
	}

	// Death is reported once
	if events := l.Step(2, r); len(events) != 0 {
		t.Errorf("repeated death events: %+v", events)
	}
	if Alive(r) != 0 || r.Len() != 1 {
		t.Errorf("alive %d len %d, want 0 and 1", Alive(r), r.Len())
	}

	// Feeding thaws it
	r.Update("S-001", func(d *components.Drone) { d.Feed() })
	if a, _ := r.Get("S-001"); a.Frozen {
		t.Error("fed agent still frozen")
	}
}

func TestDiePolicy(t *testing.T) {
	_, l, r := newTestLifecycle(t, "yes")
	spawnWorker(t, r, "S-001", 30, 40)
	r.Update("S-001", func(d *components.Drone) { d.Hunger = 1 })

	events := l.Step(7, r)
	if len(events) != 1 || events[0].Kind != EventDeath {
		t.Fatalf("events mismatch: got %+v", events)
	}
	if r.Has("S-001") {
		t.Error("dead agent still registered")
	}
	want := DeadAgent{ID: "S-001", X: 30, Y: 40, Tick: 7, Role: "worker"}
	if len(l.Dead) != 1 || l.Dead[0] != want {
		t.Errorf("dead record mismatch: got %+v, want %+v", l.Dead, want)
	}
}

func TestRespawnPolicy(t *testing.T) {
	for _, role := range []components.Role{components.RoleWorker, components.RoleHopper} {
		t.Run(role.String(), func(t *testing.T) {
			cfg, l, r := newTestLifecycle(t, "respawn")
			d := components.Drone{ID: "S-004", Seq: 4, Kind: components.KindVirtual, Role: role, State: components.StateCarrying, Hunger: 0, Carry: 3}
			r.Spawn(d, 70, 70)

			events := l.Step(1, r)
			if len(events) != 2 || events[0].Kind != EventDeath || events[1].Kind != EventRespawn {
				t.Fatalf("events mismatch: got %+v", events)
			}

			a, ok := r.Get("S-004")
			if !ok {
				t.Fatal("agent not respawned within the tick")
			}
			if a.Hunger != components.MaxHunger || a.Role != role || a.Seq != 4 {
				t.Errorf("respawn mismatch: hunger %d role %v seq %d", a.Hunger, a.Role, a.Seq)
			}
			if a.State != components.DefaultState(role) || a.Carry != 0 {
				t.Errorf("state not reset: %v carry %v", a.State, a.Carry)
			}
			j := cfg.Hunger.RespawnJitter
			if absInt(a.Pos.X-cfg.Derived.QueenX) > j || absInt(a.Pos.Y-cfg.Derived.QueenY) > j {
				t.Errorf("respawned at (%d,%d), not within %d of the queen", a.Pos.X, a.Pos.Y, j)
			}
		})
	}
}

func TestPhysicalAgentsDoNotStarve(t *testing.T) {
	_, l, r := newTestLifecycle(t, "die")
	r.ApplyDeposit(decode(t, "P1,50,50,1,-40"))

	for tick := uint64(1); tick <= 150; tick++ {
		l.Step(tick, r)
	}
	if a, ok := r.Get("P1"); !ok || a.Hunger != components.MaxHunger {
		t.Errorf("physical agent affected by hunger: ok=%v hunger %d", ok, a.Hunger)
	}
}
