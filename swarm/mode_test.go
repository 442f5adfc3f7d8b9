package swarm

import (
	"errors"
	"math"
	"testing"

	"github.com/pthm-cable/slimehive/components"
)

func TestParseMode(t *testing.T) {
	weights := map[string]float64{"AVOID": 2, "FORAGE": 1.5}

	tests := []struct {
		in          string
		wantName    string
		wantDeliver bool
		wantErr     bool
	}{
		{"FORAGE,AVOID", "FORAGE,AVOID", false, false},
		{" forage , avoid ", "FORAGE,AVOID", false, false},
		{"BOIDS", "AVOID,FLOCK,ALIGN", false, false},
		{"AVOID,BOIDS", "AVOID,FLOCK,ALIGN", false, false},
		{"FEED_QUEEN,FORAGE", "FEED_QUEEN,FORAGE", true, false},
		{"SEPARATE,COHESION", "AVOID,FLOCK", false, false},
		{"FORAGE,DANCE", "", false, true},
		{"", "", false, true},
		{" , ", "", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			m, err := ParseMode(tt.in, weights)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownPrimitive) {
					t.Errorf("error mismatch: got %v, want ErrUnknownPrimitive", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMode: %v", err)
			}
			if m.Name != tt.wantName {
				t.Errorf("name mismatch: got %q, want %q", m.Name, tt.wantName)
			}
			if m.Deliver() != tt.wantDeliver {
				t.Errorf("deliver mismatch: got %v, want %v", m.Deliver(), tt.wantDeliver)
			}
		})
	}
}

func TestParseModeWeights(t *testing.T) {
	m, err := ParseMode("FORAGE,AVOID,SWARM", map[string]float64{"AVOID": 2, "FORAGE": 1.5})
	if err != nil {
		t.Fatal(err)
	}
	want := []Weighted{{PrimForage, 1.5}, {PrimAvoid, 2}, {PrimSwarm, 1}}
	for i, w := range want {
		if m.Steps[i] != w {
			t.Errorf("step %d mismatch: got %+v, want %+v", i, m.Steps[i], w)
		}
	}
}

func TestSpawnPositions(t *testing.T) {
	b := Bounds{MinX: 10, MinY: 10, MaxX: 90, MaxY: 90}
	for _, pattern := range []string{SpawnRandom, SpawnCenter, SpawnCorners, SpawnLine, "unknown"} {
		t.Run(pattern, func(t *testing.T) {
			ps := SpawnPositions(pattern, 12, b, newRand(5))
			if len(ps) != 12 {
				t.Fatalf("count mismatch: got %d, want 12", len(ps))
			}
			for _, p := range ps {
				if !b.Contains(p.X, p.Y) {
					t.Errorf("position (%d,%d) outside boundary", p.X, p.Y)
				}
			}
		})
	}

	line := SpawnPositions(SpawnLine, 3, b, newRand(5))
	if line[0].Y != 50 || line[0].X >= line[1].X || line[1].X >= line[2].X {
		t.Errorf("line layout mismatch: %+v", line)
	}
}

func TestMeasure(t *testing.T) {
	r, pher := newTestRegistry(t, fullGrid)
	food := &Food{QueenStock: 12, Trips: 2}

	if m := Measure(r, pher, food); m.DroneCount != 0 || m.QueenStock != 12 {
		t.Errorf("empty metrics mismatch: %+v", m)
	}

	spawnWorker(t, r, "S-001", 10, 10)
	spawnWorker(t, r, "S-002", 12, 13)
	spawnWorker(t, r, "S-003", 12, 13)
	r.Move("S-002", 13, 14)
	r.Move("S-003", 13, 14)
	r.Update("S-001", func(d *components.Drone) { d.Hunger = 40 })
	pher.Deposit(1, 1, 10)

	m := Measure(r, pher, food)
	near := func(got, want float64) bool { return math.Abs(got-want) < 1e-9 }

	if m.DroneCount != 3 {
		t.Errorf("count mismatch: got %d, want 3", m.DroneCount)
	}
	if m.Collisions != 1 {
		t.Errorf("collisions mismatch: got %d, want 1", m.Collisions)
	}
	if !near(m.VelocityAlignment, 1) {
		t.Errorf("alignment mismatch: got %v, want 1", m.VelocityAlignment)
	}
	if !near(m.AvgNearest, 5.0/3) {
		t.Errorf("nearest mismatch: got %v, want %v", m.AvgNearest, 5.0/3)
	}
	if !near(m.AvgNeighborDist, 10.0/3) {
		t.Errorf("neighbor distance mismatch: got %v, want %v", m.AvgNeighborDist, 10.0/3)
	}
	if !near(m.CenterX, 36.0/3) || !near(m.CenterY, 38.0/3) {
		t.Errorf("center mismatch: got (%v,%v)", m.CenterX, m.CenterY)
	}
	if !near(m.AvgHunger, 80) {
		t.Errorf("hunger mismatch: got %v, want 80", m.AvgHunger)
	}
	if !near(m.CoveragePercent, 0.01) {
		t.Errorf("coverage mismatch: got %v, want 0.01", m.CoveragePercent)
	}
	if m.Spread <= 0 {
		t.Errorf("spread should be positive, got %v", m.Spread)
	}
}
