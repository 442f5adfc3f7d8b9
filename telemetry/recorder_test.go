package telemetry

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/pthm-cable/slimehive/field"
	"github.com/pthm-cable/slimehive/swarm"
)

func testGrid(n int, seed float64) [][]float64 {
	g := make([][]float64, n)
	for y := range g {
		g[y] = make([]float64, n)
		for x := range g[y] {
			g[y][x] = seed * float64(x*n+y) / 7
		}
	}
	return g
}

func TestRecorderKeyframeInterval(t *testing.T) {
	r := NewRecorder(0.5)
	if r.RecordTick(0, HiveState{}) {
		t.Error("keyframe recorded before Start")
	}

	r.Start(Metadata{Mode: "FORAGE"}, HiveState{Tick: 0})
	for tick := 0; tick <= 20; tick++ {
		r.RecordTick(float64(tick)*0.1, HiveState{
			Tick:      uint64(tick),
			Grid:      testGrid(8, 1),
			GhostGrid: testGrid(8, 2),
			Drones: map[string]DroneState{
				"S-001": {X: tick, Y: 2, Hunger: 90, State: "carrying", Role: "worker", Trail: [][2]int{{1, 2}, {3, 4}}},
			},
			FoodSources: []swarm.FoodSource{{ID: 1, X: 5, Y: 5, Amount: 12, MaxAmount: 50}},
			Alive:       1,
			Mood:        MoodForaging,
		})
	}

	// Keyframes at 0.0, 0.5, 1.0, 1.5 and 2.0 seconds, give or take float steps
	got := len(r.Recording().Keyframes)
	if got < 4 || got > 5 {
		t.Errorf("keyframe count mismatch: got %d, want 4 or 5", got)
	}
	kfs := r.Recording().Keyframes
	for i := 1; i < len(kfs); i++ {
		if kfs[i].Time-kfs[i-1].Time < 0.5 {
			t.Errorf("keyframes %d and %d closer than the interval: %v, %v", i-1, i, kfs[i-1].Time, kfs[i].Time)
		}
	}

	kf := kfs[1]
	want := AgentFrame{X: int(kf.Tick), Y: 2, Hunger: 90, State: "carrying", Role: "worker"}
	if got := kf.Agents["S-001"]; got != want {
		t.Errorf("agent frame mismatch: got %+v, want %+v", got, want)
	}
	if len(kf.Food) != 1 || kf.Food[0] != (FoodFrame{Amount: 12}) {
		t.Errorf("food frame mismatch: %+v", kf.Food)
	}
	if kf.Alive != 1 || kf.Mood != MoodForaging {
		t.Errorf("counters mismatch: alive %d, mood %s", kf.Alive, kf.Mood)
	}

	data, err := json.Marshal(kf)
	if err != nil {
		t.Fatal(err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"grid", "ghost_grid", "drones", "boundary", "state"} {
		if _, ok := fields[key]; ok {
			t.Errorf("keyframe should not carry %q", key)
		}
	}
	if strings.Contains(string(data), "trail") {
		t.Error("keyframe should not carry trails")
	}
}

func TestRecorderNilIsNoop(t *testing.T) {
	var r *Recorder
	r.Start(Metadata{}, HiveState{})
	r.RecordEvent(Event{Type: "x"})
	if r.RecordTick(10, HiveState{}) || r.Started() || r.Finish(Grids{}, 0, 0, "") != nil {
		t.Error("nil recorder should do nothing")
	}
}

func TestRecordingRoundTrip(t *testing.T) {
	started := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	r := NewRecorder(1)
	r.Start(Metadata{Mode: "FEED_QUEEN,FORAGE", DroneCount: 12, GridSize: 8, TickRate: 10, StartedAt: started}, HiveState{
		Grid:   testGrid(8, 0),
		Drones: map[string]DroneState{"S-001": {X: 3, Y: 4, Trail: [][2]int{{3, 4}}}},
		Mood:   MoodCalm,
	})
	for tick := 0; tick < 30; tick++ {
		elapsed := float64(tick) * 0.1
		r.RecordTick(elapsed, HiveState{
			Tick:        uint64(tick),
			Grid:        testGrid(8, elapsed),
			Drones:      map[string]DroneState{"S-001": {X: tick % 8, Y: 4, Hunger: 100 - tick, State: "searching", Role: "hopper"}},
			FoodSources: []swarm.FoodSource{{ID: 1, Amount: 30 - float64(tick)}, {ID: 2, Consumed: true}},
			QueenStock:  float64(tick) / 2,
			Trips:       tick / 10,
		})
		if tick%10 == 5 {
			r.RecordEvent(NewSwarmEvent(elapsed, swarm.Event{Kind: swarm.EventDeath, AgentID: "S-001", X: 1, Y: 2, Role: "worker"}))
		}
	}
	final := Grids{Active: testGrid(8, 1.25), Ghost: testGrid(8, 3.5)}
	rec := r.Finish(final, 3, 30, "duration")

	path := filepath.Join(t.TempDir(), RecordingName(rec.Metadata.Mode, 12, started))
	if err := Save(path, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := LoadRecording(path)
	if err != nil {
		t.Fatalf("LoadRecording: %v", err)
	}

	if len(loaded.Keyframes) != len(rec.Keyframes) {
		t.Errorf("keyframe count mismatch: got %d, want %d", len(loaded.Keyframes), len(rec.Keyframes))
	} else if !reflect.DeepEqual(loaded.Keyframes, rec.Keyframes) {
		t.Errorf("keyframes mismatch:\n got %+v\nwant %+v", loaded.Keyframes[0], rec.Keyframes[0])
	}
	if kf := loaded.Keyframes[len(loaded.Keyframes)-1]; kf.Food[1] != (FoodFrame{Consumed: true}) || kf.Agents["S-001"].Role != "hopper" {
		t.Errorf("last keyframe mismatch: %+v", kf)
	}
	if loaded.Metadata.KeyframeCount != len(rec.Keyframes) {
		t.Errorf("metadata keyframe count mismatch: got %d, want %d", loaded.Metadata.KeyframeCount, len(rec.Keyframes))
	}

	lm, wm := loaded.Metadata, rec.Metadata
	if !lm.StartedAt.Equal(wm.StartedAt) {
		t.Errorf("started_at mismatch: got %v, want %v", lm.StartedAt, wm.StartedAt)
	}
	lm.StartedAt, wm.StartedAt = time.Time{}, time.Time{}
	if lm != wm {
		t.Errorf("metadata mismatch:\n got %+v\nwant %+v", lm, wm)
	}
	if lm.SessionID == "" {
		t.Error("session id not assigned")
	}

	if err := loaded.Verify(); err != nil {
		t.Errorf("Verify: %v", err)
	}
	if got, want := loaded.FinalGrids.Checksum(), field.Checksum(final.Active, final.Ghost); got != want {
		t.Errorf("checksum mismatch: got %s, want %s", got, want)
	}

	if len(loaded.Events) != 3 || loaded.Events[0].Type != "death" || loaded.Events[0].Data["agent_id"] != "S-001" {
		t.Errorf("events mismatch: %+v", loaded.Events)
	}
	if d := loaded.InitialState.Drones["S-001"]; d.X != 3 || len(d.Trail) != 1 {
		t.Errorf("initial state mismatch: %+v", d)
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	r := NewRecorder(1)
	r.Start(Metadata{}, HiveState{})
	rec := r.Finish(Grids{Active: testGrid(4, 1), Ghost: testGrid(4, 2)}, 1, 10, "")

	rec.FinalGrids.Active[2][2] += 0.001
	if err := rec.Verify(); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("error mismatch: got %v, want ErrChecksumMismatch", err)
	}
}

func TestRecordingName(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	got := RecordingName("FORAGE,AVOID", 20, now)
	want := "sim_FORAGE+AVOID_20drones_2026-01-02_030405.slimehive"
	if got != want {
		t.Errorf("name mismatch: got %q, want %q", got, want)
	}
	if strings.Contains(got, ",") {
		t.Error("name should not contain commas")
	}
}
