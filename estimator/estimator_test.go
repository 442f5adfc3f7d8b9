package estimator

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestEstimator(clock *fakeClock) *Estimator {
	opts := DefaultOptions()
	opts.Now = clock.Now
	return New([]Anchor{
		{ID: "QUEEN", Pos: orb.Point{10, 10}},
		{ID: "SENTINEL", Pos: orb.Point{90, 90}},
	}, opts)
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestEstimateRequiresTwoAnchors(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	e := newTestEstimator(clock)

	if _, ok := e.Estimate("S-001"); ok {
		t.Error("expected no estimate without samples")
	}

	if err := e.AddSample("S-001", "QUEEN", -40); err != nil {
		t.Fatal(err)
	}
	if _, ok := e.Estimate("S-001"); ok {
		t.Error("expected no estimate from a single anchor")
	}

	if err := e.AddSample("S-001", "SENTINEL", -40); err != nil {
		t.Fatal(err)
	}
	est, ok := e.Estimate("S-001")
	if !ok {
		t.Fatal("expected an estimate from two anchors")
	}
	if est.Anchors != 2 {
		t.Errorf("anchor count mismatch: got %d, want 2", est.Anchors)
	}
}

func TestEqualRSSIGivesMidpoint(t *testing.T) {
	for _, rssi := range []float64{-20, -55, -80, -99, -140} {
		clock := &fakeClock{t: time.Unix(1000, 0)}
		e := newTestEstimator(clock)
		e.AddSample("A1", "QUEEN", rssi)
		e.AddSample("A1", "SENTINEL", rssi)

		est, ok := e.Estimate("A1")
		if !ok {
			t.Fatalf("rssi %v: expected estimate", rssi)
		}
		mid := orb.Point{50, 50}
		if d := planar.Distance(orb.Point{est.X, est.Y}, mid); d > 1e-9 {
			t.Errorf("rssi %v: estimate (%v,%v) is %v from midpoint", rssi, est.X, est.Y, d)
		}
	}
}

func TestStrongerSignalPullsEstimate(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	e := New([]Anchor{
		{ID: "A", Pos: orb.Point{0, 0}},
		{ID: "B", Pos: orb.Point{100, 0}},
	}, Options{Now: clock.Now, StaleAfter: 2 * time.Second})

	e.AddSample("d", "A", -30) // weight 0.7
	e.AddSample("d", "B", -70) // weight 0.3

	est, ok := e.Estimate("d")
	if !ok {
		t.Fatal("expected estimate")
	}
	if !approx(est.X, 30) || !approx(est.Y, 0) {
		t.Errorf("estimate mismatch: got (%v,%v), want (30,0)", est.X, est.Y)
	}
	if x, y := est.Cell(); x != 30 || y != 0 {
		t.Errorf("cell mismatch: got (%d,%d), want (30,0)", x, y)
	}
}

func TestWeightFloor(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	e := New([]Anchor{
		{ID: "A", Pos: orb.Point{0, 0}},
		{ID: "B", Pos: orb.Point{100, 0}},
	}, Options{Now: clock.Now, StaleAfter: 2 * time.Second})

	// Both below -99 clamp to the same 0.01 weight
	e.AddSample("d", "A", -120)
	e.AddSample("d", "B", -200)
	est, _ := e.Estimate("d")
	if !approx(est.X, 50) {
		t.Errorf("x mismatch: got %v, want 50", est.X)
	}
}

func TestStaleSamplesExcluded(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	e := newTestEstimator(clock)

	e.AddSample("A1", "QUEEN", -50)
	e.AddSample("A1", "SENTINEL", -50)

	clock.Advance(2 * time.Second)
	if _, ok := e.Estimate("A1"); !ok {
		t.Error("samples exactly at the staleness bound should still count")
	}

	clock.Advance(time.Millisecond)
	if _, ok := e.Estimate("A1"); ok {
		t.Error("expected no estimate once both buffers are stale")
	}

	// Refreshing one anchor is still not enough
	e.AddSample("A1", "QUEEN", -50)
	if _, ok := e.Estimate("A1"); ok {
		t.Error("expected no estimate with one fresh anchor")
	}
}

func TestBufferKeepsMostRecent(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	e := New([]Anchor{
		{ID: "A", Pos: orb.Point{0, 0}},
		{ID: "B", Pos: orb.Point{100, 0}},
	}, Options{Now: clock.Now, StaleAfter: 2 * time.Second, MaxSamples: 5})

	// Two weak readings then five strong ones: only the strong ones remain
	for _, r := range []float64{-95, -95, -50, -50, -50, -50, -50} {
		e.AddSample("d", "A", r)
	}
	e.AddSample("d", "B", -50)

	if n := len(e.buffers["d"]["A"].samples); n != 5 {
		t.Errorf("buffer length mismatch: got %d, want 5", n)
	}
	est, _ := e.Estimate("d")
	if !approx(est.X, 50) {
		t.Errorf("x mismatch: got %v, want 50", est.X)
	}
}

func TestUnknownAnchor(t *testing.T) {
	e := newTestEstimator(&fakeClock{t: time.Unix(0, 0)})
	err := e.AddSample("A1", "NOPE", -50)
	if !errors.Is(err, ErrUnknownAnchor) {
		t.Errorf("expected ErrUnknownAnchor, got %v", err)
	}
}

func TestForgetAndReset(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	e := newTestEstimator(clock)
	for _, id := range []string{"a", "b"} {
		e.AddSample(id, "QUEEN", -50)
		e.AddSample(id, "SENTINEL", -50)
	}

	e.Forget("a")
	if _, ok := e.Estimate("a"); ok {
		t.Error("forgotten agent still has an estimate")
	}
	if _, ok := e.Estimate("b"); !ok {
		t.Error("forget removed another agent")
	}

	e.Reset()
	if _, ok := e.Estimate("b"); ok {
		t.Error("reset left buffers behind")
	}
}

func TestParseMethod(t *testing.T) {
	tests := []struct {
		in      string
		want    Method
		wantErr bool
	}{
		{"", MethodCentroid, false},
		{"centroid", MethodCentroid, false},
		{"gravity", MethodCentroid, false},
		{"trilateration", MethodTrilateration, false},
		{"magic", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseMethod(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMethod(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMethod(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTrilaterate(t *testing.T) {
	p1, p2, p3 := orb.Point{0, 0}, orb.Point{10, 0}, orb.Point{0, 10}
	target := orb.Point{3, 4}

	got, err := Trilaterate(p1, p2, p3,
		planar.Distance(p1, target),
		planar.Distance(p2, target),
		planar.Distance(p3, target))
	if err != nil {
		t.Fatal(err)
	}
	if planar.Distance(got, target) > 1e-6 {
		t.Errorf("trilateration mismatch: got %v, want %v", got, target)
	}

	if _, err := Trilaterate(p1, p2, orb.Point{20, 0}, 1, 1, 1); !errors.Is(err, ErrDegenerate) {
		t.Errorf("expected ErrDegenerate for collinear anchors, got %v", err)
	}
}

func TestTrilaterationMethodFallsBackWithTwoAnchors(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	opts := DefaultOptions()
	opts.Now = clock.Now
	opts.Method = MethodTrilateration
	e := New([]Anchor{
		{ID: "QUEEN", Pos: orb.Point{10, 10}},
		{ID: "SENTINEL", Pos: orb.Point{90, 90}},
	}, opts)

	e.AddSample("x", "QUEEN", -60)
	e.AddSample("x", "SENTINEL", -60)
	est, ok := e.Estimate("x")
	if !ok || !approx(est.X, 50) || !approx(est.Y, 50) {
		t.Errorf("expected centroid fallback at (50,50), got %+v ok=%v", est, ok)
	}
}

func TestRSSIToDistance(t *testing.T) {
	if d := RSSIToDistance(-40, -40, 2); !approx(d, 1) {
		t.Errorf("distance at tx power mismatch: got %v, want 1", d)
	}
	if d := RSSIToDistance(-60, -40, 2); !approx(d, 10) {
		t.Errorf("distance at -60 mismatch: got %v, want 10", d)
	}
}
