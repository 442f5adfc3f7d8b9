// Package estimator turns per-anchor signal strength readings into grid
// coordinates.
package estimator

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/paulmach/orb"
)

// ErrUnknownAnchor is returned for samples from an anchor that was never registered.
var ErrUnknownAnchor = errors.New("unknown anchor")

// Method selects how fresh samples are combined.
type Method uint8

const (
	MethodCentroid      Method = iota // Weighted centroid of anchor positions
	MethodTrilateration               // Circle intersection, needs 3 anchors
)

// ParseMethod maps a config string to a Method.
func ParseMethod(s string) (Method, error) {
	switch s {
	case "", "centroid", "gravity":
		return MethodCentroid, nil
	case "trilateration":
		return MethodTrilateration, nil
	}
	return 0, fmt.Errorf("unknown position method %q", s)
}

// Anchor is a receiver at a fixed, known position.
type Anchor struct {
	ID  string
	Pos orb.Point
}

// Estimate is a resolved position and how many anchors backed it.
type Estimate struct {
	X, Y    float64
	Anchors int
}

// Cell rounds the estimate to the nearest grid cell.
func (e Estimate) Cell() (int, int) {
	return int(math.Round(e.X)), int(math.Round(e.Y))
}

// Options tunes an Estimator.
type Options struct {
	StaleAfter  time.Duration
	MaxSamples  int
	MinAnchors  int
	Method      Method
	TxPower     float64 // RSSI at distance 1, trilateration only
	PathLossExp float64 // trilateration only

	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// DefaultOptions matches the hive's receivers.
func DefaultOptions() Options {
	return Options{
		StaleAfter:  2 * time.Second,
		MaxSamples:  5,
		MinAnchors:  2,
		Method:      MethodCentroid,
		TxPower:     -40,
		PathLossExp: 2,
	}
}

type buffer struct {
	samples []float64
	updated time.Time
}

func (b *buffer) mean() float64 {
	var sum float64
	for _, s := range b.samples {
		sum += s
	}
	return sum / float64(len(b.samples))
}

// Estimator buffers RSSI readings per (agent, anchor). It is not safe for
// concurrent use; the tick loop owns it.
type Estimator struct {
	opts    Options
	anchors map[string]orb.Point
	order   []string // anchor ids, sorted, for deterministic sums

	buffers map[string]map[string]*buffer // agent -> anchor -> buffer
}

// New creates an estimator over the given anchors.
func New(anchors []Anchor, opts Options) *Estimator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxSamples <= 0 {
		opts.MaxSamples = 5
	}
	if opts.MinAnchors < 2 {
		opts.MinAnchors = 2
	}
	e := &Estimator{
		opts:    opts,
		anchors: make(map[string]orb.Point, len(anchors)),
		buffers: make(map[string]map[string]*buffer),
	}
	for _, a := range anchors {
		e.anchors[a.ID] = a.Pos
		e.order = append(e.order, a.ID)
	}
	sort.Strings(e.order)
	return e
}

// Anchor looks up a registered anchor.
func (e *Estimator) Anchor(id string) (Anchor, bool) {
	p, ok := e.anchors[id]
	return Anchor{ID: id, Pos: p}, ok
}

// Anchors returns every registered anchor sorted by id.
func (e *Estimator) Anchors() []Anchor {
	out := make([]Anchor, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, Anchor{ID: id, Pos: e.anchors[id]})
	}
	return out
}

// AddSample records a reading and refreshes the buffer timestamp.
// Only the most recent MaxSamples readings are kept.
func (e *Estimator) AddSample(agentID, anchorID string, rssi float64) error {
	if _, ok := e.anchors[anchorID]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAnchor, anchorID)
	}
	perAgent := e.buffers[agentID]
	if perAgent == nil {
		perAgent = make(map[string]*buffer)
		e.buffers[agentID] = perAgent
	}
	b := perAgent[anchorID]
	if b == nil {
		b = &buffer{samples: make([]float64, 0, e.opts.MaxSamples)}
		perAgent[anchorID] = b
	}
	if len(b.samples) == e.opts.MaxSamples {
		copy(b.samples, b.samples[1:])
		b.samples = b.samples[:len(b.samples)-1]
	}
	b.samples = append(b.samples, rssi)
	b.updated = e.opts.Now()
	return nil
}

type reading struct {
	pos     orb.Point
	avgRSSI float64
}

// fresh returns the averaged readings for anchors updated within StaleAfter.
func (e *Estimator) fresh(agentID string) []reading {
	perAgent := e.buffers[agentID]
	if perAgent == nil {
		return nil
	}
	now := e.opts.Now()
	var out []reading
	for _, id := range e.order {
		b := perAgent[id]
		if b == nil || len(b.samples) == 0 {
			continue
		}
		if now.Sub(b.updated) > e.opts.StaleAfter {
			continue
		}
		out = append(out, reading{pos: e.anchors[id], avgRSSI: b.mean()})
	}
	return out
}

// Estimate resolves the agent's position from fresh buffers. It reports
// false unless at least MinAnchors anchors contributed; a single anchor
// never produces an estimate.
func (e *Estimator) Estimate(agentID string) (Estimate, bool) {
	rs := e.fresh(agentID)
	if len(rs) < e.opts.MinAnchors {
		return Estimate{}, false
	}

	if e.opts.Method == MethodTrilateration && len(rs) >= 3 {
		d := func(r reading) float64 {
			return RSSIToDistance(r.avgRSSI, e.opts.TxPower, e.opts.PathLossExp)
		}
		p, err := Trilaterate(rs[0].pos, rs[1].pos, rs[2].pos, d(rs[0]), d(rs[1]), d(rs[2]))
		if err == nil {
			return Estimate{X: p[0], Y: p[1], Anchors: len(rs)}, true
		}
		// Collinear anchors fall through to the centroid
	}

	return centroid(rs), true
}

// centroid weights each anchor by (100+avgRSSI)/100, floored at 0.01,
// so stronger signals pull the estimate toward their anchor.
func centroid(rs []reading) Estimate {
	var wx, wy, wsum float64
	for _, r := range rs {
		w := (100 + r.avgRSSI) / 100
		if w < 0.01 {
			w = 0.01
		}
		wx += w * r.pos[0]
		wy += w * r.pos[1]
		wsum += w
	}
	return Estimate{X: wx / wsum, Y: wy / wsum, Anchors: len(rs)}
}

// Forget drops all buffers for an agent.
func (e *Estimator) Forget(agentID string) {
	delete(e.buffers, agentID)
}

// Reset drops every buffer.
func (e *Estimator) Reset() {
	clear(e.buffers)
}
