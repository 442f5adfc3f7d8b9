package estimator

import (
	"errors"
	"math"

	"github.com/paulmach/orb"
)

// ErrDegenerate is returned when the anchors are collinear.
var ErrDegenerate = errors.New("degenerate anchor geometry")

// RSSIToDistance inverts the log-distance path loss model:
// rssi = txPower - 10*n*log10(d).
func RSSIToDistance(rssi, txPower, n float64) float64 {
	if n <= 0 {
		n = 2
	}
	return math.Pow(10, (txPower-rssi)/(10*n))
}

// Trilaterate intersects three circles by subtracting their equations
// pairwise, which leaves a 2×2 linear system.
func Trilaterate(p1, p2, p3 orb.Point, r1, r2, r3 float64) (orb.Point, error) {
	x1, y1 := p1[0], p1[1]
	x2, y2 := p2[0], p2[1]
	x3, y3 := p3[0], p3[1]

	a := 2 * (x2 - x1)
	b := 2 * (y2 - y1)
	c := r1*r1 - r2*r2 - x1*x1 + x2*x2 - y1*y1 + y2*y2
	d := 2 * (x3 - x2)
	e := 2 * (y3 - y2)
	f := r2*r2 - r3*r3 - x2*x2 + x3*x3 - y2*y2 + y3*y3

	den := a*e - b*d
	if math.Abs(den) < 1e-9 {
		return orb.Point{}, ErrDegenerate
	}
	return orb.Point{(c*e - f*b) / den, (a*f - d*c) / den}, nil
}
