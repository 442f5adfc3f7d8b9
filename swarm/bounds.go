package swarm

import (
	"github.com/paulmach/orb"

	"github.com/pthm-cable/slimehive/config"
)

// Bounds is the inclusive operational rectangle agents stay inside.
type Bounds struct {
	MinX, MinY, MaxX, MaxY int
}

// BoundsFrom converts the configured boundary.
func BoundsFrom(b config.BoundaryConfig) Bounds {
	return Bounds{MinX: b.MinX, MinY: b.MinY, MaxX: b.MaxX, MaxY: b.MaxY}
}

// Clamp moves (x,y) to the nearest cell inside the rectangle.
func (b Bounds) Clamp(x, y int) (int, int) {
	return clampInt(x, b.MinX, b.MaxX), clampInt(y, b.MinY, b.MaxY)
}

// Contains reports whether (x,y) lies inside the rectangle.
func (b Bounds) Contains(x, y int) bool {
	return x >= b.MinX && x <= b.MaxX && y >= b.MinY && y <= b.MaxY
}

// Bound returns the rectangle as an orb.Bound.
func (b Bounds) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{float64(b.MinX), float64(b.MinY)},
		Max: orb.Point{float64(b.MaxX), float64(b.MaxY)},
	}
}

// Center returns the geometric center.
func (b Bounds) Center() orb.Point {
	return b.Bound().Center()
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func sign(v, threshold float64) int {
	switch {
	case v > threshold:
		return 1
	case v < -threshold:
		return -1
	}
	return 0
}
