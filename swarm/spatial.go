package swarm

import "math"

// Neighbor holds a nearby agent with precomputed offsets.
type Neighbor struct {
	Index  int     // Index into the slice the grid was built from
	DX, DY float64 // Offset from query origin to the neighbor
	Dist   float64
}

// SpatialGrid buckets agents into square cells for radius queries.
// The grid is bounded, not toroidal: agents never leave the boundary.
type SpatialGrid struct {
	cellSize int
	minX     int
	minY     int
	cols     int
	rows     int
	cells    [][]int
}

// NewSpatialGrid creates a grid covering b with the given cell size.
func NewSpatialGrid(b Bounds, cellSize int) *SpatialGrid {
	if cellSize < 1 {
		cellSize = 1
	}
	cols := (b.MaxX-b.MinX)/cellSize + 1
	rows := (b.MaxY-b.MinY)/cellSize + 1

	cells := make([][]int, cols*rows)
	for i := range cells {
		cells[i] = make([]int, 0, 4)
	}
	return &SpatialGrid{
		cellSize: cellSize,
		minX:     b.MinX,
		minY:     b.MinY,
		cols:     cols,
		rows:     rows,
		cells:    cells,
	}
}

// Rebuild clears the grid and inserts every agent by index.
func (g *SpatialGrid) Rebuild(agents []Agent) {
	for i := range g.cells {
		g.cells[i] = g.cells[i][:0]
	}
	for i := range agents {
		idx := g.cellIndex(agents[i].Pos.X, agents[i].Pos.Y)
		g.cells[idx] = append(g.cells[idx], i)
	}
}

// MaxQueryResults caps the number of neighbors returned by a query.
const MaxQueryResults = 64

// QueryRadiusInto appends agents within radius of (x,y), excluding the
// agent at index exclude, to dst. Reuse dst across calls to avoid allocations.
func (g *SpatialGrid) QueryRadiusInto(dst []Neighbor, agents []Agent, x, y int, radius float64, exclude int) []Neighbor {
	cellRadius := int(radius)/g.cellSize + 1
	centerCol := (x - g.minX) / g.cellSize
	centerRow := (y - g.minY) / g.cellSize

	for dr := -cellRadius; dr <= cellRadius; dr++ {
		row := centerRow + dr
		if row < 0 || row >= g.rows {
			continue
		}
		for dc := -cellRadius; dc <= cellRadius; dc++ {
			col := centerCol + dc
			if col < 0 || col >= g.cols {
				continue
			}
			for _, i := range g.cells[row*g.cols+col] {
				if i == exclude {
					continue
				}
				dx := float64(agents[i].Pos.X - x)
				dy := float64(agents[i].Pos.Y - y)
				dist := math.Hypot(dx, dy)
				if dist > radius {
					continue
				}
				dst = append(dst, Neighbor{Index: i, DX: dx, DY: dy, Dist: dist})
				if len(dst) >= MaxQueryResults {
					return dst
				}
			}
		}
	}
	return dst
}

func (g *SpatialGrid) cellIndex(x, y int) int {
	col := clampInt((x-g.minX)/g.cellSize, 0, g.cols-1)
	row := clampInt((y-g.minY)/g.cellSize, 0, g.rows-1)
	return row*g.cols + col
}
