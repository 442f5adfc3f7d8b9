// Package field implements the pheromone grids agents communicate through.
package field

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"

	"gonum.org/v1/gonum/floats"
)

// DefaultMax is the saturation value of a cell.
const DefaultMax = 255.0

// Pheromone holds two co-located N×N grids. Active decays every tick;
// Ghost only accumulates and serves as long-term trail and beacon memory.
// Grids are row-major: index = y*size + x.
type Pheromone struct {
	size       int
	maxValue   float64
	ghostRatio float64
	diffusion  bool

	active []float64
	ghost  []float64

	// Scratch buffer for diffusion
	tmp []float64
}

// New creates an empty field. ghostRatio is the share of every deposit
// that also lands in Ghost.
func New(size int, maxValue, ghostRatio float64) *Pheromone {
	if maxValue <= 0 {
		maxValue = DefaultMax
	}
	return &Pheromone{
		size:       size,
		maxValue:   maxValue,
		ghostRatio: ghostRatio,
		active:     make([]float64, size*size),
		ghost:      make([]float64, size*size),
		tmp:        make([]float64, size*size),
	}
}

// SetGhostRatio changes the Ghost share of future deposits.
func (p *Pheromone) SetGhostRatio(r float64) { p.ghostRatio = r }

// SetDiffusion enables convolving Active with the spreading kernel before decay.
func (p *Pheromone) SetDiffusion(on bool) { p.diffusion = on }

// Size returns N.
func (p *Pheromone) Size() int { return p.size }

// InBounds reports whether (x,y) is a grid cell.
func (p *Pheromone) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < p.size && y < p.size
}

// Deposit adds amount to Active and amount*ghostRatio to Ghost.
// Coordinates outside the grid and non-positive amounts are ignored.
func (p *Pheromone) Deposit(x, y int, amount float64) {
	if !p.InBounds(x, y) || !(amount > 0) {
		return
	}
	i := y*p.size + x
	p.active[i] = p.clamp(p.active[i] + amount)
	p.ghost[i] = p.clamp(p.ghost[i] + amount*p.ghostRatio)
}

// DepositGhost adds amount to Ghost only.
func (p *Pheromone) DepositGhost(x, y int, amount float64) {
	if !p.InBounds(x, y) || !(amount > 0) {
		return
	}
	i := y*p.size + x
	p.ghost[i] = p.clamp(p.ghost[i] + amount)
}

// Beacon stamps a 5×5 falloff into Ghost centered on (x,y).
// A cell at Chebyshev distance d receives strength/(d+1).
func (p *Pheromone) Beacon(x, y int, strength float64) {
	for dy := -2; dy <= 2; dy++ {
		for dx := -2; dx <= 2; dx++ {
			d := max(absInt(dx), absInt(dy))
			p.DepositGhost(x+dx, y+dy, strength/float64(d+1))
		}
	}
}

// Tick applies optional diffusion and then multiplies Active by decayRate.
// Ghost is never decayed. A NaN rate leaves Active as it is.
func (p *Pheromone) Tick(decayRate float64) {
	if p.diffusion {
		p.diffuse()
	}
	if math.IsNaN(decayRate) {
		return
	}
	floats.Scale(decayRate, p.active)
	if !(0 <= decayRate && decayRate <= 1) {
		for i, v := range p.active {
			p.active[i] = p.clamp(v)
		}
	}
}

// kernel spreads a cell into its 8 neighbors; it sums to 1.
var kernel = [3][3]float64{
	{0.05, 0.1, 0.05},
	{0.1, 0.4, 0.1},
	{0.05, 0.1, 0.05},
}

// diffuse convolves Active with kernel. Edges reflect, so signal
// bounces off the walls rather than leaking out of the grid.
func (p *Pheromone) diffuse() {
	n := p.size
	src := p.active
	dst := p.tmp

	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			var sum float64
			for ky := -1; ky <= 1; ky++ {
				sy := mirror(y+ky, n)
				for kx := -1; kx <= 1; kx++ {
					sx := mirror(x+kx, n)
					sum += kernel[ky+1][kx+1] * src[sy*n+sx]
				}
			}
			dst[y*n+x] = sum
		}
	}

	p.active, p.tmp = dst, src
}

// Clear zeroes both grids.
func (p *Pheromone) Clear() {
	clear(p.active)
	clear(p.ghost)
}

// At returns the Active value at (x,y), 0 outside the grid.
func (p *Pheromone) At(x, y int) float64 {
	if !p.InBounds(x, y) {
		return 0
	}
	return p.active[y*p.size+x]
}

// GhostAt returns the Ghost value at (x,y), 0 outside the grid.
func (p *Pheromone) GhostAt(x, y int) float64 {
	if !p.InBounds(x, y) {
		return 0
	}
	return p.ghost[y*p.size+x]
}

// Active returns a copy of the Active grid as rows indexed [y][x].
func (p *Pheromone) Active() [][]float64 { return rows(p.active, p.size) }

// Ghost returns a copy of the Ghost grid as rows indexed [y][x].
func (p *Pheromone) Ghost() [][]float64 { return rows(p.ghost, p.size) }

// Peak returns the highest Active value.
func (p *Pheromone) Peak() float64 {
	if len(p.active) == 0 {
		return 0
	}
	return floats.Max(p.active)
}

// Total returns the sum of Active.
func (p *Pheromone) Total() float64 { return floats.Sum(p.active) }

// Coverage returns the fraction of cells with any Ghost signal.
func (p *Pheromone) Coverage() float64 {
	if len(p.ghost) == 0 {
		return 0
	}
	var n int
	for _, v := range p.ghost {
		if v > 0 {
			n++
		}
	}
	return float64(n) / float64(len(p.ghost))
}

// Checksum fingerprints both grids.
func (p *Pheromone) Checksum() string {
	return Checksum(p.Active(), p.Ghost())
}

// Restore replaces both grids with the given rows. Missing rows or
// columns are treated as zero; values are clamped.
func (p *Pheromone) Restore(active, ghost [][]float64) {
	load := func(dst []float64, src [][]float64) {
		clear(dst)
		for y := 0; y < p.size && y < len(src); y++ {
			for x := 0; x < p.size && x < len(src[y]); x++ {
				dst[y*p.size+x] = p.clamp(src[y][x])
			}
		}
	}
	load(p.active, active)
	load(p.ghost, ghost)
}

// Checksum returns a hex SHA-256 over the exact bits of every cell,
// grid by grid in row order.
func Checksum(grids ...[][]float64) string {
	h := sha256.New()
	var buf [8]byte
	for _, g := range grids {
		for _, row := range g {
			for _, v := range row {
				binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
				h.Write(buf[:])
			}
		}
		// Separator so ([a],[b]) and ([a,b]) differ
		h.Write([]byte{0xff})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (p *Pheromone) clamp(v float64) float64 {
	if !(v >= 0) {
		return 0
	}
	if v > p.maxValue {
		return p.maxValue
	}
	return v
}

func rows(flat []float64, n int) [][]float64 {
	out := make([][]float64, n)
	for y := range out {
		out[y] = append([]float64(nil), flat[y*n:(y+1)*n]...)
	}
	return out
}

func mirror(i, n int) int {
	if i < 0 {
		return -i - 1
	}
	if i >= n {
		return 2*n - i - 1
	}
	return i
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
