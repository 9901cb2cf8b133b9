// Package neighbors provides the cell grid used for neighbour queries and
// the per-particle smoothing-length solve.
package neighbors

import (
	"math"

	"github.com/pthm-cable/icgen/domain"
)

// Neighbor holds a nearby particle with precomputed separation.
// Delta is x_query - x_neighbor under the box's distance convention.
type Neighbor struct {
	Index int
	Delta [3]float64
	Dist  float64
}

// Grid provides neighbour lookups using a uniform cell grid. Particles are
// stored in compressed rows (cellStart/items) in increasing index order, so
// query results come back in a deterministic order.
type Grid struct {
	box   domain.Box
	ndim  int
	dims  [3]int
	width [3]float64

	pos       []float64
	cellOf    []int
	cellStart []int
	items     []int
}

// NewGrid creates a grid over the box with cells roughly cellSize wide.
func NewGrid(box domain.Box, cellSize float64) *Grid {
	g := &Grid{box: box, ndim: box.NDim()}
	ncell := 1
	for d := 0; d < 3; d++ {
		if d >= g.ndim {
			g.dims[d] = 1
			g.width[d] = 1
			continue
		}
		e := box.Extent[d]
		n := 1
		if cellSize > 0 {
			n = max(int(e/cellSize), 1)
		}
		g.dims[d] = n
		g.width[d] = e / float64(n)
		ncell *= n
	}
	g.cellStart = make([]int, ncell+1)
	return g
}

// Rebuild re-indexes the grid over the given positions. The grid keeps a
// reference to pos; callers must not mutate it while querying.
func (g *Grid) Rebuild(pos []float64) {
	n := len(pos) / g.ndim
	g.pos = pos
	if cap(g.cellOf) < n {
		g.cellOf = make([]int, n)
		g.items = make([]int, n)
	}
	g.cellOf = g.cellOf[:n]
	g.items = g.items[:n]

	for i := range g.cellStart {
		g.cellStart[i] = 0
	}
	for i := 0; i < n; i++ {
		c := g.cellIndex(pos[i*g.ndim : (i+1)*g.ndim])
		g.cellOf[i] = c
		g.cellStart[c+1]++
	}
	for c := 1; c < len(g.cellStart); c++ {
		g.cellStart[c] += g.cellStart[c-1]
	}
	// Counting sort, stable in particle index
	fill := make([]int, len(g.cellStart)-1)
	copy(fill, g.cellStart[:len(g.cellStart)-1])
	for i := 0; i < n; i++ {
		c := g.cellOf[i]
		g.items[fill[c]] = i
		fill[c]++
	}
}

// Position returns the indexed position of particle i.
func (g *Grid) Position(i int) []float64 {
	return g.pos[i*g.ndim : (i+1)*g.ndim]
}

// QueryRadiusInto finds particles within radius of p and appends them to dst.
// Returns the updated slice. Reuse dst across calls to avoid allocations.
// Pass exclude = -1 to keep every particle.
func (g *Grid) QueryRadiusInto(dst []Neighbor, p []float64, radius float64, exclude int) []Neighbor {
	var lo, cnt [3]int
	for d := 0; d < 3; d++ {
		if d >= g.ndim {
			lo[d], cnt[d] = 0, 1
			continue
		}
		a := int(math.Floor((p[d] - radius) / g.width[d]))
		b := int(math.Floor((p[d] + radius) / g.width[d]))
		if g.box.Periodic {
			if b-a+1 >= g.dims[d] {
				a, b = 0, g.dims[d]-1
			}
		} else {
			a = max(a, 0)
			b = min(b, g.dims[d]-1)
		}
		lo[d], cnt[d] = a, b-a+1
	}

	var delta [3]float64
	for k2 := 0; k2 < cnt[2]; k2++ {
		c2 := g.wrapCell(lo[2]+k2, 2)
		for k1 := 0; k1 < cnt[1]; k1++ {
			c1 := g.wrapCell(lo[1]+k1, 1)
			for k0 := 0; k0 < cnt[0]; k0++ {
				c0 := g.wrapCell(lo[0]+k0, 0)
				c := c0 + g.dims[0]*(c1+g.dims[1]*c2)

				for _, j := range g.items[g.cellStart[c]:g.cellStart[c+1]] {
					if j == exclude {
						continue
					}
					r := g.box.Delta(delta[:g.ndim], p, g.Position(j))
					if r <= radius {
						dst = append(dst, Neighbor{Index: j, Delta: delta, Dist: r})
					}
				}
			}
		}
	}
	return dst
}

func (g *Grid) wrapCell(c, d int) int {
	n := g.dims[d]
	if c < 0 || c >= n {
		c %= n
		if c < 0 {
			c += n
		}
	}
	return c
}

// cellIndex returns the flat cell index for a position.
func (g *Grid) cellIndex(p []float64) int {
	var c [3]int
	for d := 0; d < g.ndim; d++ {
		v := int(p[d] / g.width[d])
		// Clamp to valid range
		if v < 0 {
			v = 0
		} else if v >= g.dims[d] {
			v = g.dims[d] - 1
		}
		c[d] = v
	}
	return c[0] + g.dims[0]*(c[1]+g.dims[1]*c[2])
}
