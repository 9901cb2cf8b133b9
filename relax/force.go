package relax

import (
	"math"

	"github.com/pthm-cable/icgen/kernel"
)

// forceChunk accumulates, for each particle in [start, end), the unscaled
// displacement sum
//
//	S_i = sum_j h_ij W(r_ij, h_ij) (x_i - x_j) / r_ij
//
// with h_ij the mean of the two model smoothing lengths. The move multiplies
// S_i by C and the mean interparticle distance.
func (e *Engine) forceChunk(start, end int, s *workerScratch) error {
	p := e.parts
	ndim := p.NDim
	k := e.kern
	for i := start; i < end; i++ {
		hi := p.ModelH[i]
		radius := k.Support(0.5 * (hi + e.modelHMax))
		s.Neighbors = e.grid.QueryRadiusInto(s.Neighbors[:0], e.grid.Position(i), radius, i)

		acc := e.raw[i*ndim : (i+1)*ndim]
		for d := range acc {
			acc[d] = 0
		}
		for _, n := range s.Neighbors {
			// Coincident particles have no direction
			if n.Dist == 0 {
				continue
			}
			hij := 0.5 * (hi + p.ModelH[n.Index])
			if n.Dist >= k.Support(hij) {
				continue
			}
			w := pairWeight(k, n.Dist, hij) / n.Dist
			for d := 0; d < ndim; d++ {
				acc[d] += w * n.Delta[d]
			}
		}

		var norm2 float64
		for _, v := range acc {
			norm2 += v * v
		}
		e.rawMag[i] = math.Sqrt(norm2)
	}
	return nil
}

// pairWeight returns h W(r, h).
func pairWeight(k kernel.Kernel, r, h float64) float64 {
	return h * k.W(r, h)
}
