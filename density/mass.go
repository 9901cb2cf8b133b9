package density

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// autoQuadraturePoints is the total grid size used when no resolution is set.
const autoQuadraturePoints = 1 << 20

// quadratureBatch bounds the number of points passed to the field per call.
const quadratureBatch = 1 << 14

// Mass holds the result of integrating the field over the domain.
type Mass struct {
	Total       float64 // Integrated mass
	PerParticle float64 // Total / N
	Points      int     // Quadrature points used, 0 when not integrated
}

// QuadraturePoints returns the per-dimension resolution, resolving 0 to auto.
func QuadraturePoints(pointsPerDim, ndim int) int {
	if pointsPerDim > 0 {
		return pointsPerDim
	}
	n := int(math.Round(math.Pow(autoQuadraturePoints, 1/float64(ndim))))
	return max(n, 16)
}

// Normalize integrates the field over the box [0, extent) with a midpoint
// grid of pointsPerDim^ndim cells and divides the total among n particles.
func Normalize(f Field, extent []float64, n, pointsPerDim int) (Mass, error) {
	ndim := len(extent)
	res := QuadraturePoints(pointsPerDim, ndim)

	total := 1
	cellVol := 1.0
	spacing := make([]float64, ndim)
	for d, e := range extent {
		total *= res
		spacing[d] = e / float64(res)
		cellVol *= spacing[d]
	}

	batch := make([]float64, 0, quadratureBatch*ndim)
	var sum float64
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		vals, err := Evaluate(f, batch, ndim)
		if err != nil {
			return err
		}
		sum += floats.Sum(vals)
		batch = batch[:0]
		return nil
	}

	idx := make([]int, ndim)
	for k := 0; k < total; k++ {
		for d := 0; d < ndim; d++ {
			batch = append(batch, (float64(idx[d])+0.5)*spacing[d])
		}
		// Odometer increment, first dimension fastest
		for d := 0; d < ndim; d++ {
			idx[d]++
			if idx[d] < res {
				break
			}
			idx[d] = 0
		}
		if len(batch) == cap(batch) {
			if err := flush(); err != nil {
				return Mass{}, err
			}
		}
	}
	if err := flush(); err != nil {
		return Mass{}, err
	}

	m := Mass{Total: sum * cellVol, Points: total}
	if n > 0 {
		m.PerParticle = m.Total / float64(n)
	}
	return m, nil
}
