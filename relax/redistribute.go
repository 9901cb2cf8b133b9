package relax

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
	"gonum.org/v1/gonum/stat/sampleuv"

	"github.com/pthm-cable/icgen/config"
	"github.com/pthm-cable/icgen/domain"
)

// redistributionRadius is the ball radius around a target particle, in units
// of its kernel support.
const redistributionRadius = 0.3

// modelFloor bounds model densities from below, relative to their mean, when
// forming density ratios.
const modelFloor = 1e-12

// redistributionDue reports whether iteration k runs a redistribution pass.
func redistributionDue(rc config.RedistributionConfig, k int) bool {
	return rc.Frequency > 0 && k > 0 && k%rc.Frequency == 0 && k <= rc.NoRedistributionAfter
}

// redistribute relocates round(fraction*N) over-dense particles next to
// under-dense ones. Sources are drawn without replacement with probability
// proportional to rho/rho_model among particles with a ratio above one;
// targets are drawn with replacement with probability proportional to
// rho_model/rho. Each moved particle lands uniformly inside a ball of radius
// 0.3 * support(h_target) around its target. Returns the number moved.
func redistribute(p *ParticleSet, box domain.Box, gamma, fraction float64, rng *rand.Rand) int {
	n := p.Len()
	count := int(math.Round(fraction * float64(n)))
	if count == 0 {
		return 0
	}

	var meanModel float64
	for _, m := range p.ModelDensity {
		meanModel += m
	}
	floor := modelFloor * meanModel / float64(n)
	if !(floor > 0) {
		floor = math.SmallestNonzeroFloat64
	}

	ratio := make([]float64, n)
	var sources []int
	var sourceWeights []float64
	for i := range ratio {
		ratio[i] = p.Density[i] / math.Max(p.ModelDensity[i], floor)
		if ratio[i] > 1 {
			sources = append(sources, i)
			sourceWeights = append(sourceWeights, ratio[i])
		}
	}
	count = min(count, len(sources))
	if count == 0 {
		return 0
	}

	targetWeights := make([]float64, n)
	for i, r := range ratio {
		if r > 0 {
			targetWeights[i] = 1 / r
		}
	}

	picker := sampleuv.NewWeighted(sourceWeights, rng)
	targets := distuv.NewCategorical(targetWeights, rng)

	ndim := p.NDim
	offset := make([]float64, ndim)
	moved := 0
	for moved < count {
		k, ok := picker.Take()
		if !ok {
			break
		}
		src := sources[k]
		dst := int(targets.Rand())

		ballOffset(offset, redistributionRadius*gamma*p.H[dst], rng)
		x := p.Position(src)
		y := p.Position(dst)
		for d := 0; d < ndim; d++ {
			x[d] = y[d] + offset[d]
		}
		box.Place(x)
		moved++
	}
	return moved
}

// ballOffset writes a point drawn uniformly from the ball of the given radius.
func ballOffset(dst []float64, radius float64, rng *rand.Rand) {
	var norm2 float64
	for norm2 == 0 {
		norm2 = 0
		for d := range dst {
			dst[d] = rng.NormFloat64()
			norm2 += dst[d] * dst[d]
		}
	}
	r := radius * math.Pow(rng.Float64(), 1/float64(len(dst))) / math.Sqrt(norm2)
	for d := range dst {
		dst[d] *= r
	}
}
