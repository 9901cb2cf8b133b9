// Package sampling produces the initial particle coordinates.
package sampling

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/icgen/config"
	"github.com/pthm-cable/icgen/density"
	"github.com/pthm-cable/icgen/domain"
)

// Method names accepted in sampling.method.
const (
	MethodRejection = "rejection"
	MethodUniform   = "uniform"
	MethodDisplaced = "displaced"
	MethodExternal  = "external"
)

// External holds caller-supplied initial conditions. Mass is optional.
type External struct {
	Pos  []float64 // N*ndim, row-major
	Mass []float64 // N, or nil to use the normalized mass
}

// Initial produces exactly N coordinates inside the box using the configured
// method. For the external method the supplied arrays are validated and copied.
func Initial(cfg *config.Config, f density.Field, rng *rand.Rand, ext *External) ([]float64, error) {
	box := domain.Box{Extent: cfg.Domain.Extent, Periodic: cfg.Domain.Periodic}
	n := cfg.Derived.N

	switch cfg.Sampling.Method {
	case MethodRejection:
		return Rejection(f, box, n, rng, cfg.Sampling)
	case MethodUniform:
		return Lattice(box, cfg.Domain.ParticlesPerDim), nil
	case MethodDisplaced:
		return Displaced(box, cfg.Domain.ParticlesPerDim, cfg.Sampling.Jitter, rng), nil
	case MethodExternal:
		if ext == nil {
			return nil, config.Invalid("sampling.method", "external sampling needs supplied coordinates")
		}
		if err := ext.validate(n, box.NDim()); err != nil {
			return nil, err
		}
		return append([]float64(nil), ext.Pos...), nil
	}
	return nil, config.Invalid("sampling.method", "unknown method %q", cfg.Sampling.Method)
}

func (e *External) validate(n, ndim int) error {
	if len(e.Pos) != n*ndim {
		return config.Invalid("external.pos", "need %d coordinates (%d particles x %d dims), got %d",
			n*ndim, n, ndim, len(e.Pos))
	}
	if e.Mass != nil && len(e.Mass) != n {
		return config.Invalid("external.mass", "need %d masses, got %d", n, len(e.Mass))
	}
	for i, m := range e.Mass {
		if !(m > 0) {
			return config.Invalid("external.mass", "mass[%d] must be positive, got %g", i, m)
		}
	}
	return nil
}

// Lattice returns the cell-centred lattice with perDim points per dimension,
// first dimension varying fastest.
func Lattice(box domain.Box, perDim int) []float64 {
	ndim := box.NDim()
	axes := make([][]float64, ndim)
	for d, e := range box.Extent {
		axes[d] = make([]float64, perDim)
		half := e / float64(perDim) / 2
		if perDim == 1 {
			axes[d][0] = half
			continue
		}
		floats.Span(axes[d], half, e-half)
	}

	n := 1
	for range ndim {
		n *= perDim
	}
	pos := make([]float64, 0, n*ndim)
	idx := make([]int, ndim)
	for k := 0; k < n; k++ {
		for d := 0; d < ndim; d++ {
			pos = append(pos, axes[d][idx[d]])
		}
		for d := 0; d < ndim; d++ {
			idx[d]++
			if idx[d] < perDim {
				break
			}
			idx[d] = 0
		}
	}
	return pos
}

// Displaced returns the lattice with each coordinate offset uniformly by up to
// jitter cell spacings, then placed back into the box.
func Displaced(box domain.Box, perDim int, jitter float64, rng *rand.Rand) []float64 {
	pos := Lattice(box, perDim)
	ndim := box.NDim()
	for i := 0; i < len(pos); i += ndim {
		p := pos[i : i+ndim]
		for d, e := range box.Extent {
			spacing := e / float64(perDim)
			p[d] += (2*rng.Float64() - 1) * jitter * spacing
		}
		box.Place(p)
	}
	return pos
}

// Rejection draws uniform candidates and accepts each with probability
// rho(x)/rho_max until exactly n are accepted. rho_max is estimated from
// uniform probes scaled by the safety factor.
func Rejection(f density.Field, box domain.Box, n int, rng *rand.Rand, sc config.SamplingConfig) ([]float64, error) {
	ndim := box.NDim()

	probes := uniformBatch(box, sc.MaxEstimateSamples, rng)
	vals, err := density.Evaluate(f, probes, ndim)
	if err != nil {
		return nil, fmt.Errorf("estimating density maximum: %w", err)
	}
	rhoMax := floats.Max(vals) * sc.MaxSafety
	if !(rhoMax > 0) {
		return nil, &density.FieldError{Reason: fmt.Sprintf("field is zero at all %d probe points", len(vals))}
	}

	budget := sc.MaxDraws * n
	batchSize := max(n, 256)
	pos := make([]float64, 0, n*ndim)
	accepted, drawn := 0, 0

	for accepted < n {
		if drawn >= budget {
			return nil, config.Invalid("sampling.max_draws",
				"rejection sampling accepted %d of %d particles after %d draws", accepted, n, drawn)
		}
		m := min(batchSize, budget-drawn)
		cand := uniformBatch(box, m, rng)
		rho, err := density.Evaluate(f, cand, ndim)
		if err != nil {
			return nil, fmt.Errorf("rejection sampling: %w", err)
		}
		drawn += m
		for i := 0; i < m && accepted < n; i++ {
			if rng.Float64()*rhoMax < rho[i] {
				pos = append(pos, cand[i*ndim:(i+1)*ndim]...)
				accepted++
			}
		}
	}
	return pos, nil
}

func uniformBatch(box domain.Box, m int, rng *rand.Rand) []float64 {
	ndim := box.NDim()
	out := make([]float64, m*ndim)
	for i := 0; i < m; i++ {
		for d, e := range box.Extent {
			out[i*ndim+d] = rng.Float64() * e
		}
	}
	return out
}
