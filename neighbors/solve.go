package neighbors

import (
	"errors"
	"fmt"
	"math"

	"github.com/pthm-cable/icgen/kernel"
)

// ErrNeighborSolve is wrapped by every failed smoothing-length solve.
var ErrNeighborSolve = errors.New("smoothing length solve failed")

// SolveError reports the particle whose smoothing length could not be found.
type SolveError struct {
	Particle int
	H        float64 // Last bracket value tried
	Weighted float64 // Weighted neighbour number at H
	Target   float64
	Reason   string
}

func (e *SolveError) Error() string {
	return fmt.Sprintf("particle %d: %s (h=%g, neighbours=%.3f, target=%.3f)",
		e.Particle, e.Reason, e.H, e.Weighted, e.Target)
}

func (e *SolveError) Unwrap() error { return ErrNeighborSolve }

// Solver finds, per particle, the smoothing length whose weighted neighbour
// number V_d * C_d * sum_j f(r_ij/H) matches the kernel's target for eta.
// The weighted number is monotone non-decreasing in h.
type Solver struct {
	Grid    *Grid
	Kernel  kernel.Kernel
	Target  float64
	Tol     float64
	MaxIter int

	hLimit float64
	scale  float64 // V_d * C_d
}

// NewSolver creates a solver for eta with the given relative tolerance and
// iteration bound.
func NewSolver(g *Grid, k kernel.Kernel, eta, tol float64, maxIter int) *Solver {
	var diag float64
	for _, e := range g.box.Extent {
		diag += e * e
	}
	return &Solver{
		Grid:    g,
		Kernel:  k,
		Target:  k.NeighbourTarget(eta),
		Tol:     tol,
		MaxIter: maxIter,
		hLimit:  2 * math.Sqrt(diag) / k.Gamma(),
		scale:   kernel.UnitVolume(k.NDim()) * k.Norm(),
	}
}

// Result of a single particle solve.
type Result struct {
	H          float64
	Density    float64
	Neighbours int // Neighbours inside the support, self excluded
}

// weighted returns the weighted neighbour number at h from a neighbour list
// that must contain every particle within Support(h).
func (s *Solver) weighted(nb []Neighbor, h float64) float64 {
	H := s.Kernel.Support(h)
	sum := s.Kernel.Shape(0)
	for _, n := range nb {
		if n.Dist < H {
			sum += s.Kernel.Shape(n.Dist / H)
		}
	}
	return s.scale * sum
}

// Solve finds h for particle i starting from guess, then estimates its
// density with mass. scratch is reused for the neighbour list and returned.
func (s *Solver) Solve(i int, guess float64, mass []float64, scratch []Neighbor) (Result, []Neighbor, error) {
	p := s.Grid.Position(i)
	if !(guess > 0) || guess > s.hLimit {
		guess = s.hLimit / 2
	}

	// Bracket from above: grow until the target is reached
	hHi := guess
	nb := s.Grid.QueryRadiusInto(scratch[:0], p, s.Kernel.Support(hHi), i)
	nHi := s.weighted(nb, hHi)
	for nHi < s.Target {
		if hHi >= s.hLimit {
			return Result{}, nb, &SolveError{Particle: i, H: hHi, Weighted: nHi, Target: s.Target,
				Reason: "too few particles to reach target neighbour number at domain scale"}
		}
		hHi = math.Min(2*hHi, s.hLimit)
		nb = s.Grid.QueryRadiusInto(nb[:0], p, s.Kernel.Support(hHi), i)
		nHi = s.weighted(nb, hHi)
	}

	// Bracket from below on the fixed list
	hLo := hHi / 2
	steps := 0
	for s.weighted(nb, hLo) >= s.Target {
		hHi = hLo
		hLo /= 2
		steps++
		if steps > s.MaxIter {
			return Result{}, nb, &SolveError{Particle: i, H: hLo, Weighted: s.weighted(nb, hLo), Target: s.Target,
				Reason: "target neighbour number below self contribution"}
		}
	}

	for (hHi-hLo) > s.Tol*hHi {
		steps++
		if steps > s.MaxIter {
			return Result{}, nb, &SolveError{Particle: i, H: hHi, Weighted: s.weighted(nb, hHi), Target: s.Target,
				Reason: fmt.Sprintf("bisection did not converge in %d steps", s.MaxIter)}
		}
		mid := 0.5 * (hLo + hHi)
		if s.weighted(nb, mid) < s.Target {
			hLo = mid
		} else {
			hHi = mid
		}
	}

	h := 0.5 * (hLo + hHi)
	res := Result{H: h, Density: mass[i] * s.Kernel.W(0, h)}
	H := s.Kernel.Support(h)
	for _, n := range nb {
		if n.Dist < H {
			res.Density += mass[n.Index] * s.Kernel.W(n.Dist, h)
			res.Neighbours++
		}
	}
	return res, nb, nil
}
