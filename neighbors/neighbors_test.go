package neighbors

import (
	"errors"
	"math"
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/pthm-cable/icgen/domain"
	"github.com/pthm-cable/icgen/kernel"
)

func randomPositions(n, ndim int, rng *rand.Rand) []float64 {
	pos := make([]float64, n*ndim)
	for i := range pos {
		pos[i] = rng.Float64()
	}
	return pos
}

func bruteForce(box domain.Box, pos []float64, p []float64, radius float64, exclude int) []int {
	ndim := box.NDim()
	delta := make([]float64, ndim)
	var out []int
	for j := 0; j < len(pos)/ndim; j++ {
		if j == exclude {
			continue
		}
		if box.Delta(delta, p, pos[j*ndim:(j+1)*ndim]) <= radius {
			out = append(out, j)
		}
	}
	return out
}

func TestGridMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	for ndim := 1; ndim <= 3; ndim++ {
		for _, periodic := range []bool{true, false} {
			box := domain.Box{Extent: make([]float64, ndim), Periodic: periodic}
			for d := range box.Extent {
				box.Extent[d] = 1
			}
			pos := randomPositions(400, ndim, rng)
			g := NewGrid(box, 0.1)
			g.Rebuild(pos)

			var nb []Neighbor
			for _, radius := range []float64{0.05, 0.17, 0.6} {
				for i := 0; i < 400; i += 37 {
					nb = g.QueryRadiusInto(nb[:0], g.Position(i), radius, i)
					got := make([]int, len(nb))
					for k, n := range nb {
						got[k] = n.Index
						if n.Dist > radius {
							t.Fatalf("neighbour %d at %g beyond radius %g", n.Index, n.Dist, radius)
						}
					}
					sort.Ints(got)
					want := bruteForce(box, pos, g.Position(i), radius, i)
					if len(got) != len(want) {
						t.Fatalf("ndim=%d periodic=%v r=%g particle %d: got %d neighbours, want %d",
							ndim, periodic, radius, i, len(got), len(want))
					}
					for k := range got {
						if got[k] != want[k] {
							t.Fatalf("ndim=%d periodic=%v: neighbour mismatch %v vs %v", ndim, periodic, got, want)
						}
					}
				}
			}
		}
	}
}

func TestGridDeltaConvention(t *testing.T) {
	box := domain.Box{Extent: []float64{1}, Periodic: true}
	pos := []float64{0.05, 0.95}
	g := NewGrid(box, 0.25)
	g.Rebuild(pos)

	nb := g.QueryRadiusInto(nil, g.Position(0), 0.2, 0)
	if len(nb) != 1 {
		t.Fatalf("expected 1 neighbour across the boundary, got %d", len(nb))
	}
	if math.Abs(nb[0].Delta[0]-0.1) > 1e-12 {
		t.Errorf("delta = %g, want 0.1 (x_query - x_neighbour)", nb[0].Delta[0])
	}
}

func lattice2D(n int) []float64 {
	pos := make([]float64, 0, n*n*2)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			pos = append(pos, (float64(i)+0.5)/float64(n), (float64(j)+0.5)/float64(n))
		}
	}
	return pos
}

func TestSolveUniformLattice(t *testing.T) {
	const n = 20
	eta := 1.2348
	k, err := kernel.New("cubic_spline", 2)
	if err != nil {
		t.Fatal(err)
	}
	box := domain.Box{Extent: []float64{1, 1}, Periodic: true}
	pos := lattice2D(n)
	g := NewGrid(box, 0.1)
	g.Rebuild(pos)

	mass := make([]float64, n*n)
	for i := range mass {
		mass[i] = 1.0 / float64(n*n)
	}

	s := NewSolver(g, k, eta, 1e-6, 64)
	spacing := 1.0 / n
	var scratch []Neighbor
	for _, i := range []int{0, 57, 210, 399} {
		var res Result
		res, scratch, err = s.Solve(i, spacing, mass, scratch)
		if err != nil {
			t.Fatalf("Solve(%d) failed: %v", i, err)
		}
		if math.Abs(res.H/(eta*spacing)-1) > 0.05 {
			t.Errorf("particle %d: h = %g, want ~%g", i, res.H, eta*spacing)
		}
		if math.Abs(res.Density-1) > 0.05 {
			t.Errorf("particle %d: density = %g, want ~1", i, res.Density)
		}
		if got := s.weighted(scratch, res.H); math.Abs(got/s.Target-1) > 1e-3 {
			t.Errorf("particle %d: weighted neighbours %g, target %g", i, got, s.Target)
		}
	}
}

func TestSolveGuessIndependent(t *testing.T) {
	k, _ := kernel.New("wendland_c2", 2)
	box := domain.Box{Extent: []float64{1, 1}, Periodic: true}
	pos := randomPositions(300, 2, rand.New(rand.NewPCG(1, 1)))
	g := NewGrid(box, 0.1)
	g.Rebuild(pos)
	mass := make([]float64, 300)
	for i := range mass {
		mass[i] = 1
	}
	s := NewSolver(g, k, 1.2, 1e-8, 128)

	a, _, err := s.Solve(5, 0.001, mass, nil)
	if err != nil {
		t.Fatal(err)
	}
	b, _, err := s.Solve(5, 0.5, mass, nil)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(a.H-b.H) > 1e-6*a.H {
		t.Errorf("h depends on guess: %g vs %g", a.H, b.H)
	}
}

func TestSolveTooFewParticles(t *testing.T) {
	k, _ := kernel.New("cubic_spline", 1)
	box := domain.Box{Extent: []float64{1}, Periodic: true}
	g := NewGrid(box, 0.5)
	g.Rebuild([]float64{0.25, 0.75})

	s := NewSolver(g, k, 10, 1e-4, 64)
	_, _, err := s.Solve(1, 0.1, []float64{1, 1}, nil)
	if !errors.Is(err, ErrNeighborSolve) {
		t.Fatalf("expected ErrNeighborSolve, got %v", err)
	}
	var se *SolveError
	if !errors.As(err, &se) || se.Particle != 1 {
		t.Fatalf("expected SolveError for particle 1, got %v", err)
	}
}

func TestSolveIterationBound(t *testing.T) {
	k, _ := kernel.New("cubic_spline", 2)
	box := domain.Box{Extent: []float64{1, 1}, Periodic: true}
	g := NewGrid(box, 0.1)
	g.Rebuild(lattice2D(10))
	mass := make([]float64, 100)

	s := NewSolver(g, k, 1.2348, 1e-12, 3)
	_, _, err := s.Solve(0, 0.1, mass, nil)
	if !errors.Is(err, ErrNeighborSolve) {
		t.Fatalf("expected bounded bisection failure, got %v", err)
	}
}

func BenchmarkSolve(b *testing.B) {
	k, _ := kernel.New("cubic_spline", 2)
	box := domain.Box{Extent: []float64{1, 1}, Periodic: true}
	pos := lattice2D(100)
	g := NewGrid(box, 0.02)
	g.Rebuild(pos)
	mass := make([]float64, len(pos)/2)
	s := NewSolver(g, k, 1.2348, 1e-4, 64)

	var scratch []Neighbor
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		_, scratch, _ = s.Solve(n%len(mass), 0.012, mass, scratch)
	}
}
