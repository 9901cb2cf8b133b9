package sampling

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/pthm-cable/icgen/config"
	"github.com/pthm-cable/icgen/density"
	"github.com/pthm-cable/icgen/domain"
)

func testConfig(t *testing.T, method string, ndim, perDim int) *config.Config {
	t.Helper()
	cfg, err := config.Defaults()
	if err != nil {
		t.Fatal(err)
	}
	cfg.Domain.NDim = ndim
	cfg.Domain.Extent = make([]float64, ndim)
	for i := range cfg.Domain.Extent {
		cfg.Domain.Extent[i] = 1
	}
	cfg.Domain.ParticlesPerDim = perDim
	cfg.Sampling.Method = method
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func newRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

func assertInside(t *testing.T, pos []float64, box domain.Box) {
	t.Helper()
	ndim := box.NDim()
	for i := 0; i < len(pos); i += ndim {
		if !box.Contains(pos[i : i+ndim]) {
			t.Fatalf("particle %d at %v outside box", i/ndim, pos[i:i+ndim])
		}
	}
}

func TestLattice(t *testing.T) {
	box := domain.Box{Extent: []float64{1, 2}, Periodic: true}
	pos := Lattice(box, 4)

	if len(pos) != 16*2 {
		t.Fatalf("expected 32 coordinates, got %d", len(pos))
	}
	// First point is the first cell centre, first dimension varies fastest
	if pos[0] != 0.125 || pos[1] != 0.25 {
		t.Errorf("first point = %v, want [0.125 0.25]", pos[:2])
	}
	if math.Abs(pos[2]-0.375) > 1e-12 || pos[3] != 0.25 {
		t.Errorf("second point = %v, want [0.375 0.25]", pos[2:4])
	}
	assertInside(t, pos, box)

	single := Lattice(domain.Box{Extent: []float64{3}}, 1)
	if len(single) != 1 || single[0] != 1.5 {
		t.Errorf("single point lattice = %v, want [1.5]", single)
	}
}

func TestInitialCountsAndContainment(t *testing.T) {
	for _, method := range []string{MethodRejection, MethodUniform, MethodDisplaced} {
		for ndim := 1; ndim <= 3; ndim++ {
			cfg := testConfig(t, method, ndim, 6)
			pos, err := Initial(cfg, density.SineWave, newRNG(1), nil)
			if err != nil {
				t.Fatalf("%s ndim=%d: %v", method, ndim, err)
			}
			if len(pos) != cfg.Derived.N*ndim {
				t.Errorf("%s ndim=%d: got %d coordinates, want %d", method, ndim, len(pos), cfg.Derived.N*ndim)
			}
			assertInside(t, pos, domain.Box{Extent: cfg.Domain.Extent, Periodic: cfg.Domain.Periodic})
		}
	}
}

func TestRejectionFollowsDensity(t *testing.T) {
	cfg := testConfig(t, MethodRejection, 1, 4000)
	pos, err := Initial(cfg, density.SineWave, newRNG(20), nil)
	if err != nil {
		t.Fatal(err)
	}

	// rho = 1.1 + sin(2 pi x): the first half holds (0.55 + 1/pi)/1.1 of the mass
	var lower int
	for _, x := range pos {
		if x < 0.5 {
			lower++
		}
	}
	got := float64(lower) / float64(len(pos))
	want := (0.55 + 1/math.Pi) / 1.1
	if math.Abs(got-want) > 0.03 {
		t.Errorf("fraction in lower half = %.3f, want ~%.3f", got, want)
	}
}

func TestRejectionIsDeterministic(t *testing.T) {
	cfg := testConfig(t, MethodRejection, 2, 10)
	a, err := Initial(cfg, density.SineWave, newRNG(7), nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Initial(cfg, density.SineWave, newRNG(7), nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("coordinate %d differs: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestRejectionZeroField(t *testing.T) {
	cfg := testConfig(t, MethodRejection, 1, 10)
	_, err := Initial(cfg, density.Uniform(0), newRNG(1), nil)
	if !errors.Is(err, density.ErrFieldEvaluation) {
		t.Fatalf("expected ErrFieldEvaluation, got %v", err)
	}
}

func TestExternal(t *testing.T) {
	cfg := testConfig(t, MethodExternal, 2, 2)

	ext := &External{Pos: []float64{0.1, 0.1, 0.2, 0.2, 0.3, 0.3, 0.4, 0.4}}
	pos, err := Initial(cfg, density.SineWave, newRNG(1), ext)
	if err != nil {
		t.Fatalf("Initial failed: %v", err)
	}
	ext.Pos[0] = 0.9
	if pos[0] != 0.1 {
		t.Error("external coordinates were not copied")
	}

	bad := []*External{
		nil,
		{Pos: []float64{0.1, 0.1}},
		{Pos: make([]float64, 8), Mass: []float64{1, 1}},
		{Pos: make([]float64, 8), Mass: []float64{1, 1, 0, 1}},
	}
	for i, e := range bad {
		if _, err := Initial(cfg, density.SineWave, newRNG(1), e); !errors.Is(err, config.ErrConfiguration) {
			t.Errorf("case %d: expected ErrConfiguration, got %v", i, err)
		}
	}
}
