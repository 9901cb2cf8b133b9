package kernel

import (
	"errors"
	"math"
	"testing"

	"github.com/pthm-cable/icgen/config"
)

// radialIntegral integrates W over all space using the radial shell measure.
func radialIntegral(k Kernel, h float64) float64 {
	const steps = 20000
	H := k.Support(h)
	dr := H / steps
	shell := map[int]func(r float64) float64{
		1: func(r float64) float64 { return 2 },
		2: func(r float64) float64 { return 2 * math.Pi * r },
		3: func(r float64) float64 { return 4 * math.Pi * r * r },
	}[k.NDim()]

	var sum float64
	for i := 0; i < steps; i++ {
		r := (float64(i) + 0.5) * dr
		sum += k.W(r, h) * shell(r) * dr
	}
	return sum
}

func TestKernelsAreNormalized(t *testing.T) {
	for _, name := range Names() {
		for ndim := 1; ndim <= 3; ndim++ {
			k, err := New(name, ndim)
			if err != nil {
				t.Fatalf("New(%s, %d) failed: %v", name, ndim, err)
			}
			for _, h := range []float64{0.1, 1.0, 3.5} {
				got := radialIntegral(k, h)
				if math.Abs(got-1) > 1e-4 {
					t.Errorf("%s ndim=%d h=%g: integral = %.6f, want 1", name, ndim, h, got)
				}
			}
		}
	}
}

func TestKernelCompactSupport(t *testing.T) {
	for _, name := range Names() {
		k, err := New(name, 2)
		if err != nil {
			t.Fatal(err)
		}
		h := 0.5
		H := k.Support(h)
		if w := k.W(H, h); w != 0 {
			t.Errorf("%s: W(H) = %g, want 0", name, w)
		}
		if w := k.W(2*H, h); w != 0 {
			t.Errorf("%s: W(2H) = %g, want 0", name, w)
		}
		if w := k.W(0, h); w <= 0 {
			t.Errorf("%s: W(0) = %g, want > 0", name, w)
		}
	}
}

func TestKernelMonotoneDecreasing(t *testing.T) {
	for _, name := range Names() {
		k, err := New(name, 3)
		if err != nil {
			t.Fatal(err)
		}
		prev := k.Shape(0)
		for i := 1; i <= 100; i++ {
			q := float64(i) / 100
			f := k.Shape(q)
			if f > prev+1e-12 {
				t.Errorf("%s: shape increases at q=%.2f (%g > %g)", name, q, f, prev)
				break
			}
			prev = f
		}
	}
}

func TestUnknownKernel(t *testing.T) {
	_, err := New("gaussian", 2)
	if !errors.Is(err, config.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}

	_, err = New(DefaultName, 4)
	if !errors.Is(err, config.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for ndim=4, got %v", err)
	}
}

func TestNeighbourTarget(t *testing.T) {
	k, err := New("cubic_spline", 3)
	if err != nil {
		t.Fatal(err)
	}
	// SWIFT quotes ~48 neighbours for eta=1.2348 with the cubic spline in 3D
	got := k.NeighbourTarget(1.2348)
	if math.Abs(got-48) > 1 {
		t.Errorf("NeighbourTarget(1.2348) = %.2f, want ~48", got)
	}
}
