// Package kernel provides the compact-support smoothing kernels.
//
// Kernels follow the Dehnen & Aly (2012) convention: W(r, h) = C_d / H^d * f(r/H)
// with H = gamma*h the radius of compact support.
package kernel

import (
	"fmt"
	"math"

	"github.com/pthm-cable/icgen/config"
)

// Kernel is a normalized smoothing kernel in a fixed dimensionality.
type Kernel interface {
	// Name returns the name the kernel was selected with.
	Name() string
	// NDim returns the dimensionality the kernel is normalized for.
	NDim() int
	// Gamma returns H/h, the support radius in units of smoothing length.
	Gamma() float64
	// Support returns the compact support radius for smoothing length h.
	Support(h float64) float64
	// W evaluates the kernel at separation r for smoothing length h.
	W(r, h float64) float64
	// Shape evaluates the unnormalized profile f at q = r/H. Zero for q >= 1.
	Shape(q float64) float64
	// Norm returns C_d.
	Norm() float64
	// NeighbourTarget returns the weighted neighbour number implied by eta.
	NeighbourTarget(eta float64) float64
}

// DefaultName is the kernel used when none is configured.
const DefaultName = "cubic_spline"

type shapeFunc func(q float64) float64

type spec struct {
	gamma [3]float64
	norm  [3]float64
	shape [3]shapeFunc
}

type kernel struct {
	name  string
	ndim  int
	gamma float64
	norm  float64
	shape shapeFunc
}

var registry = map[string]spec{
	"cubic_spline": {
		gamma: [3]float64{1.732051, 1.778002, 1.825742},
		norm:  [3]float64{8.0 / 3.0, 80.0 / (7.0 * math.Pi), 16.0 / math.Pi},
		shape: [3]shapeFunc{cubic, cubic, cubic},
	},
	"quartic_spline": {
		gamma: [3]float64{1.936492, 1.977173, 2.018932},
		norm:  [3]float64{3125.0 / 768.0, 46875.0 / (2398.0 * math.Pi), 15625.0 / (512.0 * math.Pi)},
		shape: [3]shapeFunc{quartic, quartic, quartic},
	},
	"quintic_spline": {
		gamma: [3]float64{2.121321, 2.158131, 2.195775},
		norm:  [3]float64{243.0 / 40.0, 15309.0 / (478.0 * math.Pi), 2187.0 / (40.0 * math.Pi)},
		shape: [3]shapeFunc{quintic, quintic, quintic},
	},
	"wendland_c2": {
		gamma: [3]float64{1.620185, 1.897367, 1.936492},
		norm:  [3]float64{5.0 / 4.0, 7.0 / math.Pi, 21.0 / (2.0 * math.Pi)},
		shape: [3]shapeFunc{wendlandC2Line, wendlandC2, wendlandC2},
	},
	"wendland_c4": {
		gamma: [3]float64{1.936492, 2.171239, 2.207940},
		norm:  [3]float64{3.0 / 2.0, 9.0 / math.Pi, 495.0 / (32.0 * math.Pi)},
		shape: [3]shapeFunc{wendlandC4Line, wendlandC4, wendlandC4},
	},
	"wendland_c6": {
		gamma: [3]float64{2.207940, 2.415230, 2.449490},
		norm:  [3]float64{55.0 / 32.0, 78.0 / (7.0 * math.Pi), 1365.0 / (64.0 * math.Pi)},
		shape: [3]shapeFunc{wendlandC6Line, wendlandC6, wendlandC6},
	},
}

// Names returns the registered kernel names.
func Names() []string {
	return []string{"cubic_spline", "quartic_spline", "quintic_spline", "wendland_c2", "wendland_c4", "wendland_c6"}
}

// New selects a kernel by name. Unknown names and dimensionalities outside
// 1..3 are configuration errors.
func New(name string, ndim int) (Kernel, error) {
	s, ok := registry[name]
	if !ok {
		return nil, config.Invalid("kernel.name", "unknown kernel %q", name)
	}
	if ndim < 1 || ndim > 3 {
		return nil, config.Invalid("domain.ndim", "kernel %s supports 1-3 dimensions, got %d", name, ndim)
	}
	return &kernel{
		name:  name,
		ndim:  ndim,
		gamma: s.gamma[ndim-1],
		norm:  s.norm[ndim-1],
		shape: s.shape[ndim-1],
	}, nil
}

func (k *kernel) Name() string   { return k.name }
func (k *kernel) NDim() int      { return k.ndim }
func (k *kernel) Gamma() float64 { return k.gamma }
func (k *kernel) Norm() float64  { return k.norm }

func (k *kernel) Support(h float64) float64 { return k.gamma * h }

func (k *kernel) Shape(q float64) float64 {
	if q >= 1 || q < 0 {
		return 0
	}
	return k.shape(q)
}

func (k *kernel) W(r, h float64) float64 {
	H := k.gamma * h
	if H <= 0 {
		return 0
	}
	q := r / H
	if q >= 1 {
		return 0
	}
	return k.norm * k.shape(q) / pow(H, k.ndim)
}

func (k *kernel) NeighbourTarget(eta float64) float64 {
	return UnitVolume(k.ndim) * pow(k.gamma*eta, k.ndim)
}

// UnitVolume returns the volume of the unit ball in ndim dimensions.
func UnitVolume(ndim int) float64 {
	switch ndim {
	case 1:
		return 2
	case 2:
		return math.Pi
	case 3:
		return 4.0 / 3.0 * math.Pi
	}
	panic(fmt.Sprintf("kernel: unsupported ndim %d", ndim))
}

// pow is an integer power for the small exponents kernels need.
func pow(x float64, n int) float64 {
	switch n {
	case 1:
		return x
	case 2:
		return x * x
	case 3:
		return x * x * x
	}
	return math.Pow(x, float64(n))
}
