package density

import (
	"math"

	"github.com/pthm-cable/icgen/config"
)

// Uniform returns a constant field.
func Uniform(value float64) Field {
	return FieldFunc(func(pos []float64, ndim int) []float64 {
		out := make([]float64, len(pos)/ndim)
		for i := range out {
			out[i] = value
		}
		return out
	})
}

// SineWave is rho(x) = 1.1 + sin(2 pi x0), periodic on the unit interval.
var SineWave Field = FieldFunc(func(pos []float64, ndim int) []float64 {
	out := make([]float64, len(pos)/ndim)
	for i := range out {
		out[i] = 1.1 + math.Sin(2*math.Pi*pos[i*ndim])
	}
	return out
})

// Gaussian returns a blob of the given amplitude and width centred at center,
// on top of a constant floor.
func Gaussian(center []float64, sigma, amplitude, floor float64) Field {
	c := append([]float64(nil), center...)
	inv := 1 / (2 * sigma * sigma)
	return FieldFunc(func(pos []float64, ndim int) []float64 {
		out := make([]float64, len(pos)/ndim)
		for i := range out {
			var r2 float64
			for d := 0; d < ndim && d < len(c); d++ {
				dx := pos[i*ndim+d] - c[d]
				r2 += dx * dx
			}
			out[i] = floor + amplitude*math.Exp(-r2*inv)
		}
		return out
	})
}

// Lookup returns a built-in field by name for a domain of the given extent.
func Lookup(name string, extent []float64) (Field, error) {
	switch name {
	case "uniform":
		return Uniform(1), nil
	case "sine_wave":
		return SineWave, nil
	case "gaussian":
		center := make([]float64, len(extent))
		minExtent := math.Inf(1)
		for i, e := range extent {
			center[i] = e / 2
			minExtent = math.Min(minExtent, e)
		}
		return Gaussian(center, minExtent/8, 10, 0.1), nil
	}
	return nil, config.Invalid("field", "unknown density field %q", name)
}

// Names lists the built-in fields.
func Names() []string {
	return []string{"uniform", "sine_wave", "gaussian"}
}
