// Package domain holds the simulation box geometry shared by sampling,
// neighbour search and particle motion.
package domain

import "math"

// Box is an axis-aligned box [0, Extent) with optional periodic wrap.
type Box struct {
	Extent   []float64
	Periodic bool
}

// NDim returns the dimensionality of the box.
func (b Box) NDim() int { return len(b.Extent) }

// Delta writes the separation a-b into dst, applying the minimum image
// convention when the box is periodic, and returns the distance.
func (b Box) Delta(dst, a, c []float64) float64 {
	var r2 float64
	for d, e := range b.Extent {
		dx := a[d] - c[d]
		if b.Periodic {
			if dx > e/2 {
				dx -= e
			} else if dx < -e/2 {
				dx += e
			}
		}
		dst[d] = dx
		r2 += dx * dx
	}
	return math.Sqrt(r2)
}

// Place maps a point back into the box in place: wrapped modulo the extent
// when periodic, clamped to [0, extent] otherwise.
func (b Box) Place(p []float64) {
	for d, e := range b.Extent {
		if b.Periodic {
			p[d] = Wrap(p[d], e)
		} else {
			p[d] = math.Min(math.Max(p[d], 0), e)
		}
	}
}

// Contains reports whether p lies inside the box. Periodic boxes are
// half-open, non-periodic boxes include the upper face.
func (b Box) Contains(p []float64) bool {
	for d, e := range b.Extent {
		if p[d] < 0 || p[d] > e || (b.Periodic && p[d] == e) {
			return false
		}
	}
	return true
}

// Wrap returns x modulo e in [0, e).
func Wrap(x, e float64) float64 {
	x = math.Mod(x, e)
	if x < 0 {
		x += e
	}
	// x+e can round up to exactly e for tiny negative x
	if x >= e {
		x = 0
	}
	return x
}
