package relax

// ParticleSet holds per-particle arrays. Pos is row-major with NDim values per
// particle; every other slice has one entry per particle.
type ParticleSet struct {
	NDim int
	Pos  []float64
	Mass []float64

	// Smoothing length from the neighbour solve and the density it estimates
	H       []float64
	Density []float64

	// Target density at the particle and the smoothing length it implies
	ModelDensity []float64
	ModelH       []float64

	Neighbours []int
}

func newParticleSet(n, ndim int) *ParticleSet {
	return &ParticleSet{
		NDim:         ndim,
		Pos:          make([]float64, n*ndim),
		Mass:         make([]float64, n),
		H:            make([]float64, n),
		Density:      make([]float64, n),
		ModelDensity: make([]float64, n),
		ModelH:       make([]float64, n),
		Neighbours:   make([]int, n),
	}
}

// Len returns the particle count.
func (p *ParticleSet) Len() int { return len(p.Mass) }

// Position returns a view of particle i's coordinates.
func (p *ParticleSet) Position(i int) []float64 {
	return p.Pos[i*p.NDim : (i+1)*p.NDim]
}
