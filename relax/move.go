package relax

// moveChunk applies displacements to particles in [start, end). raw holds
// the unscaled sums and mag their magnitudes already multiplied by C.
// Displacements longer than the ceiling are shortened to it, keeping their
// direction. Moved particles are wrapped or clamped back into the box.
func (e *Engine) moveChunk(start, end int, _ *workerScratch) error {
	p := e.parts
	ndim := p.NDim
	c := e.state.Normalization.C
	l := e.cfg.Derived.MeanInterparticle
	ceiling := e.cfg.Run.MaxDisplacement

	for i := start; i < end; i++ {
		scale := c * l
		if e.mag[i] > ceiling {
			scale *= ceiling / e.mag[i]
		}
		x := p.Position(i)
		for d := 0; d < ndim; d++ {
			x[d] += scale * e.raw[i*ndim+d]
		}
		e.box.Place(x)
	}
	return nil
}
