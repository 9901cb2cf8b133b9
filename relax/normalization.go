package relax

import (
	"math"

	"github.com/pthm-cable/icgen/config"
)

// Normalization holds the displacement constant C. Displacements are
// C * meanInterparticle * raw kernel sum.
type Normalization struct {
	C   float64
	Set bool // False until C is configured or derived
}

// NewNormalization starts from run.delta_init, or leaves C to be derived on
// the first iteration when delta_init is 0.
func NewNormalization(run config.RunConfig) Normalization {
	if run.DeltaInit > 0 {
		return Normalization{C: run.DeltaInit, Set: true}
	}
	return Normalization{}
}

// Derive sets C so the largest raw sum moves by one mean interparticle
// distance. A configuration whose raw sums are already below the convergence
// threshold keeps C = 1 so numerical noise is not amplified.
func (n *Normalization) Derive(maxRaw, convergenceThreshold float64) {
	if n.Set {
		return
	}
	if maxRaw > convergenceThreshold {
		n.C = 1 / maxRaw
	} else {
		n.C = 1
	}
	n.Set = true
}

// Decay applies C <- max(C * reduction, min).
func (n *Normalization) Decay(run config.RunConfig) {
	n.C = math.Max(n.C*run.DeltaReduction, run.DeltaMin)
}
