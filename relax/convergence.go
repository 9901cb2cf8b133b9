package relax

import "github.com/pthm-cable/icgen/config"

// Status is the convergence state after an iteration.
type Status int

const (
	// Running means the loop continues.
	Running Status = iota
	// Converged is terminal: thresholds met at or after iter_min.
	Converged
	// MaxIterationsReached is terminal: the last permitted iteration ran
	// without converging.
	MaxIterationsReached
	// DisplacementViolation means enough particles are converged but the
	// largest displacement is still too big. The loop continues.
	DisplacementViolation
)

func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case Converged:
		return "converged"
	case MaxIterationsReached:
		return "max_iterations_reached"
	case DisplacementViolation:
		return "displacement_violation"
	}
	return "unknown"
}

// Terminal reports whether the loop stops in this state.
func (s Status) Terminal() bool {
	return s == Converged || s == MaxIterationsReached
}

// Displacements summarizes one iteration's particle moves. Magnitudes are
// in units of the mean interparticle distance and taken before clamping.
type Displacements struct {
	Max           float64
	Mean          float64
	FractionBelow float64 // Fraction of particles under convergence_threshold
	Clamped       int     // Particles that hit the hard ceiling
}

// Monitor decides, once per iteration, whether the loop continues.
type Monitor struct {
	run config.RunConfig
}

// NewMonitor creates a monitor for the run thresholds.
func NewMonitor(run config.RunConfig) *Monitor {
	return &Monitor{run: run}
}

// Update decides the state after iteration iter from its displacements.
func (m *Monitor) Update(iter int, d Displacements) Status {
	fractionOK := d.FractionBelow >= 1-m.run.UnconvergedTolerance
	maxOK := d.Clamped == 0 && d.Max <= m.run.DisplacementThreshold

	switch {
	case iter >= m.run.IterMin && fractionOK && maxOK:
		return Converged
	case iter+1 >= m.run.IterMax:
		return MaxIterationsReached
	case fractionOK && !maxOK:
		return DisplacementViolation
	}
	return Running
}

// Summarize computes Displacements from per-particle magnitudes.
func Summarize(mag []float64, run config.RunConfig) Displacements {
	var d Displacements
	if len(mag) == 0 {
		d.FractionBelow = 1
		return d
	}
	var below int
	var sum float64
	for _, v := range mag {
		sum += v
		if v > d.Max {
			d.Max = v
		}
		if v < run.ConvergenceThreshold {
			below++
		}
		if v > run.MaxDisplacement {
			d.Clamped++
		}
	}
	d.Mean = sum / float64(len(mag))
	d.FractionBelow = float64(below) / float64(len(mag))
	return d
}
