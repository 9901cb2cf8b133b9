package relax

import (
	"fmt"
	"math/rand/v2"
	"path/filepath"

	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/icgen/checkpoint"
	"github.com/pthm-cable/icgen/config"
	"github.com/pthm-cable/icgen/density"
)

// checkpointDue reports whether a checkpoint follows iteration k. With a
// schedule enabled, checkpoints are written every frequency iterations and
// once more when the loop ends.
func (e *Engine) checkpointDue(k int, status Status) bool {
	freq := e.cfg.Checkpoint.Frequency
	if freq <= 0 {
		return false
	}
	return (k > 0 && k%freq == 0) || status.Terminal()
}

// Checkpoint captures the current state. Iteration is the last completed one.
func (e *Engine) Checkpoint() (*checkpoint.Checkpoint, error) {
	rngState, err := e.pcg.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: rng state: %w", checkpoint.ErrCheckpoint, err)
	}
	p := e.parts
	return &checkpoint.Checkpoint{
		Version:                checkpoint.Version,
		NDim:                   p.NDim,
		N:                      p.Len(),
		Iteration:              max(e.state.Iteration-1, 0),
		Normalization:          e.state.Normalization.C,
		NormalizationSet:       e.state.Normalization.Set,
		RedistributionFraction: e.state.RedistributionFraction,
		RNGState:               rngState,
		Config:                 e.cfg.Clone(),
		Positions:              append([]float64(nil), p.Pos...),
		Masses:                 append([]float64(nil), p.Mass...),
		SmoothingLengths:       append([]float64(nil), p.H...),
		Densities:              append([]float64(nil), p.Density...),
	}, nil
}

// SaveCheckpoint writes the current state to checkpoint.dir and returns the
// file path.
func (e *Engine) SaveCheckpoint() (string, error) {
	cp, err := e.Checkpoint()
	if err != nil {
		return "", err
	}
	path, err := checkpoint.Save(cp, e.cfg.Checkpoint.Dir, e.cfg.Checkpoint.Basename)
	if err != nil {
		return "", err
	}
	e.log.Info("checkpoint written", "path", path, "iteration", cp.Iteration)
	return path, nil
}

// Restart replaces the engine's state with the checkpoint at path. The
// checkpoint's configuration takes over, positions, masses, smoothing
// lengths, normalization constant, redistribution fraction and random state
// are restored, and the iteration counter restarts at 0. Mass then reports
// the checkpoint's masses, with no quadrature points. The particle count
// and dimensionality must match the engine's.
func (e *Engine) Restart(path string, field density.Field) error {
	if field == nil {
		return config.Invalid("field", "a density field is required")
	}
	cp, err := checkpoint.Load(path)
	if err != nil {
		return err
	}
	if cp.N != e.parts.Len() || cp.NDim != e.parts.NDim {
		return fmt.Errorf("%w: %s holds %d particles in %dD, engine has %d in %dD",
			checkpoint.ErrCheckpoint, filepath.Base(path), cp.N, cp.NDim, e.parts.Len(), e.parts.NDim)
	}

	cfg := cp.Config.Clone()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: stored config: %w", checkpoint.ErrCheckpoint, err)
	}
	if cfg.Derived.N != cp.N || cfg.Domain.NDim != cp.NDim {
		return fmt.Errorf("%w: stored config describes %d particles in %dD",
			checkpoint.ErrCheckpoint, cfg.Derived.N, cfg.Domain.NDim)
	}
	var pcg rand.PCG
	if err := pcg.UnmarshalBinary(cp.RNGState); err != nil {
		return fmt.Errorf("%w: rng state: %w", checkpoint.ErrCheckpoint, err)
	}
	if err := e.configure(cfg); err != nil {
		return err
	}
	*e.pcg = pcg
	e.field = field

	p := e.parts
	copy(p.Pos, cp.Positions)
	copy(p.Mass, cp.Masses)
	copy(p.H, cp.SmoothingLengths)
	copy(p.Density, cp.Densities)
	total := floats.Sum(p.Mass)
	e.mass = density.Mass{Total: total, PerParticle: total / float64(p.Len())}

	e.resetLoop(cfg)
	e.state.Normalization = Normalization{C: cp.Normalization, Set: cp.NormalizationSet}
	e.state.RedistributionFraction = cp.RedistributionFraction

	e.log.Info("restarted from checkpoint",
		"path", path,
		"checkpoint_iteration", cp.Iteration,
		"normalization", cp.Normalization,
		"redistribution_fraction", cp.RedistributionFraction,
	)
	return nil
}
