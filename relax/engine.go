// Package relax iteratively moves particles until their SPH density estimate
// matches a prescribed density field.
package relax

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/icgen/config"
	"github.com/pthm-cable/icgen/density"
	"github.com/pthm-cable/icgen/domain"
	"github.com/pthm-cable/icgen/kernel"
	"github.com/pthm-cable/icgen/neighbors"
	"github.com/pthm-cable/icgen/sampling"
	"github.com/pthm-cable/icgen/telemetry"
)

// pcgStream is the fixed PCG increment; the seed alone selects the sequence.
const pcgStream = 0xda3e39cb94b95bdb

// IterationState is the loop state carried between iterations and into
// checkpoints. The random generator lives on the Engine.
type IterationState struct {
	Iteration              int // Next iteration to run
	Normalization          Normalization
	RedistributionFraction float64
	Status                 Status
	Last                   Displacements
}

// Options holds optional collaborators.
type Options struct {
	Logger   *slog.Logger
	External *sampling.External // Required when sampling.method is external
	Sinks    []telemetry.Sink
	Perf     *telemetry.PerfCollector
}

// Engine runs the relaxation loop over one particle set.
type Engine struct {
	cfg    *config.Config
	field  density.Field
	kern   kernel.Kernel
	box    domain.Box
	grid   *neighbors.Grid
	solver *neighbors.Solver
	log    *slog.Logger
	sinks  []telemetry.Sink
	perf   *telemetry.PerfCollector
	par    *parallelState

	pcg *rand.PCG
	rng *rand.Rand

	parts   *ParticleSet
	state   IterationState
	monitor *Monitor
	last    telemetry.IterationStats
	mass    density.Mass

	modelHMax float64
	modelHCap float64
	raw       []float64 // Unscaled displacement sums, N*ndim
	rawMag    []float64 // |raw_i|
	mag       []float64 // C*|raw_i|, in mean interparticle distances
}

// New validates a private copy of cfg and runs setup: kernel construction,
// mass normalization and initial sampling. Later changes to cfg have no
// effect on the engine.
func New(cfg *config.Config, field density.Field, opts Options) (*Engine, error) {
	if cfg == nil {
		return nil, config.Invalid("config", "must not be nil")
	}
	if field == nil {
		return nil, config.Invalid("field", "a density field is required")
	}
	cfg = cfg.Clone()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{
		field: field,
		log:   log,
		sinks: opts.Sinks,
		perf:  opts.Perf,
	}
	if err := e.configure(cfg); err != nil {
		return nil, err
	}

	e.pcg = rand.NewPCG(cfg.Run.Seed, pcgStream)
	e.rng = rand.New(e.pcg)

	n, ndim := cfg.Derived.N, cfg.Domain.NDim
	mass, err := density.Normalize(field, cfg.Domain.Extent, n, cfg.Quadrature.PointsPerDim)
	if err != nil {
		return nil, fmt.Errorf("mass normalization: %w", err)
	}
	if !(mass.Total > 0) {
		return nil, fmt.Errorf("mass normalization: %w", &density.FieldError{
			Value: mass.Total, Reason: "field integrates to a non-positive total mass"})
	}
	e.mass = mass

	pos, err := sampling.Initial(cfg, field, e.rng, opts.External)
	if err != nil {
		return nil, fmt.Errorf("initial sampling: %w", err)
	}

	e.parts = newParticleSet(n, ndim)
	copy(e.parts.Pos, pos)
	for i := 0; i < n; i++ {
		e.box.Place(e.parts.Position(i))
	}
	if opts.External != nil && opts.External.Mass != nil {
		copy(e.parts.Mass, opts.External.Mass)
	} else {
		for i := range e.parts.Mass {
			e.parts.Mass[i] = mass.PerParticle
		}
	}
	e.allocate(n, ndim)
	e.resetLoop(cfg)

	e.log.Info("setup complete",
		"n", n,
		"ndim", ndim,
		"kernel", e.kern.Name(),
		"eta", cfg.Kernel.Eta,
		"target_neighbours", e.solver.Target,
		"total_mass", mass.Total,
		"particle_mass", mass.PerParticle,
		"quadrature_points", mass.Points,
		"sampling", cfg.Sampling.Method,
	)
	return e, nil
}

// configure builds the kernel, box, grid and solver for cfg.
func (e *Engine) configure(cfg *config.Config) error {
	k, err := kernel.New(cfg.Kernel.Name, cfg.Domain.NDim)
	if err != nil {
		return err
	}
	e.cfg = cfg
	e.kern = k
	e.box = domain.Box{Extent: cfg.Domain.Extent, Periodic: cfg.Domain.Periodic}
	e.grid = neighbors.NewGrid(e.box, k.Support(cfg.Kernel.Eta*cfg.Derived.MeanInterparticle))
	e.solver = neighbors.NewSolver(e.grid, k, cfg.Kernel.Eta, cfg.Neighbors.Tolerance, cfg.Neighbors.MaxIterations)
	e.modelHCap = floats.Max(cfg.Domain.Extent) / k.Gamma()
	e.par = newParallelState(cfg.Parallel.Workers, cfg.Parallel.Threshold)
	return nil
}

func (e *Engine) allocate(n, ndim int) {
	e.raw = make([]float64, n*ndim)
	e.rawMag = make([]float64, n)
	e.mag = make([]float64, n)
}

// resetLoop puts the loop at iteration 0 with a fresh schedule.
func (e *Engine) resetLoop(cfg *config.Config) {
	e.state = IterationState{
		Normalization:          NewNormalization(cfg.Run),
		RedistributionFraction: cfg.Redistribution.Fraction,
	}
	e.monitor = NewMonitor(cfg.Run)
	e.last = telemetry.IterationStats{}
}

// Config returns the engine's validated configuration. Treat it as read-only.
func (e *Engine) Config() *config.Config { return e.cfg }

// Particles returns the live particle arrays. Treat them as read-only.
func (e *Engine) Particles() *ParticleSet { return e.parts }

// State returns the current loop state.
func (e *Engine) State() IterationState { return e.state }

// Mass returns the mass normalization: the quadrature result from setup, or
// the stored masses after Restart.
func (e *Engine) Mass() density.Mass { return e.mass }

// LastStats returns the statistics of the most recent iteration.
func (e *Engine) LastStats() telemetry.IterationStats { return e.last }

// Result is the outcome of a run.
type Result struct {
	NDim       int
	Pos        []float64
	Mass       []float64
	H          []float64
	Density    []float64
	Iterations int // Iterations run
	Status     Status
	Last       telemetry.IterationStats
}

// Converged reports whether the run ended by meeting the thresholds.
func (r *Result) Converged() bool { return r.Status == Converged }

func (e *Engine) result() *Result {
	p := e.parts
	return &Result{
		NDim:       p.NDim,
		Pos:        append([]float64(nil), p.Pos...),
		Mass:       append([]float64(nil), p.Mass...),
		H:          append([]float64(nil), p.H...),
		Density:    append([]float64(nil), p.Density...),
		Iterations: e.state.Iteration,
		Status:     e.state.Status,
		Last:       e.last,
	}
}

// Run iterates until the loop reaches a terminal state. Cancelling ctx stops
// the loop between iterations; the partial result is returned with the
// context error.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	e.log.Info("relaxation started",
		"iteration", e.state.Iteration,
		"iter_max", e.cfg.Run.IterMax,
		"normalization", e.state.Normalization.C,
	)
	for !e.state.Status.Terminal() {
		if err := ctx.Err(); err != nil {
			e.log.Warn("relaxation interrupted", "iteration", e.state.Iteration, "error", err)
			return e.result(), fmt.Errorf("relaxation interrupted at iteration %d: %w", e.state.Iteration, err)
		}
		if _, err := e.Step(); err != nil {
			return nil, err
		}
	}

	res := e.result()
	e.log.Info("relaxation finished",
		"status", res.Status.String(),
		"iterations", res.Iterations,
		"max_displacement", res.Last.MaxDisplacement,
		"fraction_converged", res.Last.FractionConverged,
		"density_error_mean", res.Last.DensityErrorMean,
	)
	if e.perf != nil {
		e.log.Info("perf", "stats", e.perf.Stats())
	}
	return res, nil
}

// Step runs one iteration and returns the resulting status. Calling Step
// after a terminal status does nothing.
func (e *Engine) Step() (Status, error) {
	if e.state.Status.Terminal() {
		return e.state.Status, nil
	}
	k := e.state.Iteration
	p := e.parts
	n := p.Len()
	start := time.Now()
	e.perf.StartIteration()

	e.perf.StartPhase(telemetry.PhaseModel)
	e.grid.Rebuild(p.Pos)
	if err := e.evaluateModel(); err != nil {
		return e.state.Status, fmt.Errorf("iteration %d: %w", k, err)
	}

	e.perf.StartPhase(telemetry.PhaseNeighbours)
	if err := e.par.forEach(n, e.solveChunk); err != nil {
		return e.state.Status, fmt.Errorf("iteration %d: %w", k, err)
	}

	e.perf.StartPhase(telemetry.PhaseForce)
	if err := e.par.forEach(n, e.forceChunk); err != nil {
		return e.state.Status, fmt.Errorf("iteration %d: %w", k, err)
	}
	e.state.Normalization.Derive(floats.Max(e.rawMag), e.cfg.Run.ConvergenceThreshold)
	c := e.state.Normalization.C
	for i, v := range e.rawMag {
		e.mag[i] = c * v
	}
	disp := Summarize(e.mag, e.cfg.Run)

	e.perf.StartPhase(telemetry.PhaseMove)
	if err := e.par.forEach(n, e.moveChunk); err != nil {
		return e.state.Status, fmt.Errorf("iteration %d: %w", k, err)
	}

	status := e.monitor.Update(k, disp)

	e.perf.StartPhase(telemetry.PhaseRedistribute)
	moved := 0
	fraction := e.state.RedistributionFraction
	if status != Converged && redistributionDue(e.cfg.Redistribution, k) {
		moved = redistribute(p, e.box, e.kern.Gamma(), fraction, e.rng)
		e.state.RedistributionFraction *= e.cfg.Redistribution.Reduction
		e.log.Debug("redistributed particles", "iteration", k, "moved", moved, "fraction", fraction)
	}

	stats := e.iterationStats(k, status, c, disp, moved, fraction)

	e.state.Normalization.Decay(e.cfg.Run)
	e.state.Status = status
	e.state.Last = disp
	e.state.Iteration = k + 1

	e.perf.StartPhase(telemetry.PhaseCheckpoint)
	if e.checkpointDue(k, status) {
		if _, err := e.SaveCheckpoint(); err != nil {
			return status, fmt.Errorf("iteration %d: %w", k, err)
		}
	}

	e.perf.StartPhase(telemetry.PhaseTelemetry)
	if d := e.perf.EndIteration(); d > 0 {
		stats.DurationMS = float64(d.Microseconds()) / 1000
	} else {
		stats.DurationMS = float64(time.Since(start).Microseconds()) / 1000
	}
	e.last = stats
	for _, s := range e.sinks {
		if err := s.RecordIteration(stats); err != nil {
			return status, fmt.Errorf("iteration %d: recording stats: %w", k, err)
		}
	}
	e.logIteration(stats, status)
	return status, nil
}

// evaluateModel fills ModelDensity and ModelH from the field at the current
// positions. ModelH_i = eta (m_i / rho_model_i)^(1/d), capped at the domain
// scale where the field vanishes.
func (e *Engine) evaluateModel() error {
	p := e.parts
	rho, err := density.Evaluate(e.field, p.Pos, p.NDim)
	if err != nil {
		return err
	}
	copy(p.ModelDensity, rho)

	eta := e.cfg.Kernel.Eta
	invD := 1 / float64(p.NDim)
	e.modelHMax = 0
	for i, r := range rho {
		h := e.modelHCap
		if r > 0 {
			h = math.Min(eta*math.Pow(p.Mass[i]/r, invD), e.modelHCap)
		}
		p.ModelH[i] = h
		e.modelHMax = math.Max(e.modelHMax, h)
	}
	return nil
}

// solveChunk finds smoothing lengths and densities for [start, end), using
// the previous h, or the model h on the first pass, as the starting guess.
func (e *Engine) solveChunk(start, end int, s *workerScratch) error {
	p := e.parts
	for i := start; i < end; i++ {
		guess := p.H[i]
		if !(guess > 0) {
			guess = p.ModelH[i]
		}
		res, nb, err := e.solver.Solve(i, guess, p.Mass, s.Neighbors)
		s.Neighbors = nb
		if err != nil {
			return err
		}
		p.H[i] = res.H
		p.Density[i] = res.Density
		p.Neighbours[i] = res.Neighbours
	}
	return nil
}

func (e *Engine) iterationStats(k int, status Status, c float64, disp Displacements, moved int, fraction float64) telemetry.IterationStats {
	p := e.parts
	_, p50, p90 := telemetry.ComputeDisplacementStats(e.mag)
	errMean, errStd, errMax := telemetry.ComputeDensityError(p.Density, p.ModelDensity)
	var nb int
	for _, v := range p.Neighbours {
		nb += v
	}
	return telemetry.IterationStats{
		Iteration:              k,
		Status:                 status.String(),
		Normalization:          c,
		MaxDisplacement:        disp.Max,
		MeanDisplacement:       disp.Mean,
		P50Displacement:        p50,
		P90Displacement:        p90,
		FractionConverged:      disp.FractionBelow,
		Clamped:                disp.Clamped,
		Redistributed:          moved,
		RedistributionFraction: fraction,
		DensityErrorMean:       errMean,
		DensityErrorStd:        errStd,
		DensityErrorMax:        errMax,
		MeanNeighbours:         float64(nb) / float64(p.Len()),
	}
}

func (e *Engine) logIteration(stats telemetry.IterationStats, status Status) {
	switch {
	case status == DisplacementViolation:
		e.log.Warn("displacement above threshold", "stats", stats)
	case stats.Clamped > 0:
		e.log.Debug("displacements clamped", "iteration", stats.Iteration, "clamped", stats.Clamped)
	}
	every := e.cfg.Run.LogEvery
	if status.Terminal() || (every > 0 && stats.Iteration%every == 0) {
		e.log.Info("iteration", "stats", stats)
		if e.perf != nil && every > 0 && stats.Iteration%every == 0 {
			e.log.Debug("perf", "stats", e.perf.Stats())
		}
	}
}
