package main

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pthm-cable/icgen/config"
	"github.com/pthm-cable/icgen/density"
	"github.com/pthm-cable/icgen/relax"
)

// unconvergedPenalty is added to the fitness of a run that hits iter_max.
const unconvergedPenalty = 1000

// densityErrorWeight scales the final mean density error into iterations.
const densityErrorWeight = 10

// FitnessEvaluator runs relaxations and scores the schedule.
type FitnessEvaluator struct {
	params     *ParamVector
	seeds      []uint64
	baseConfig *config.Config
	field      density.Field

	mu           sync.Mutex
	lastConverge float64 // Fraction of seeds that converged in the last Evaluate
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(params *ParamVector, seeds []uint64, baseCfg *config.Config, field density.Field) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:     params,
		seeds:      seeds,
		baseConfig: baseCfg,
		field:      field,
	}
}

// LastConverged returns the converged fraction from the most recent evaluation.
func (fe *FitnessEvaluator) LastConverged() float64 {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastConverge
}

// seedResult holds the result from one seed evaluation.
type seedResult struct {
	fitness   float64
	converged bool
}

// Evaluate computes fitness for a parameter vector (lower = better): the
// iterations needed, inflated by the remaining density error and a penalty
// when the run does not converge. Seeds run concurrently.
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	results := make([]seedResult, len(fe.seeds))

	var g errgroup.Group
	for i, seed := range fe.seeds {
		cfg := fe.baseConfig.Clone()
		fe.params.ApplyToConfig(cfg, x)
		cfg.Run.Seed = seed
		cfg.Checkpoint.Frequency = 0
		cfg.Parallel.Workers = 1

		g.Go(func() error {
			r, err := fe.runOnce(cfg)
			results[i] = r
			return err
		})
	}
	if err := g.Wait(); err != nil {
		// An invalid schedule scores as badly as possible
		slog.Debug("evaluation failed", "error", err)
		return math.Inf(1)
	}

	var sum float64
	var converged int
	for _, r := range results {
		sum += r.fitness
		if r.converged {
			converged++
		}
	}

	fe.mu.Lock()
	fe.lastConverge = float64(converged) / float64(len(results))
	fe.mu.Unlock()

	return sum / float64(len(results))
}

func (fe *FitnessEvaluator) runOnce(cfg *config.Config) (seedResult, error) {
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	e, err := relax.New(cfg, fe.field, relax.Options{Logger: quiet})
	if err != nil {
		return seedResult{}, err
	}
	res, err := e.Run(context.Background())
	if err != nil {
		return seedResult{}, err
	}
	return seedResult{
		fitness:   score(res, cfg.Run.IterMax),
		converged: res.Converged(),
	}, nil
}

// score turns a run outcome into a fitness value.
func score(res *relax.Result, iterMax int) float64 {
	f := float64(res.Iterations) * (1 + densityErrorWeight*res.Last.DensityErrorMean)
	if !res.Converged() {
		f += unconvergedPenalty + float64(iterMax)
	}
	return f
}
