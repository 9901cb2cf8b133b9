// Package telemetry records per-iteration statistics, timings and metrics
// for a relaxation run.
package telemetry

import (
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// IterationStats holds the summary of one relaxation iteration.
// Displacements are in units of the mean interparticle distance.
type IterationStats struct {
	Iteration int    `csv:"iteration"`
	Status    string `csv:"status"`

	// Normalization constant used for this iteration
	Normalization float64 `csv:"normalization"`

	// Displacement distribution (before clamping)
	MaxDisplacement   float64 `csv:"max_displacement"`
	MeanDisplacement  float64 `csv:"mean_displacement"`
	P50Displacement   float64 `csv:"p50_displacement"`
	P90Displacement   float64 `csv:"p90_displacement"`
	FractionConverged float64 `csv:"fraction_converged"`
	Clamped           int     `csv:"clamped"`

	// Redistribution
	Redistributed          int     `csv:"redistributed"`
	RedistributionFraction float64 `csv:"redistribution_fraction"`

	// Estimated vs model density, |rho/rho_model - 1|
	DensityErrorMean float64 `csv:"density_error_mean"`
	DensityErrorStd  float64 `csv:"density_error_std"`
	DensityErrorMax  float64 `csv:"density_error_max"`

	MeanNeighbours float64 `csv:"mean_neighbours"`

	DurationMS float64 `csv:"duration_ms"`
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// ComputeDisplacementStats returns mean and percentiles of displacement
// magnitudes. values is not modified.
func ComputeDisplacementStats(values []float64) (mean, p50, p90 float64) {
	if len(values) == 0 {
		return 0, 0, 0
	}
	mean = stat.Mean(values, nil)

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	return mean, Percentile(sorted, 0.50), Percentile(sorted, 0.90)
}

// ComputeDensityError returns mean, standard deviation and maximum of
// |estimated/model - 1|. Entries with a non-positive model density are skipped.
func ComputeDensityError(estimated, model []float64) (mean, std, maxErr float64) {
	errs := make([]float64, 0, len(estimated))
	for i, rho := range estimated {
		if !(model[i] > 0) {
			continue
		}
		errs = append(errs, math.Abs(rho/model[i]-1))
	}
	if len(errs) == 0 {
		return 0, 0, 0
	}
	mean, std = stat.PopMeanStdDev(errs, nil)
	return mean, std, floats.Max(errs)
}

// LogValue implements slog.LogValuer for structured logging.
func (s IterationStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("iteration", s.Iteration),
		slog.String("status", s.Status),
		slog.Float64("normalization", s.Normalization),
		slog.Float64("max_displacement", s.MaxDisplacement),
		slog.Float64("mean_displacement", s.MeanDisplacement),
		slog.Float64("p90_displacement", s.P90Displacement),
		slog.Float64("fraction_converged", s.FractionConverged),
		slog.Int("clamped", s.Clamped),
		slog.Int("redistributed", s.Redistributed),
		slog.Float64("density_error_mean", s.DensityErrorMean),
		slog.Float64("density_error_max", s.DensityErrorMax),
		slog.Float64("mean_neighbours", s.MeanNeighbours),
		slog.Float64("duration_ms", s.DurationMS),
	)
}

// Sink receives the statistics of every completed iteration.
type Sink interface {
	RecordIteration(IterationStats) error
}
