// Package main tunes the relaxation schedule with CMA-ES.
package main

import (
	"math"

	"github.com/pthm-cable/icgen/config"
)

// ParamSpec is one tunable config value and its search interval.
type ParamSpec struct {
	Name    string
	Path    string // YAML key, for reports
	Min     float64
	Max     float64
	Default float64
}

func (s ParamSpec) span() float64 { return s.Max - s.Min }

// ParamVector is the ordered set of tuned values. CMA-ES searches the unit
// cube; Normalize and Denormalize map between it and config units.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector returns the schedule knobs: normalization decay, the
// displacement ceiling and the redistribution cadence.
func NewParamVector() *ParamVector {
	return &ParamVector{
		Specs: []ParamSpec{
			{Name: "delta_reduction", Path: "run.delta_reduction", Min: 0.9, Max: 1.0, Default: 0.99},
			{Name: "max_displacement", Path: "run.max_displacement", Min: 0.1, Max: 2.0, Default: 1.0},
			{Name: "redist_frequency", Path: "redistribution.frequency", Min: 5, Max: 100, Default: 40},
			{Name: "redist_fraction", Path: "redistribution.fraction", Min: 0.0, Max: 0.05, Default: 0.01},
			{Name: "redist_reduction", Path: "redistribution.reduction", Min: 0.5, Max: 1.0, Default: 1.0},
		},
	}
}

// Dim is the search dimension.
func (pv *ParamVector) Dim() int { return len(pv.Specs) }

// DefaultVector is the starting point, in config units.
func (pv *ParamVector) DefaultVector() []float64 {
	return pv.each(func(_ int, s ParamSpec) float64 { return s.Default })
}

// Normalize maps config values onto [0,1].
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	return pv.each(func(i int, s ParamSpec) float64 { return (raw[i] - s.Min) / s.span() })
}

// Denormalize maps unit-cube coordinates back to config values. Points
// outside the cube map outside the bounds; ApplyToConfig clamps them.
func (pv *ParamVector) Denormalize(unit []float64) []float64 {
	return pv.each(func(i int, s ParamSpec) float64 { return s.Min + unit[i]*s.span() })
}

// Clamp limits each value to its interval.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	return pv.each(func(i int, s ParamSpec) float64 { return min(max(v[i], s.Min), s.Max) })
}

func (pv *ParamVector) each(f func(i int, s ParamSpec) float64) []float64 {
	out := make([]float64, len(pv.Specs))
	for i, s := range pv.Specs {
		out[i] = f(i, s)
	}
	return out
}

// ApplyToConfig writes clamped values into cfg in Specs order. The
// redistribution frequency is rounded to whole iterations.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) {
	v := pv.Clamp(values)

	cfg.Run.DeltaReduction = v[0]
	cfg.Run.MaxDisplacement = v[1]
	cfg.Redistribution.Frequency = int(math.Round(v[2]))
	cfg.Redistribution.Fraction = v[3]
	cfg.Redistribution.Reduction = v[4]
}
