// Package config provides configuration loading, validation and access for
// the relaxation run.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrConfiguration is wrapped by every validation failure. Configuration
// errors are fatal and are reported before any iteration runs.
var ErrConfiguration = errors.New("configuration error")

// FieldError names the parameter that failed validation.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error { return ErrConfiguration }

// Invalid builds a FieldError for the given parameter path.
func Invalid(field, format string, args ...any) error {
	return &FieldError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Config holds all run parameters.
type Config struct {
	Domain         DomainConfig         `yaml:"domain"`
	Kernel         KernelConfig         `yaml:"kernel"`
	Neighbors      NeighborsConfig      `yaml:"neighbors"`
	Quadrature     QuadratureConfig     `yaml:"quadrature"`
	Sampling       SamplingConfig       `yaml:"sampling"`
	Run            RunConfig            `yaml:"run"`
	Redistribution RedistributionConfig `yaml:"redistribution"`
	Checkpoint     CheckpointConfig     `yaml:"checkpoint"`
	Parallel       ParallelConfig       `yaml:"parallel"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-" json:"-"`
}

// DomainConfig describes the box the particles live in.
type DomainConfig struct {
	NDim            int       `yaml:"ndim"`              // 1, 2 or 3
	Extent          []float64 `yaml:"extent"`            // Box size per dimension (len = ndim)
	ParticlesPerDim int       `yaml:"particles_per_dim"` // N = particles_per_dim^ndim
	Periodic        bool      `yaml:"periodic"`
}

// KernelConfig selects the smoothing kernel.
type KernelConfig struct {
	Name string  `yaml:"name"`
	Eta  float64 `yaml:"eta"` // Resolution eta; sets the target neighbour number
}

// NeighborsConfig bounds the smoothing-length root find.
type NeighborsConfig struct {
	Tolerance     float64 `yaml:"tolerance"`      // Relative tolerance on h
	MaxIterations int     `yaml:"max_iterations"` // Bisection steps per particle
}

// QuadratureConfig controls total-mass integration.
type QuadratureConfig struct {
	PointsPerDim int `yaml:"points_per_dim"` // 0 = auto
}

// SamplingConfig selects the initial guess strategy.
type SamplingConfig struct {
	Method             string  `yaml:"method"`               // rejection, uniform, displaced, external
	Jitter             float64 `yaml:"jitter"`               // displaced: max offset in cell spacings
	MaxEstimateSamples int     `yaml:"max_estimate_samples"` // rejection: probes for density max
	MaxSafety          float64 `yaml:"max_safety"`           // rejection: factor applied to estimated max
	MaxDraws           int     `yaml:"max_draws"`            // rejection: candidate budget per particle
}

// RunConfig holds iteration limits, thresholds and the normalization schedule.
// Displacement quantities are in units of the mean interparticle distance.
type RunConfig struct {
	IterMin               int     `yaml:"iter_min"`
	IterMax               int     `yaml:"iter_max"`
	ConvergenceThreshold  float64 `yaml:"convergence_threshold"`  // Per-particle converged bound
	UnconvergedTolerance  float64 `yaml:"unconverged_tolerance"`  // Allowed fraction above the bound
	DisplacementThreshold float64 `yaml:"displacement_threshold"` // Max displacement allowed at convergence
	MaxDisplacement       float64 `yaml:"max_displacement"`       // Hard ceiling, displacements are clamped to it
	DeltaInit             float64 `yaml:"delta_init"`             // 0 = derive on the first iteration
	DeltaReduction        float64 `yaml:"delta_reduction"`
	DeltaMin              float64 `yaml:"delta_min"`
	Seed                  uint64  `yaml:"seed"`
	LogEvery              int     `yaml:"log_every"` // 0 disables periodic progress logs
}

// RedistributionConfig holds the stochastic relocation schedule.
type RedistributionConfig struct {
	Frequency             int     `yaml:"frequency"` // 0 disables redistribution
	Fraction              float64 `yaml:"fraction"`
	Reduction             float64 `yaml:"reduction"`
	NoRedistributionAfter int     `yaml:"no_redistribution_after"`
}

// CheckpointConfig holds the dump schedule.
type CheckpointConfig struct {
	Frequency int    `yaml:"frequency"` // 0 disables checkpoints
	Basename  string `yaml:"basename"`
	Dir       string `yaml:"dir"`
}

// ParallelConfig holds worker settings for per-particle phases.
type ParallelConfig struct {
	Workers   int `yaml:"workers"`   // 0 = GOMAXPROCS
	Threshold int `yaml:"threshold"` // Below this particle count, run single-threaded
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	N                 int     // Total particle count
	Volume            float64 // Product of extents
	MeanInterparticle float64 // (Volume/N)^(1/ndim)
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used. The result is validated.
func Load(path string) (*Config, error) {
	cfg, err := Defaults()
	if err != nil {
		return nil, err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad is like Load but panics on error. Intended for tests.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(fmt.Sprintf("config: failed to load: %v", err))
	}
	return cfg
}

// Defaults returns the embedded defaults without validation.
func Defaults() (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}
	return cfg, nil
}

// Clone returns a deep copy. The engine keeps its own clone so later caller
// mutations have no effect until setup is run again.
func (c *Config) Clone() *Config {
	out := *c
	out.Domain.Extent = append([]float64(nil), c.Domain.Extent...)
	return &out
}

// Validate checks every parameter and fills Derived. It is the only place
// derived values are computed, so a mutated config must be validated again.
func (c *Config) Validate() error {
	d := c.Domain
	if d.NDim < 1 || d.NDim > 3 {
		return Invalid("domain.ndim", "must be 1, 2 or 3, got %d", d.NDim)
	}
	if len(d.Extent) != d.NDim {
		return Invalid("domain.extent", "need %d values, got %d", d.NDim, len(d.Extent))
	}
	for i, e := range d.Extent {
		if !(e > 0) || math.IsInf(e, 0) {
			return Invalid("domain.extent", "extent[%d] must be positive and finite, got %g", i, e)
		}
	}
	if d.ParticlesPerDim < 1 {
		return Invalid("domain.particles_per_dim", "must be >= 1, got %d", d.ParticlesPerDim)
	}

	if c.Kernel.Name == "" {
		return Invalid("kernel.name", "must not be empty")
	}
	if !(c.Kernel.Eta > 0) {
		return Invalid("kernel.eta", "must be positive, got %g", c.Kernel.Eta)
	}

	if !(c.Neighbors.Tolerance > 0) || c.Neighbors.Tolerance >= 1 {
		return Invalid("neighbors.tolerance", "must be in (0, 1), got %g", c.Neighbors.Tolerance)
	}
	if c.Neighbors.MaxIterations < 1 {
		return Invalid("neighbors.max_iterations", "must be >= 1, got %d", c.Neighbors.MaxIterations)
	}

	if c.Quadrature.PointsPerDim < 0 {
		return Invalid("quadrature.points_per_dim", "must be >= 0, got %d", c.Quadrature.PointsPerDim)
	}

	s := c.Sampling
	switch s.Method {
	case "rejection", "uniform", "displaced", "external":
	default:
		return Invalid("sampling.method", "unknown method %q", s.Method)
	}
	if s.Jitter < 0 || s.Jitter > 1 {
		return Invalid("sampling.jitter", "must be in [0, 1], got %g", s.Jitter)
	}
	if s.MaxEstimateSamples < 1 {
		return Invalid("sampling.max_estimate_samples", "must be >= 1, got %d", s.MaxEstimateSamples)
	}
	if s.MaxSafety < 1 {
		return Invalid("sampling.max_safety", "must be >= 1, got %g", s.MaxSafety)
	}
	if s.MaxDraws < 1 {
		return Invalid("sampling.max_draws", "must be >= 1, got %d", s.MaxDraws)
	}

	r := c.Run
	if r.IterMin < 0 {
		return Invalid("run.iter_min", "must be >= 0, got %d", r.IterMin)
	}
	if r.IterMax < 1 {
		return Invalid("run.iter_max", "must be >= 1, got %d", r.IterMax)
	}
	if r.IterMin > r.IterMax {
		return Invalid("run.iter_min", "must not exceed iter_max (%d > %d)", r.IterMin, r.IterMax)
	}
	if !(r.ConvergenceThreshold > 0) {
		return Invalid("run.convergence_threshold", "must be positive, got %g", r.ConvergenceThreshold)
	}
	if r.UnconvergedTolerance < 0 || r.UnconvergedTolerance >= 1 {
		return Invalid("run.unconverged_tolerance", "must be in [0, 1), got %g", r.UnconvergedTolerance)
	}
	if !(r.DisplacementThreshold > 0) {
		return Invalid("run.displacement_threshold", "must be positive, got %g", r.DisplacementThreshold)
	}
	if !(r.MaxDisplacement > 0) {
		return Invalid("run.max_displacement", "must be positive, got %g", r.MaxDisplacement)
	}
	if r.DeltaInit < 0 {
		return Invalid("run.delta_init", "must be >= 0, got %g", r.DeltaInit)
	}
	if !(r.DeltaReduction > 0) || r.DeltaReduction > 1 {
		return Invalid("run.delta_reduction", "must be in (0, 1], got %g", r.DeltaReduction)
	}
	if r.DeltaMin < 0 {
		return Invalid("run.delta_min", "must be >= 0, got %g", r.DeltaMin)
	}
	if r.LogEvery < 0 {
		return Invalid("run.log_every", "must be >= 0, got %d", r.LogEvery)
	}

	rd := c.Redistribution
	if rd.Frequency < 0 {
		return Invalid("redistribution.frequency", "must be >= 0, got %d", rd.Frequency)
	}
	if rd.Fraction < 0 || rd.Fraction > 1 {
		return Invalid("redistribution.fraction", "must be in [0, 1], got %g", rd.Fraction)
	}
	if rd.Reduction < 0 || rd.Reduction > 1 {
		return Invalid("redistribution.reduction", "must be in [0, 1], got %g", rd.Reduction)
	}
	if rd.NoRedistributionAfter < 0 {
		return Invalid("redistribution.no_redistribution_after", "must be >= 0, got %d", rd.NoRedistributionAfter)
	}

	if c.Checkpoint.Frequency < 0 {
		return Invalid("checkpoint.frequency", "must be >= 0, got %d", c.Checkpoint.Frequency)
	}
	if c.Checkpoint.Frequency > 0 && c.Checkpoint.Basename == "" {
		return Invalid("checkpoint.basename", "required when checkpoint.frequency > 0")
	}

	if c.Parallel.Workers < 0 {
		return Invalid("parallel.workers", "must be >= 0, got %d", c.Parallel.Workers)
	}
	if c.Parallel.Threshold < 0 {
		return Invalid("parallel.threshold", "must be >= 0, got %d", c.Parallel.Threshold)
	}

	c.computeDerived()
	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	n := 1
	vol := 1.0
	for i := 0; i < c.Domain.NDim; i++ {
		n *= c.Domain.ParticlesPerDim
		vol *= c.Domain.Extent[i]
	}
	c.Derived.N = n
	c.Derived.Volume = vol
	c.Derived.MeanInterparticle = math.Pow(vol/float64(n), 1/float64(c.Domain.NDim))
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
