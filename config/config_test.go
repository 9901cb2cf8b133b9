package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load defaults failed: %v", err)
	}

	if cfg.Domain.NDim != 2 {
		t.Errorf("expected ndim 2, got %d", cfg.Domain.NDim)
	}
	if cfg.Derived.N != 100*100 {
		t.Errorf("expected N=10000, got %d", cfg.Derived.N)
	}
	if math.Abs(cfg.Derived.MeanInterparticle-0.01) > 1e-12 {
		t.Errorf("expected mean interparticle distance 0.01, got %g", cfg.Derived.MeanInterparticle)
	}
	if cfg.Kernel.Name != "cubic_spline" {
		t.Errorf("expected default kernel cubic_spline, got %q", cfg.Kernel.Name)
	}
}

func TestLoadOverlaysUserFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.yaml")
	data := []byte("domain:\n  ndim: 1\n  extent: [2.0]\n  particles_per_dim: 10\nrun:\n  iter_max: 7\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Domain.NDim != 1 || len(cfg.Domain.Extent) != 1 {
		t.Fatalf("expected 1D domain, got ndim=%d extent=%v", cfg.Domain.NDim, cfg.Domain.Extent)
	}
	if cfg.Run.IterMax != 7 {
		t.Errorf("expected iter_max 7, got %d", cfg.Run.IterMax)
	}
	// Untouched keys keep their defaults
	if cfg.Redistribution.Frequency != 40 {
		t.Errorf("expected default redistribution frequency 40, got %d", cfg.Redistribution.Frequency)
	}
	if math.Abs(cfg.Derived.MeanInterparticle-0.2) > 1e-12 {
		t.Errorf("expected mean interparticle distance 0.2, got %g", cfg.Derived.MeanInterparticle)
	}
}

func TestValidateRejectsBadParameters(t *testing.T) {
	tests := []struct {
		name  string
		field string
		edit  func(c *Config)
	}{
		{"ndim", "domain.ndim", func(c *Config) { c.Domain.NDim = 4 }},
		{"extent length", "domain.extent", func(c *Config) { c.Domain.Extent = []float64{1} }},
		{"negative extent", "domain.extent", func(c *Config) { c.Domain.Extent = []float64{1, -1} }},
		{"particles", "domain.particles_per_dim", func(c *Config) { c.Domain.ParticlesPerDim = 0 }},
		{"eta", "kernel.eta", func(c *Config) { c.Kernel.Eta = 0 }},
		{"iter order", "run.iter_min", func(c *Config) { c.Run.IterMin = 10; c.Run.IterMax = 5 }},
		{"tolerance", "run.unconverged_tolerance", func(c *Config) { c.Run.UnconvergedTolerance = 1 }},
		{"sampling", "sampling.method", func(c *Config) { c.Sampling.Method = "sobol" }},
		{"checkpoint", "checkpoint.basename", func(c *Config) {
			c.Checkpoint.Frequency = 10
			c.Checkpoint.Basename = ""
		}},
		{"reduction", "run.delta_reduction", func(c *Config) { c.Run.DeltaReduction = 1.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Defaults()
			if err != nil {
				t.Fatal(err)
			}
			tt.edit(cfg)

			err = cfg.Validate()
			if !errors.Is(err, ErrConfiguration) {
				t.Fatalf("expected ErrConfiguration, got %v", err)
			}
			var fe *FieldError
			if !errors.As(err, &fe) {
				t.Fatalf("expected *FieldError, got %T", err)
			}
			if fe.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, fe.Field)
			}
		})
	}
}

func TestCloneIsIndependent(t *testing.T) {
	cfg := MustLoad("")
	clone := cfg.Clone()

	cfg.Domain.Extent[0] = 42
	cfg.Run.IterMax = 1

	if clone.Domain.Extent[0] != 1 {
		t.Errorf("clone shares extent slice: got %g", clone.Domain.Extent[0])
	}
	if clone.Run.IterMax != 2000 {
		t.Errorf("clone iter_max changed: got %d", clone.Run.IterMax)
	}
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	cfg := MustLoad("")
	cfg.Run.Seed = 99

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := cfg.WriteYAML(path); err != nil {
		t.Fatalf("WriteYAML failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Run.Seed != 99 {
		t.Errorf("seed mismatch: got %d, want 99", loaded.Run.Seed)
	}
}
