package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/icgen/config"
)

// OutputManager handles run output: iteration and perf CSV logs, the
// effective config and the final particle table.
type OutputManager struct {
	dir           string
	iterationFile *os.File
	perfFile      *os.File

	iterationHeaderWritten bool
	perfHeaderWritten      bool
}

// NewOutputManager creates the output directory and opens the CSV logs.
// Returns nil if dir is empty (output disabled). A nil manager accepts every
// call and writes nothing.
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir}

	f, err := os.Create(filepath.Join(dir, "iterations.csv"))
	if err != nil {
		return nil, fmt.Errorf("creating iterations.csv: %w", err)
	}
	om.iterationFile = f

	f, err = os.Create(filepath.Join(dir, "perf.csv"))
	if err != nil {
		om.iterationFile.Close()
		return nil, fmt.Errorf("creating perf.csv: %w", err)
	}
	om.perfFile = f

	return om, nil
}

// WriteConfig saves the effective configuration as YAML.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, "config.yaml"))
}

// RecordIteration appends one row to iterations.csv.
func (om *OutputManager) RecordIteration(stats IterationStats) error {
	if om == nil {
		return nil
	}

	records := []IterationStats{stats}

	if !om.iterationHeaderWritten {
		if err := gocsv.Marshal(records, om.iterationFile); err != nil {
			return fmt.Errorf("writing iterations: %w", err)
		}
		om.iterationHeaderWritten = true
	} else {
		if err := gocsv.MarshalWithoutHeaders(records, om.iterationFile); err != nil {
			return fmt.Errorf("writing iterations: %w", err)
		}
	}
	return nil
}

// PerfStatsCSV is a flat struct for CSV export of performance stats.
type PerfStatsCSV struct {
	Iteration       int     `csv:"iteration"`
	AvgIterUS       int64   `csv:"avg_iter_us"`
	MinIterUS       int64   `csv:"min_iter_us"`
	MaxIterUS       int64   `csv:"max_iter_us"`
	ItersPerSec     float64 `csv:"iters_per_sec"`
	ModelPct        float64 `csv:"model_density_pct"`
	NeighboursPct   float64 `csv:"neighbours_pct"`
	ForcePct        float64 `csv:"force_pct"`
	MovePct         float64 `csv:"move_pct"`
	RedistributePct float64 `csv:"redistribute_pct"`
	CheckpointPct   float64 `csv:"checkpoint_pct"`
	TelemetryPct    float64 `csv:"telemetry_pct"`
}

// ToCSV converts PerfStats to a flat CSV-friendly struct.
func (s PerfStats) ToCSV(iteration int) PerfStatsCSV {
	return PerfStatsCSV{
		Iteration:       iteration,
		AvgIterUS:       s.AvgIteration.Microseconds(),
		MinIterUS:       s.MinIteration.Microseconds(),
		MaxIterUS:       s.MaxIteration.Microseconds(),
		ItersPerSec:     s.IterationsPerSecond,
		ModelPct:        s.PhasePct[PhaseModel],
		NeighboursPct:   s.PhasePct[PhaseNeighbours],
		ForcePct:        s.PhasePct[PhaseForce],
		MovePct:         s.PhasePct[PhaseMove],
		RedistributePct: s.PhasePct[PhaseRedistribute],
		CheckpointPct:   s.PhasePct[PhaseCheckpoint],
		TelemetryPct:    s.PhasePct[PhaseTelemetry],
	}
}

// WritePerf writes a performance stats record to perf.csv.
func (om *OutputManager) WritePerf(stats PerfStats, iteration int) error {
	if om == nil {
		return nil
	}

	records := []PerfStatsCSV{stats.ToCSV(iteration)}

	if !om.perfHeaderWritten {
		if err := gocsv.Marshal(records, om.perfFile); err != nil {
			return fmt.Errorf("writing perf: %w", err)
		}
		om.perfHeaderWritten = true
	} else {
		if err := gocsv.MarshalWithoutHeaders(records, om.perfFile); err != nil {
			return fmt.Errorf("writing perf: %w", err)
		}
	}
	return nil
}

// ParticleRecord is one row of particles.csv. Unused coordinates are zero.
type ParticleRecord struct {
	Index   int     `csv:"index"`
	X       float64 `csv:"x"`
	Y       float64 `csv:"y"`
	Z       float64 `csv:"z"`
	Mass    float64 `csv:"mass"`
	H       float64 `csv:"h"`
	Density float64 `csv:"density"`
}

// ParticleRecords builds rows from flat arrays. pos holds ndim values per
// particle.
func ParticleRecords(ndim int, pos, mass, h, density []float64) []ParticleRecord {
	n := len(mass)
	out := make([]ParticleRecord, n)
	for i := range out {
		var xyz [3]float64
		copy(xyz[:], pos[i*ndim:(i+1)*ndim])
		out[i] = ParticleRecord{
			Index:   i,
			X:       xyz[0],
			Y:       xyz[1],
			Z:       xyz[2],
			Mass:    mass[i],
			H:       h[i],
			Density: density[i],
		}
	}
	return out
}

// WriteParticles writes the final particle table to particles.csv.
func (om *OutputManager) WriteParticles(records []ParticleRecord) error {
	if om == nil {
		return nil
	}
	return WriteParticlesFile(filepath.Join(om.dir, "particles.csv"), records)
}

// WriteParticlesFile writes a particle table to path.
func WriteParticlesFile(path string, records []ParticleRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Base(path), err)
	}
	if err := gocsv.MarshalFile(&records, f); err != nil {
		f.Close()
		return fmt.Errorf("writing particles: %w", err)
	}
	return f.Close()
}

// ReadParticles loads a particle table written by WriteParticles.
func ReadParticles(path string) ([]ParticleRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening particles: %w", err)
	}
	defer f.Close()

	var records []ParticleRecord
	if err := gocsv.UnmarshalFile(f, &records); err != nil {
		return nil, fmt.Errorf("reading particles: %w", err)
	}
	return records, nil
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close flushes and closes all output files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}

	var firstErr error
	if om.iterationFile != nil {
		if err := om.iterationFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if om.perfFile != nil {
		if err := om.perfFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
