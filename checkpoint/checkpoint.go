// Package checkpoint persists the relaxation state so a run can be resumed.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pthm-cable/icgen/config"
)

// Version is incremented when the format changes.
const Version = 1

// ErrCheckpoint is wrapped by every save, load or compatibility failure.
var ErrCheckpoint = errors.New("checkpoint error")

// Checkpoint holds everything needed to continue a relaxation run.
type Checkpoint struct {
	Version int `json:"version"`
	NDim    int `json:"ndim"`
	N       int `json:"n"`

	// Iteration is the last completed iteration.
	Iteration int `json:"iteration"`

	Normalization          float64 `json:"normalization"`
	NormalizationSet       bool    `json:"normalization_set"`
	RedistributionFraction float64 `json:"redistribution_fraction"`
	RNGState               []byte  `json:"rng_state"`

	Config *config.Config `json:"config"`

	Positions        []float64 `json:"positions"`
	Masses           []float64 `json:"masses"`
	SmoothingLengths []float64 `json:"smoothing_lengths"`
	Densities        []float64 `json:"densities"`
}

// Filename returns the checkpoint name for an iteration: basename_00042.
func Filename(basename string, iteration int) string {
	return fmt.Sprintf("%s_%05d", basename, iteration)
}

// Validate checks the header and array lengths.
func (cp *Checkpoint) Validate() error {
	if cp.Version != Version {
		return fmt.Errorf("%w: version %d, want %d", ErrCheckpoint, cp.Version, Version)
	}
	if cp.NDim < 1 || cp.NDim > 3 {
		return fmt.Errorf("%w: invalid ndim %d", ErrCheckpoint, cp.NDim)
	}
	if cp.N < 1 {
		return fmt.Errorf("%w: invalid particle count %d", ErrCheckpoint, cp.N)
	}
	if cp.Config == nil {
		return fmt.Errorf("%w: missing config", ErrCheckpoint)
	}
	if len(cp.Positions) != cp.N*cp.NDim {
		return fmt.Errorf("%w: %d coordinates for %d particles in %dD", ErrCheckpoint, len(cp.Positions), cp.N, cp.NDim)
	}
	for name, arr := range map[string][]float64{
		"masses":            cp.Masses,
		"smoothing_lengths": cp.SmoothingLengths,
		"densities":         cp.Densities,
	} {
		if len(arr) != cp.N {
			return fmt.Errorf("%w: %s has %d entries, want %d", ErrCheckpoint, name, len(arr), cp.N)
		}
	}
	return nil
}

// Save writes a checkpoint into dir and returns its path. The file is written
// to a temporary name and renamed, so an interrupted save never leaves a
// truncated checkpoint under the final name.
func Save(cp *Checkpoint, dir, basename string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("%w: create dir: %w", ErrCheckpoint, err)
	}

	path := filepath.Join(dir, Filename(basename, cp.Iteration))

	data, err := json.Marshal(cp)
	if err != nil {
		return "", fmt.Errorf("%w: marshal: %w", ErrCheckpoint, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("%w: create temp file: %w", ErrCheckpoint, err)
	}
	tmpName := tmp.Name()
	fail := func(err error) (string, error) {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("%w: write %s: %w", ErrCheckpoint, path, err)
	}

	if _, err := tmp.Write(data); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("%w: close %s: %w", ErrCheckpoint, tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("%w: rename to %s: %w", ErrCheckpoint, path, err)
	}
	return path, nil
}

// Load reads and validates a checkpoint.
func Load(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read: %w", ErrCheckpoint, err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("%w: unmarshal %s: %w", ErrCheckpoint, path, err)
	}
	if err := cp.Validate(); err != nil {
		return nil, err
	}
	return &cp, nil
}
