package telemetry

import (
	"log/slog"
	"math"
	"testing"
)

func TestPercentile(t *testing.T) {
	tests := []struct {
		name   string
		sorted []float64
		p      float64
		want   float64
	}{
		{"empty slice", []float64{}, 0.5, 0},
		{"single element", []float64{5.0}, 0.5, 5.0},
		{"p0", []float64{1, 2, 3, 4, 5}, 0.0, 1.0},
		{"p100", []float64{1, 2, 3, 4, 5}, 1.0, 5.0},
		{"p50 odd", []float64{1, 2, 3, 4, 5}, 0.5, 3.0},
		{"p50 even", []float64{1, 2, 3, 4}, 0.5, 2.5},
		{"p90", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0.9, 9.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Percentile(tt.sorted, tt.p)
			if math.Abs(got-tt.want) > 0.001 {
				t.Errorf("Percentile(%v, %v) = %v, want %v", tt.sorted, tt.p, got, tt.want)
			}
		})
	}
}

func TestComputeDisplacementStats(t *testing.T) {
	values := []float64{1.0, 0.9, 0.8, 0.7, 0.6, 0.5, 0.4, 0.3, 0.2, 0.1}
	mean, p50, p90 := ComputeDisplacementStats(values)

	if math.Abs(mean-0.55) > 0.001 {
		t.Errorf("mean = %v, want 0.55", mean)
	}
	if math.Abs(p50-0.55) > 0.01 {
		t.Errorf("p50 = %v, want ~0.55", p50)
	}
	if math.Abs(p90-0.91) > 0.01 {
		t.Errorf("p90 = %v, want ~0.91", p90)
	}
	if values[0] != 1.0 {
		t.Error("input slice was reordered")
	}
}

func TestComputeDisplacementStatsEmpty(t *testing.T) {
	mean, p50, p90 := ComputeDisplacementStats(nil)
	if mean != 0 || p50 != 0 || p90 != 0 {
		t.Error("empty slice should return all zeros")
	}
}

func TestComputeDensityError(t *testing.T) {
	est := []float64{1.1, 0.9, 1.0, 5}
	model := []float64{1, 1, 1, 0}
	mean, std, maxErr := ComputeDensityError(est, model)

	if math.Abs(mean-0.2/3) > 1e-12 {
		t.Errorf("mean = %v, want %v", mean, 0.2/3)
	}
	if std <= 0 {
		t.Errorf("std = %v, want > 0", std)
	}
	if math.Abs(maxErr-0.1) > 1e-12 {
		t.Errorf("max = %v, want 0.1 (zero-model entry skipped)", maxErr)
	}
}

func TestIterationStatsLogValue(t *testing.T) {
	s := IterationStats{Iteration: 7, Status: "running", MaxDisplacement: 0.25}
	v := s.LogValue()
	if v.Kind() != slog.KindGroup {
		t.Fatalf("kind = %v, want group", v.Kind())
	}
	found := false
	for _, a := range v.Group() {
		if a.Key == "iteration" && a.Value.Int64() == 7 {
			found = true
		}
	}
	if !found {
		t.Error("iteration attribute missing from log value")
	}
}
