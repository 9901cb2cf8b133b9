package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/pthm-cable/icgen/config"
)

func TestOutputManagerDisabled(t *testing.T) {
	om, err := NewOutputManager("")
	if err != nil {
		t.Fatal(err)
	}
	if om != nil {
		t.Fatal("expected nil manager for empty dir")
	}
	if err := om.RecordIteration(IterationStats{}); err != nil {
		t.Errorf("nil manager RecordIteration: %v", err)
	}
	if err := om.Close(); err != nil {
		t.Errorf("nil manager Close: %v", err)
	}
}

func TestOutputManagerIterations(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	om, err := NewOutputManager(dir)
	if err != nil {
		t.Fatalf("NewOutputManager failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := om.RecordIteration(IterationStats{Iteration: i, Status: "running", MaxDisplacement: 0.5}); err != nil {
			t.Fatalf("RecordIteration(%d): %v", i, err)
		}
	}
	if err := om.WritePerf(PerfStats{PhasePct: map[string]float64{PhaseForce: 50}}, 2); err != nil {
		t.Fatalf("WritePerf: %v", err)
	}
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	if err := om.WriteConfig(cfg); err != nil {
		t.Fatalf("WriteConfig: %v", err)
	}
	if err := om.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "iterations.csv"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header + 3 rows, got %d lines:\n%s", len(lines), data)
	}
	if !strings.HasPrefix(lines[0], "iteration,status,") {
		t.Errorf("unexpected header %q", lines[0])
	}
	if strings.Count(string(data), "iteration,status") != 1 {
		t.Error("header written more than once")
	}

	if _, err := config.Load(filepath.Join(dir, "config.yaml")); err != nil {
		t.Errorf("written config does not load: %v", err)
	}
}

func TestParticlesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	om, err := NewOutputManager(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer om.Close()

	pos := []float64{0.1, 0.2, 0.3, 0.4}
	records := ParticleRecords(2, pos, []float64{1, 2}, []float64{0.05, 0.06}, []float64{0.9, 1.1})
	if records[1].X != 0.3 || records[1].Y != 0.4 || records[1].Z != 0 {
		t.Fatalf("unexpected record %+v", records[1])
	}
	if err := om.WriteParticles(records); err != nil {
		t.Fatalf("WriteParticles: %v", err)
	}

	got, err := ReadParticles(filepath.Join(dir, "particles.csv"))
	if err != nil {
		t.Fatalf("ReadParticles: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	if got[0] != records[0] || got[1] != records[1] {
		t.Errorf("records differ: %+v vs %+v", got, records)
	}
}

func TestMetricsRecordIteration(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	stats := IterationStats{Iteration: 4, Status: "running", Clamped: 3, Redistributed: 10, MaxDisplacement: 0.2, DurationMS: 12}
	if err := m.RecordIteration(stats); err != nil {
		t.Fatal(err)
	}
	stats.Iteration = 5
	if err := m.RecordIteration(stats); err != nil {
		t.Fatal(err)
	}

	if got := testutil.ToFloat64(m.Iteration); got != 5 {
		t.Errorf("iteration gauge = %v, want 5", got)
	}
	if got := testutil.ToFloat64(m.Redistributed); got != 20 {
		t.Errorf("redistributed counter = %v, want 20", got)
	}
	if got := testutil.ToFloat64(m.IterationsTotal.WithLabelValues("running")); got != 2 {
		t.Errorf("iterations{running} = %v, want 2", got)
	}
}
