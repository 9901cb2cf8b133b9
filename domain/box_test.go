package domain

import (
	"math"
	"testing"
)

func TestWrap(t *testing.T) {
	tests := []struct {
		x, e, want float64
	}{
		{0.5, 1, 0.5},
		{1.25, 1, 0.25},
		{-0.25, 1, 0.75},
		{1, 1, 0},
		{-1e-18, 1, 0},
		{-3.5, 2, 0.5},
	}
	for _, tt := range tests {
		got := Wrap(tt.x, tt.e)
		if math.Abs(got-tt.want) > 1e-15 {
			t.Errorf("Wrap(%v, %v) = %v, want %v", tt.x, tt.e, got, tt.want)
		}
		if got < 0 || got >= tt.e {
			t.Errorf("Wrap(%v, %v) = %v outside [0, %v)", tt.x, tt.e, got, tt.e)
		}
	}
}

func TestDeltaMinimumImage(t *testing.T) {
	b := Box{Extent: []float64{1, 2}, Periodic: true}
	dst := make([]float64, 2)

	r := b.Delta(dst, []float64{0.05, 0.1}, []float64{0.95, 1.9})
	if math.Abs(dst[0]-0.1) > 1e-12 || math.Abs(dst[1]-0.2) > 1e-12 {
		t.Errorf("periodic delta = %v, want [0.1 0.2]", dst)
	}
	if math.Abs(r-math.Hypot(0.1, 0.2)) > 1e-12 {
		t.Errorf("periodic distance = %v", r)
	}

	b.Periodic = false
	b.Delta(dst, []float64{0.05, 0.1}, []float64{0.95, 1.9})
	if math.Abs(dst[0]+0.9) > 1e-12 || math.Abs(dst[1]+1.8) > 1e-12 {
		t.Errorf("open delta = %v, want [-0.9 -1.8]", dst)
	}
}

func TestPlace(t *testing.T) {
	periodic := Box{Extent: []float64{1, 1}, Periodic: true}
	p := []float64{1.2, -0.1}
	periodic.Place(p)
	if math.Abs(p[0]-0.2) > 1e-12 || math.Abs(p[1]-0.9) > 1e-12 {
		t.Errorf("periodic Place = %v, want [0.2 0.9]", p)
	}
	if !periodic.Contains(p) {
		t.Errorf("placed point %v not contained", p)
	}

	open := Box{Extent: []float64{1, 1}}
	p = []float64{1.2, -0.1}
	open.Place(p)
	if p[0] != 1 || p[1] != 0 {
		t.Errorf("open Place = %v, want [1 0]", p)
	}
	if !open.Contains(p) {
		t.Errorf("clamped point %v not contained", p)
	}
}
