// Package density defines the target density field contract and integrates
// it to obtain the particle mass.
package density

import (
	"errors"
	"fmt"
	"math"
)

// ErrFieldEvaluation is wrapped by every invalid field evaluation.
var ErrFieldEvaluation = errors.New("density field evaluation error")

// Field is a target density. Positions are a flat batch of len(pos)/ndim
// points; the result holds one non-negative finite value per point.
// Implementations must be stateless and safe for concurrent use.
type Field interface {
	Density(pos []float64, ndim int) []float64
}

// FieldFunc adapts an ordinary function to the Field interface.
type FieldFunc func(pos []float64, ndim int) []float64

// Density calls f(pos, ndim).
func (f FieldFunc) Density(pos []float64, ndim int) []float64 {
	return f(pos, ndim)
}

// FieldError reports the first offending sample of a field evaluation.
type FieldError struct {
	Position []float64
	Value    float64
	Reason   string
}

func (e *FieldError) Error() string {
	if e.Position == nil {
		return fmt.Sprintf("density field: %s", e.Reason)
	}
	return fmt.Sprintf("density field: %s at %v (value %g)", e.Reason, e.Position, e.Value)
}

func (e *FieldError) Unwrap() error { return ErrFieldEvaluation }

// Evaluate calls the field and checks the contract: one value per point,
// each finite and non-negative.
func Evaluate(f Field, pos []float64, ndim int) ([]float64, error) {
	n := len(pos) / ndim
	out := f.Density(pos, ndim)
	if len(out) != n {
		return nil, &FieldError{Reason: fmt.Sprintf("returned %d values for %d positions", len(out), n)}
	}
	for i, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &FieldError{Position: point(pos, i, ndim), Value: v, Reason: "non-finite value"}
		}
		if v < 0 {
			return nil, &FieldError{Position: point(pos, i, ndim), Value: v, Reason: "negative value"}
		}
	}
	return out, nil
}

func point(pos []float64, i, ndim int) []float64 {
	return append([]float64(nil), pos[i*ndim:(i+1)*ndim]...)
}
