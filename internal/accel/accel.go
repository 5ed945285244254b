// Package accel implements convergence accelerators for fixed-point
// iterations x_{n+1} = f(x_n).
//
// A driver owns a State holding the current iterate and repeatedly calls
// Advance on an Accelerator. The accelerator evaluates the Problem exactly
// once per call, mixes or extrapolates, and returns a new iterate which the
// driver writes back into the State.
//
// Two accelerators are provided: LinearDamping, a stateless damped update,
// and DIIS, a Pulay extrapolation over a bounded history window with a
// restart safeguard. Neither is safe for concurrent use; run independent
// sequences with independent instances.
package accel

import (
	"fmt"

	"github.com/cwbudde/convaccel/internal/array"
)

// Problem is the update operator being iterated.
type Problem interface {
	// Update maps the current iterate to the next raw iterate.
	// The result must have the same shape as x.
	Update(x *array.Array) (*array.Array, error)
}

// ProblemFunc adapts an ordinary function to the Problem interface.
type ProblemFunc func(x *array.Array) (*array.Array, error)

// Update calls f(x).
func (f ProblemFunc) Update(x *array.Array) (*array.Array, error) {
	return f(x)
}

// State holds the current accepted iterate.
type State struct {
	Input *array.Array
}

// NewState creates a state seeded with a copy of x0.
func NewState(x0 *array.Array) *State {
	return &State{Input: x0.Clone()}
}

// Accelerator produces the next iterate of a fixed-point sequence.
type Accelerator interface {
	// Advance evaluates p at s.Input and returns the accelerated next
	// iterate. It does not modify s.
	Advance(p Problem, s *State) (*array.Array, error)

	// Name identifies the method ("linear" or "diis").
	Name() string
}

// evaluate runs the problem once and checks the contract on its output.
func evaluate(p Problem, s *State) (prev, curr *array.Array, err error) {
	if s == nil || s.Input == nil {
		return nil, nil, fmt.Errorf("%w: state has no input iterate", ErrShapeMismatch)
	}
	prev = s.Input
	curr, err = p.Update(prev)
	if err != nil {
		return nil, nil, fmt.Errorf("accel: update: %w", err)
	}
	if curr == nil {
		return nil, nil, fmt.Errorf("%w: update returned nil", ErrShapeMismatch)
	}
	if !curr.SameShape(prev) {
		return nil, nil, fmt.Errorf("%w: update returned %v for input %v", ErrShapeMismatch, curr.Shape(), prev.Shape())
	}
	return prev, curr, nil
}

// ErrorMeasure returns (1/N)·(Σ(curr−prev))², the drift signal used by the
// DIIS restart safeguard.
//
// The elementwise difference is summed before squaring, so opposite-signed
// changes cancel. It is not a root-mean-square and must not be used as a
// residual norm.
func ErrorMeasure(prev, curr *array.Array) float64 {
	s := curr.Sub(prev).Sum()
	return s * s / float64(curr.Len())
}
