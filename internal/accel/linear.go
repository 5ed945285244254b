package accel

import (
	"math"

	"github.com/cwbudde/convaccel/internal/array"
)

// LinearDamping mixes each raw update with the previous iterate:
//
//	x_new = eta*f(x) + (1-eta)*x
type LinearDamping struct {
	eta float64
}

// NewLinearDamping creates a damping accelerator. eta must lie in [0, 1];
// eta = 1 is plain fixed-point iteration and eta = 0 never moves.
func NewLinearDamping(eta float64) (*LinearDamping, error) {
	if err := checkEta(eta, true); err != nil {
		return nil, err
	}
	return &LinearDamping{eta: eta}, nil
}

// Name implements Accelerator.
func (l *LinearDamping) Name() string { return MethodLinear }

// Advance implements Accelerator.
func (l *LinearDamping) Advance(p Problem, s *State) (*array.Array, error) {
	prev, curr, err := evaluate(p, s)
	if err != nil {
		return nil, err
	}
	return curr.Mix(l.eta, prev), nil
}

func checkEta(eta float64, allowZero bool) error {
	switch {
	case math.IsNaN(eta) || math.IsInf(eta, 0):
		return &ConfigError{Field: "eta", Reason: "must be finite"}
	case eta > 1:
		return &ConfigError{Field: "eta", Reason: "must not exceed 1"}
	case eta < 0 || (eta == 0 && !allowZero):
		if allowZero {
			return &ConfigError{Field: "eta", Reason: "must not be negative"}
		}
		return &ConfigError{Field: "eta", Reason: "must be positive"}
	}
	return nil
}
