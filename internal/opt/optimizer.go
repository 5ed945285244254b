// Package opt wraps derivative-free optimisers used to tune accelerator
// parameters.
package opt

import "errors"

// ErrBounds is returned when the search bounds are unusable.
var ErrBounds = errors.New("opt: invalid bounds")

// Optimizer defines an optimization algorithm interface
type Optimizer interface {
	// Run minimises eval over the box [lower, upper] of dimension dim and
	// returns the best parameters and their cost.
	Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64, error)
}
