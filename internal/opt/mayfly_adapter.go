package opt

import (
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// minPopulation is the smallest population mayfly accepts.
const minPopulation = 20

// MayflyAdapter wraps the external Mayfly library to conform to our Optimizer interface
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly creates a new Mayfly optimizer adapter.
// popSize is raised to the library minimum of 20.
func NewMayfly(maxIters, popSize int, seed int64) *MayflyAdapter {
	if popSize < minPopulation {
		popSize = minPopulation
	}
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  popSize,
		seed:     seed,
	}
}

// Run executes the Mayfly optimization using the external library.
// Mayfly takes scalar bounds, so every dimension must share the same range.
func (m *MayflyAdapter) Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64, error) {
	lo, hi, err := uniformBounds(lower, upper, dim)
	if err != nil {
		return nil, 0, err
	}

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = eval
	config.ProblemSize = dim
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize
	config.LowerBound = lo
	config.UpperBound = hi
	config.Rand = rand.New(rand.NewSource(m.seed))

	slog.Debug("Starting mayfly search", "dim", dim, "iterations", m.maxIters, "population", m.popSize)

	result, err := mayfly.Optimize(config)
	if err != nil {
		return nil, 0, fmt.Errorf("opt: mayfly: %w", err)
	}
	return result.GlobalBest.Position, result.GlobalBest.Cost, nil
}

func uniformBounds(lower, upper []float64, dim int) (float64, float64, error) {
	if dim < 1 || len(lower) != dim || len(upper) != dim {
		return 0, 0, fmt.Errorf("%w: need %d bounds, got %d lower and %d upper", ErrBounds, dim, len(lower), len(upper))
	}
	lo, hi := lower[0], upper[0]
	if !(lo < hi) {
		return 0, 0, fmt.Errorf("%w: lower %v must be below upper %v", ErrBounds, lo, hi)
	}
	for i := 1; i < dim; i++ {
		if lower[i] != lo || upper[i] != hi {
			return 0, 0, fmt.Errorf("%w: dimension %d has range [%v,%v], mayfly needs [%v,%v] everywhere", ErrBounds, i, lower[i], upper[i], lo, hi)
		}
	}
	return lo, hi, nil
}
