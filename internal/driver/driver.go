// Package driver runs a fixed-point iteration to convergence with a chosen
// accelerator and reports each step to observers.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cwbudde/convaccel/internal/accel"
	"github.com/cwbudde/convaccel/internal/array"
)

var (
	// ErrInvalidConfig is returned when Config has out-of-range values.
	ErrInvalidConfig = errors.New("driver: invalid config")

	// ErrDiverged is returned when an iterate contains NaN or Inf.
	ErrDiverged = errors.New("driver: iterate is not finite")
)

// Config controls when Run stops.
type Config struct {
	// MaxIterations caps the number of Advance calls
	MaxIterations int `json:"maxIterations"`

	// Tolerance is the max-norm change below which the run has converged
	Tolerance float64 `json:"tolerance"`

	// Patience is the number of steps without significant change reduction
	// before the run is declared stalled. 0 disables stall detection.
	Patience int `json:"patience,omitempty"`

	// StallThreshold is the minimum relative reduction that counts as progress
	StallThreshold float64 `json:"stallThreshold,omitempty"`
}

// DefaultConfig returns 200 iterations, tolerance 1e-8 and no stall detection.
//
// A failed Pulay solve ends the run with an error even when the iterate is
// already close. DIIS on the default meanfield problem hits that at a change
// of about 1.4e-8, just above this tolerance; raise Tolerance or use linear
// damping there.
func DefaultConfig() Config {
	return Config{
		MaxIterations:  200,
		Tolerance:      1e-8,
		StallThreshold: 0.001,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.MaxIterations < 1:
		return fmt.Errorf("%w: max iterations must be positive, got %d", ErrInvalidConfig, c.MaxIterations)
	case math.IsNaN(c.Tolerance) || math.IsInf(c.Tolerance, 0) || c.Tolerance < 0:
		return fmt.Errorf("%w: tolerance must be finite and non-negative, got %v", ErrInvalidConfig, c.Tolerance)
	case c.Patience < 0:
		return fmt.Errorf("%w: patience must not be negative, got %d", ErrInvalidConfig, c.Patience)
	case math.IsNaN(c.StallThreshold) || c.StallThreshold < 0:
		return fmt.Errorf("%w: stall threshold must be non-negative, got %v", ErrInvalidConfig, c.StallThreshold)
	}
	return nil
}

// Step describes one accepted iteration.
type Step struct {
	Iteration  int           `json:"iteration"`
	Change     float64       `json:"change"`
	Measure    float64       `json:"measure"`
	HistoryLen int           `json:"historyLen"`
	Restarted  bool          `json:"restarted,omitempty"`
	Elapsed    time.Duration `json:"elapsed"`

	// X is the accepted iterate. It is shared with the driver and must not
	// be modified.
	X *array.Array `json:"-"`
}

// Observer is called after every accepted step.
type Observer func(Step)

// Result is the outcome of Run.
type Result struct {
	X           *array.Array
	Iterations  int
	Converged   bool
	Stalled     bool
	FinalChange float64
	Restarts    int
	Trace       []Step
}

// StepError reports the iteration at which the accelerator failed.
type StepError struct {
	Iteration int
	Err       error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("driver: step %d: %v", e.Iteration, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

type historyLener interface{ HistoryLen() int }

type restartCounter interface{ Restarts() int }

// Run iterates a on p starting from x0 until the change between successive
// iterates drops below cfg.Tolerance, the run stalls, cfg.MaxIterations is
// reached or ctx is cancelled.
//
// On error the returned Result still describes every step accepted before
// the failure.
func Run(ctx context.Context, p accel.Problem, a accel.Accelerator, x0 *array.Array, cfg Config, observers ...Observer) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if x0 == nil {
		return nil, fmt.Errorf("%w: no initial iterate", ErrInvalidConfig)
	}

	state := accel.NewState(x0)
	tracker := NewStallTracker(cfg.Patience, cfg.StallThreshold)
	res := &Result{X: state.Input, FinalChange: math.Inf(1)}
	restartsAt := restartsOf(a)
	start := time.Now()

	slog.Debug("Starting iteration",
		"method", a.Name(),
		"shape", x0.Shape(),
		"max_iterations", cfg.MaxIterations,
		"tolerance", cfg.Tolerance,
	)

	for i := 1; i <= cfg.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		before := restartsOf(a)
		next, err := a.Advance(p, state)
		if err != nil {
			return res, &StepError{Iteration: i, Err: err}
		}
		if !next.IsFinite() {
			return res, &StepError{Iteration: i, Err: ErrDiverged}
		}

		step := Step{
			Iteration:  i,
			Change:     next.MaxAbsDiff(state.Input),
			Measure:    accel.ErrorMeasure(state.Input, next),
			HistoryLen: historyLenOf(a),
			Restarted:  restartsOf(a) > before,
			Elapsed:    time.Since(start),
			X:          next,
		}
		state.Input = next

		res.X = next
		res.Iterations = i
		res.FinalChange = step.Change
		res.Restarts = restartsOf(a) - restartsAt
		res.Trace = append(res.Trace, step)
		for _, obs := range observers {
			obs(step)
		}

		if step.Change < cfg.Tolerance {
			res.Converged = true
			slog.Debug("Iteration converged",
				"method", a.Name(),
				"iterations", i,
				"change", step.Change,
				"restarts", res.Restarts,
			)
			return res, nil
		}
		if tracker.Update(step.Change) {
			res.Stalled = true
			return res, nil
		}
	}

	slog.Debug("Iteration limit reached",
		"method", a.Name(),
		"iterations", res.Iterations,
		"change", res.FinalChange,
	)
	return res, nil
}

func historyLenOf(a accel.Accelerator) int {
	if h, ok := a.(historyLener); ok {
		return h.HistoryLen()
	}
	return 0
}

func restartsOf(a accel.Accelerator) int {
	if r, ok := a.(restartCounter); ok {
		return r.Restarts()
	}
	return 0
}
