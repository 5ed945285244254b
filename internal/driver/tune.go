package driver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/cwbudde/convaccel/internal/accel"
	"github.com/cwbudde/convaccel/internal/opt"
	"github.com/cwbudde/convaccel/internal/problems"
)

// TuneConfig bounds the DIIS parameter search.
type TuneConfig struct {
	// Run is the driver configuration used for every trial
	Run Config

	// MaxDepth and MaxRestart bound the integer parameters (inclusive)
	MaxDepth   int
	MaxRestart int

	// MinEta is the smallest mixing fraction tried; the upper end is 1
	MinEta float64

	// FullSubspace is passed through to every trial
	FullSubspace bool
}

// DefaultTuneConfig searches eta in [0.05,1], depth in [1,8], restart in [1,20].
func DefaultTuneConfig() TuneConfig {
	run := DefaultConfig()
	run.MaxIterations = 100
	return TuneConfig{
		Run:        run,
		MaxDepth:   8,
		MaxRestart: 20,
		MinEta:     0.05,
	}
}

// TuneResult is the best configuration found by Tune.
type TuneResult struct {
	Config      accel.Config
	Iterations  int
	Converged   bool
	Evaluations int
}

// Tune searches DIIS parameters that minimise the number of iterations
// needed to converge spec. Trials that fail or do not converge cost
// 2·MaxIterations.
//
// The optimiser works on the unit cube; each coordinate is rescaled to one
// of eta, depth and restart.
func Tune(ctx context.Context, spec problems.Spec, optimizer opt.Optimizer, cfg TuneConfig) (*TuneResult, error) {
	if err := cfg.Run.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxDepth < 1 || cfg.MaxRestart < 1 {
		return nil, fmt.Errorf("%w: max depth and max restart must be positive", ErrInvalidConfig)
	}
	if !(cfg.MinEta > 0 && cfg.MinEta <= 1) {
		return nil, fmt.Errorf("%w: min eta must lie in (0,1], got %v", ErrInvalidConfig, cfg.MinEta)
	}
	p, err := spec.Build()
	if err != nil {
		return nil, err
	}
	x0 := spec.InitialGuess()
	penalty := float64(2 * cfg.Run.MaxIterations)
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	evaluations := 0
	eval := func(u []float64) float64 {
		evaluations++
		if ctx.Err() != nil {
			return penalty
		}
		ac := cfg.decode(u)
		a, err := accel.NewWithLogger(ac, quiet)
		if err != nil {
			return penalty
		}
		res, err := Run(ctx, p, a, x0, cfg.Run)
		if err != nil || !res.Converged {
			return penalty
		}
		return float64(res.Iterations)
	}

	slog.Info("Starting parameter search", "problem", spec.Description())

	best, cost, err := optimizer.Run(eval, []float64{0, 0, 0}, []float64{1, 1, 1}, 3)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &TuneResult{
		Config:      cfg.decode(best),
		Iterations:  int(cost),
		Converged:   cost < penalty,
		Evaluations: evaluations,
	}
	slog.Info("Parameter search complete",
		"eta", result.Config.Eta,
		"depth", result.Config.Depth,
		"restart", result.Config.Restart,
		"iterations", result.Iterations,
		"evaluations", evaluations,
	)
	return result, nil
}

// decode maps a point of the unit cube to a DIIS configuration.
func (c TuneConfig) decode(u []float64) accel.Config {
	return accel.Config{
		Method:       accel.MethodDIIS,
		Eta:          c.MinEta + (1-c.MinEta)*clamp01(u[0]),
		Depth:        1 + bucket(u[1], c.MaxDepth),
		Restart:      1 + bucket(u[2], c.MaxRestart),
		FullSubspace: c.FullSubspace,
	}
}

func bucket(u float64, n int) int {
	i := int(math.Floor(clamp01(u) * float64(n)))
	if i >= n {
		i = n - 1
	}
	return i
}

func clamp01(u float64) float64 {
	if math.IsNaN(u) {
		return 0
	}
	return math.Max(0, math.Min(1, u))
}
