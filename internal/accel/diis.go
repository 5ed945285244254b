package accel

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/cwbudde/convaccel/internal/array"
	"gonum.org/v1/gonum/mat"
)

// DIIS accelerates a fixed-point iteration by Pulay extrapolation over the
// last depth raw iterates and their residuals.
//
// Until depth entries have been collected it behaves exactly like
// LinearDamping with the same eta while filling its history. From then on
// each step solves the bordered Pulay system for coefficients c (Σc_i = 1),
// and returns
//
//	x_new = eta*Σc_i r_i + Σc_i x_i
//
// If the drift measure of x_new exceeds restart times the smallest measure in
// the current window, the extrapolation is discarded: the raw iterate paired
// with that smallest measure is returned and the history is cleared, so the
// next call starts a fresh warm-up.
type DIIS struct {
	eta          float64
	depth        int
	restart      int
	fullSubspace bool
	logger       *slog.Logger

	iterates  *window[*array.Array]
	residuals *window[*array.Array]
	measures  *window[float64]

	restarts int
}

// DIISOption configures optional DIIS behaviour.
type DIISOption func(*DIIS)

// WithFullSubspace fills the whole depth×depth Gram block of the Pulay
// matrix. By default the oldest residual's row and column are left at the
// -1 border value, which keeps the system solvable when residuals are
// collinear (every one-dimensional problem) at the cost of excluding that
// residual from the least-squares fit.
//
// Every built-in problem starts from a uniform guess, so its residuals stay
// collinear and the full block goes singular: the solve fails with
// ErrLinearSolve once depth entries are held.
func WithFullSubspace() DIISOption {
	return func(d *DIIS) { d.fullSubspace = true }
}

// WithLogger sets the logger used for restart and phase messages.
func WithLogger(logger *slog.Logger) DIISOption {
	return func(d *DIIS) { d.logger = logger }
}

// NewDIIS creates a DIIS accelerator. eta must lie in (0, 1], depth and
// restart must be at least 1.
func NewDIIS(eta float64, depth, restart int, opts ...DIISOption) (*DIIS, error) {
	if err := checkEta(eta, false); err != nil {
		return nil, err
	}
	if depth < 1 {
		return nil, &ConfigError{Field: "depth", Reason: "must be at least 1"}
	}
	if restart < 1 {
		return nil, &ConfigError{Field: "restart", Reason: "must be at least 1"}
	}

	d := &DIIS{
		eta:       eta,
		depth:     depth,
		restart:   restart,
		logger:    slog.Default(),
		iterates:  newWindow[*array.Array](depth),
		residuals: newWindow[*array.Array](depth),
		measures:  newWindow[float64](depth),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Name implements Accelerator.
func (d *DIIS) Name() string { return MethodDIIS }

// HistoryLen returns the number of entries currently held in each history window.
func (d *DIIS) HistoryLen() int { return d.iterates.Len() }

// Restarts returns how many times the restart safeguard has fired.
func (d *DIIS) Restarts() int { return d.restarts }

// Reset clears the history so the next call starts a new warm-up.
func (d *DIIS) Reset() {
	d.iterates.Clear()
	d.residuals.Clear()
	d.measures.Clear()
}

// Advance implements Accelerator.
func (d *DIIS) Advance(p Problem, s *State) (*array.Array, error) {
	prev, curr, err := evaluate(p, s)
	if err != nil {
		return nil, err
	}
	if d.iterates.Len() < d.depth {
		return d.warmup(prev, curr), nil
	}
	return d.extrapolate(prev, curr)
}

func (d *DIIS) warmup(prev, curr *array.Array) *array.Array {
	out := curr.Mix(d.eta, prev)
	d.iterates.Push(curr)
	d.residuals.Push(curr.Sub(prev))
	d.measures.Push(ErrorMeasure(prev, out))

	if d.iterates.Full() {
		d.logger.Debug("DIIS history filled", "depth", d.depth)
	}
	return out
}

func (d *DIIS) extrapolate(prev, curr *array.Array) (*array.Array, error) {
	coef, err := d.coefficients()
	if err != nil {
		return nil, err
	}

	base := array.Zeros(prev.Shape()...)
	minRes := array.Zeros(prev.Shape()...)
	for i := 0; i < d.depth; i++ {
		base = base.AddScaled(coef[i], d.iterates.At(i))
		minRes = minRes.AddScaled(coef[i], d.residuals.At(i))
	}
	out := base.AddScaled(d.eta, minRes)

	// The fallback is picked before the windows rotate so that index i of
	// the measure window and of the iterate window describe the same step.
	best, minMeasure := d.bestMeasure()
	fallback := d.iterates.At(best)

	d.iterates.Push(curr)
	d.residuals.Push(curr.Sub(prev))

	measure := ErrorMeasure(prev, out)
	threshold := float64(d.restart) * minMeasure
	if math.IsNaN(measure) || measure > threshold {
		d.restarts++
		d.logger.Warn("DIIS restart: extrapolation drifted",
			"measure", measure,
			"threshold", threshold,
			"min_measure", minMeasure,
			"restarts", d.restarts,
		)
		d.Reset()
		return fallback.Clone(), nil
	}

	d.measures.Push(measure)
	return out, nil
}

// coefficients solves the bordered Pulay system
//
//	[ B  -1 ] [c] = [ 0]
//	[-1ᵀ  0 ] [λ]   [-1]
//
// where B holds residual dot products, and returns c.
func (d *DIIS) coefficients() ([]float64, error) {
	n := d.depth
	a := mat.NewDense(n+1, n+1, nil)
	for i := 0; i <= n; i++ {
		for j := 0; j <= n; j++ {
			a.Set(i, j, -1)
		}
	}
	a.Set(n, n, 0)

	first := 1
	if d.fullSubspace {
		first = 0
	}
	for i := first; i < n; i++ {
		ri := d.residuals.At(i)
		for j := i; j < n; j++ {
			v := ri.Dot(d.residuals.At(j))
			a.Set(i, j, v)
			a.Set(j, i, v)
		}
	}

	b := mat.NewVecDense(n+1, nil)
	b.SetVec(n, -1)

	var c mat.VecDense
	if err := c.SolveVec(a, b); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLinearSolve, err)
	}
	coef := make([]float64, n)
	for i := range coef {
		coef[i] = c.AtVec(i)
	}
	return coef, nil
}

// bestMeasure returns the index and value of the smallest entry in the
// measure window. Ties resolve to the oldest entry.
func (d *DIIS) bestMeasure() (int, float64) {
	best, min := 0, math.Inf(1)
	for i := 0; i < d.measures.Len(); i++ {
		if v := d.measures.At(i); v < min {
			best, min = i, v
		}
	}
	return best, min
}
