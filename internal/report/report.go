// Package report renders the convergence history of a run, either as a
// static image or as an interactive HTML chart.
package report

import (
	"errors"
	"math"

	"github.com/cwbudde/convaccel/internal/driver"
)

// ErrEmptyTrace is returned when there are no steps to draw.
var ErrEmptyTrace = errors.New("report: empty trace")

// floor replaces non-positive values so they can be drawn on a log axis.
// It is one decade below the smallest positive value in the series.
func floor(values []float64) float64 {
	min := math.Inf(1)
	for _, v := range values {
		if v > 0 && v < min {
			min = v
		}
	}
	if math.IsInf(min, 1) {
		return 1e-16
	}
	return min / 10
}

func clampLog(values []float64) []float64 {
	f := floor(values)
	out := make([]float64, len(values))
	for i, v := range values {
		if v > 0 && !math.IsInf(v, 0) {
			out[i] = v
		} else {
			out[i] = f
		}
	}
	return out
}

func columns(steps []driver.Step) (change, measure []float64) {
	change = make([]float64, len(steps))
	measure = make([]float64, len(steps))
	for i, s := range steps {
		change[i] = s.Change
		measure[i] = s.Measure
	}
	return clampLog(change), clampLog(measure)
}
