package driver

import (
	"log/slog"
	"math"
)

// StallTracker watches the per-step change and reports when it has stopped
// shrinking. A step counts as progress when it improves on the last
// significant change by at least Threshold, relatively:
//
//	(lastSignificant - change) / lastSignificant >= Threshold
type StallTracker struct {
	patience        int
	threshold       float64
	steps           int
	best            float64
	lastSignificant float64
	staleCount      int
}

// NewStallTracker creates a tracker. A patience of 0 disables stall detection.
func NewStallTracker(patience int, threshold float64) *StallTracker {
	return &StallTracker{
		patience:        patience,
		threshold:       threshold,
		best:            math.Inf(1),
		lastSignificant: math.Inf(1),
	}
}

// Update records a change value and returns true once patience is exhausted.
func (s *StallTracker) Update(change float64) bool {
	if s.patience <= 0 {
		return false
	}

	s.steps++
	if change < s.best {
		s.best = change
	}

	if s.steps == 1 {
		s.lastSignificant = change
		return false
	}

	improvement := 0.0
	if s.lastSignificant > 0 {
		improvement = (s.lastSignificant - change) / s.lastSignificant
	}

	if improvement >= s.threshold && improvement > 0 {
		s.lastSignificant = change
		s.staleCount = 0
		return false
	}

	s.staleCount++
	slog.Debug("No significant change reduction",
		"change", change,
		"last_significant", s.lastSignificant,
		"relative_improvement", improvement,
		"stale_count", s.staleCount,
		"patience", s.patience,
	)
	if s.staleCount >= s.patience {
		slog.Info("Iteration stalled - stopping early",
			"stale_count", s.staleCount,
			"patience", s.patience,
			"best_change", s.best,
		)
		return true
	}
	return false
}
