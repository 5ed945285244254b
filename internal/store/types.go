package store

import (
	"fmt"
	"time"

	"github.com/cwbudde/convaccel/internal/accel"
	"github.com/cwbudde/convaccel/internal/array"
	"github.com/cwbudde/convaccel/internal/driver"
	"github.com/cwbudde/convaccel/internal/problems"
)

// RunConfig is everything needed to start or resume a run.
type RunConfig struct {
	Problem       problems.Spec `json:"problem"`
	Accel         accel.Config  `json:"accel"`
	MaxIterations int           `json:"maxIterations"`
	Tolerance     float64       `json:"tolerance"`
	Patience      int           `json:"patience,omitempty"`
}

// DefaultRunConfig returns DIIS on the default affine problem.
func DefaultRunConfig() RunConfig {
	d := driver.DefaultConfig()
	return RunConfig{
		Problem:       problems.DefaultSpec(),
		Accel:         accel.DefaultConfig(),
		MaxIterations: d.MaxIterations,
		Tolerance:     d.Tolerance,
	}
}

// Driver returns the driver configuration of the run.
func (c RunConfig) Driver() driver.Config {
	d := driver.DefaultConfig()
	d.MaxIterations = c.MaxIterations
	d.Tolerance = c.Tolerance
	d.Patience = c.Patience
	return d
}

// Validate checks every part of the configuration.
func (c RunConfig) Validate() error {
	if err := c.Problem.Validate(); err != nil {
		return err
	}
	if err := c.Accel.Validate(); err != nil {
		return err
	}
	return c.Driver().Validate()
}

// RunRecord is the persisted outcome of a run. Accelerator history is not
// saved: a resumed run starts a fresh warm-up from Final.
type RunRecord struct {
	// RunID is the unique identifier of the run
	RunID string `json:"runId"`

	// Final is the last accepted iterate
	Final *array.Array `json:"final"`

	// Iterations is the total number of accepted steps, across resumes
	Iterations int `json:"iterations"`

	Converged   bool    `json:"converged"`
	FinalChange float64 `json:"finalChange"`
	Restarts    int     `json:"restarts"`

	// Timestamp records when this record was written
	Timestamp time.Time `json:"timestamp"`

	Config RunConfig `json:"config"`
}

// RunInfo is the listing view of a record, without the iterate.
type RunInfo struct {
	RunID       string    `json:"runId"`
	Problem     string    `json:"problem"`
	Method      string    `json:"method"`
	Iterations  int       `json:"iterations"`
	Converged   bool      `json:"converged"`
	FinalChange float64   `json:"finalChange"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewRunRecord creates a record from a driver result.
func NewRunRecord(runID string, res *driver.Result, config RunConfig) *RunRecord {
	return &RunRecord{
		RunID:       runID,
		Final:       res.X,
		Iterations:  res.Iterations,
		Converged:   res.Converged,
		FinalChange: res.FinalChange,
		Restarts:    res.Restarts,
		Timestamp:   time.Now(),
		Config:      config,
	}
}

// ToInfo converts a full RunRecord to RunInfo.
func (r *RunRecord) ToInfo() RunInfo {
	return RunInfo{
		RunID:       r.RunID,
		Problem:     r.Config.Problem.Name,
		Method:      r.Config.Accel.Method,
		Iterations:  r.Iterations,
		Converged:   r.Converged,
		FinalChange: r.FinalChange,
		Timestamp:   r.Timestamp,
	}
}

// Validate checks that the record can be resumed.
func (r *RunRecord) Validate() error {
	if r.RunID == "" {
		return &ValidationError{Field: "RunID", Reason: "cannot be empty"}
	}
	if r.Final == nil {
		return &ValidationError{Field: "Final", Reason: "cannot be nil"}
	}
	if !r.Final.IsFinite() {
		return &ValidationError{Field: "Final", Reason: "must be finite"}
	}
	if r.Iterations < 0 {
		return &ValidationError{Field: "Iterations", Reason: "cannot be negative"}
	}
	if r.Restarts < 0 {
		return &ValidationError{Field: "Restarts", Reason: "cannot be negative"}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if err := r.Config.Validate(); err != nil {
		return &ValidationError{Field: "Config", Reason: err.Error()}
	}
	want := r.Config.Problem.Shape()
	got := r.Final.Shape()
	if len(want) != len(got) {
		return &ValidationError{Field: "Final", Reason: fmt.Sprintf("shape %v does not match problem shape %v", got, want)}
	}
	for i := range want {
		if want[i] != got[i] {
			return &ValidationError{Field: "Final", Reason: fmt.Sprintf("shape %v does not match problem shape %v", got, want)}
		}
	}
	return nil
}

// ValidationError represents a record validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// IsCompatible checks that config describes the same problem as the record,
// so its final iterate is a valid starting point. The accelerator and the
// driver limits may differ.
func (r *RunRecord) IsCompatible(config RunConfig) error {
	have, want := r.Config.Problem, config.Problem
	checks := []struct {
		field         string
		expected, got any
	}{
		{"Problem.Name", have.Name, want.Name},
		{"Problem.Size", have.Size, want.Size},
		{"Problem.Dims", len(have.Shape()), len(want.Shape())},
		{"Problem.Slope", have.Slope, want.Slope},
		{"Problem.Offset", have.Offset, want.Offset},
		{"Problem.Beta", have.Beta, want.Beta},
		{"Problem.Coupling", have.Coupling, want.Coupling},
		{"Problem.Field", have.Field, want.Field},
	}
	for _, c := range checks {
		if c.expected != c.got {
			return &CompatibilityError{
				Field:    c.field,
				Expected: fmt.Sprint(c.expected),
				Actual:   fmt.Sprint(c.got),
			}
		}
	}
	return nil
}

// CompatibilityError represents a resume compatibility error.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}
