// Package store persists finished and interrupted convergence runs so they
// can be listed, inspected and resumed later.
package store

// Store defines the interface for run persistence operations.
// Implementations must be safe for concurrent use.
//
// Load and Delete return an error matching ErrNotFound when the run does
// not exist. Other failures are wrapped with context.
type Store interface {
	// SaveRecord atomically saves the record for runID, replacing any
	// previous record.
	SaveRecord(runID string, record *RunRecord) error

	// LoadRecord retrieves the record for runID.
	LoadRecord(runID string) (*RunRecord, error)

	// ListRecords returns metadata for every stored run.
	ListRecords() ([]RunInfo, error)

	// DeleteRecord removes the record and every artifact of runID,
	// including its trace.
	DeleteRecord(runID string) error
}

// ErrNotFound is returned when a requested run does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing run.
type NotFoundError struct {
	RunID string
}

func (e *NotFoundError) Error() string {
	if e.RunID != "" {
		return "run not found: " + e.RunID
	}
	return "run not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
