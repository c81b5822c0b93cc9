package store

// Store defines the interface for persisting completed balancing runs.
// Implementations must be safe for concurrent use.
//
// Error handling conventions:
//   - Return nil error on success
//   - Return a *NotFoundError if the run doesn't exist (for Load/Delete)
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveRecord atomically saves the record of a completed run. An
	// existing record for the same run ID is overwritten. The
	// implementation should use atomic write strategies (e.g., temp
	// file + rename) to prevent corruption in case of failures.
	SaveRecord(runID string, record *Record) error

	// LoadRecord retrieves the record for the given run.
	// Returns a *NotFoundError if no record exists.
	LoadRecord(runID string) (*Record, error)

	// ListRecords returns metadata for all stored runs. The returned
	// slice may be empty.
	ListRecords() ([]RecordInfo, error)

	// DeleteRecord removes the record and all associated artifacts
	// (result.json, trace.jsonl) for the given run.
	// Returns a *NotFoundError if no record exists.
	DeleteRecord(runID string) error
}

// ErrNotFound is returned when a requested run does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing run record.
type NotFoundError struct {
	RunID string
}

func (e *NotFoundError) Error() string {
	if e.RunID != "" {
		return "run record not found: " + e.RunID
	}
	return "run record not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
