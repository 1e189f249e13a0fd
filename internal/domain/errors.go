package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when a job cannot be found in the store
	ErrJobNotFound = errors.New("job not found")

	// ErrIllegalTransition is returned when the target status is not a legal successor
	ErrIllegalTransition = errors.New("illegal job status transition")

	// ErrInvalidMessage is returned when a queue message has no parseable job id
	ErrInvalidMessage = errors.New("invalid queue message")

	// ErrInvalidParams is returned when simulation parameters are out of range
	ErrInvalidParams = errors.New("invalid simulation parameters")

	// ErrStore wraps persistence failures of the job store
	ErrStore = errors.New("job store error")
)

// TransitionError describes a rejected status transition
type TransitionError struct {
	JobID string
	From  JobStatus
	To    JobStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("job %s: cannot transition from %s to %s", e.JobID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrIllegalTransition
}

// NewStoreError wraps err so that errors.Is(err, ErrStore) holds
func NewStoreError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}
