// Package gateway submits simulations to the external compute service and
// reports their progress.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/cuongbtq/simulation-jobs/internal/domain"
)

var (
	// ErrSubmission matches every *SubmissionError
	ErrSubmission = errors.New("compute submission failed")
	// ErrLookup matches every *LookupError
	ErrLookup = errors.New("compute lookup failed")
)

// Status is the gateway-independent state of a submitted job
type Status int

const (
	StatusUnknown Status = iota
	StatusQueued
	StatusRunning
	StatusCompleted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MapStatus maps a raw compute status code onto Status. Unrecognized codes
// map to StatusUnknown.
func MapStatus(code string) Status {
	switch code {
	case "SUBMITTED", "PENDING", "RUNNABLE":
		return StatusQueued
	case "STARTING", "RUNNING":
		return StatusRunning
	case "SUCCEEDED":
		return StatusCompleted
	case "FAILED":
		return StatusFailed
	default:
		return StatusUnknown
	}
}

// Description is a point-in-time report on a submitted job
type Description struct {
	Handle string
	Code   string
	Status Status
	Reason string
}

// Gateway is the compute service
type Gateway interface {
	// Submit starts the simulation and returns the opaque handle
	Submit(ctx context.Context, jobID string, params domain.Params) (string, error)

	// Describe reports the status of a previously submitted job
	Describe(ctx context.Context, handle string) (*Description, error)
}

// SubmissionError reports a rejected or failed submission
type SubmissionError struct {
	JobID string
	Err   error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("failed to submit job %s: %v", e.JobID, e.Err)
}

func (e *SubmissionError) Unwrap() []error {
	return []error{ErrSubmission, e.Err}
}

// LookupError reports a failed status query
type LookupError struct {
	Handle string
	Err    error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("failed to describe compute job %s: %v", e.Handle, e.Err)
}

func (e *LookupError) Unwrap() []error {
	return []error{ErrLookup, e.Err}
}
