// Package jobstore persists simulation jobs and enforces their status
// state machine.
package jobstore

import (
	"context"
	"time"

	"github.com/cuongbtq/simulation-jobs/internal/domain"
)

// Store is the durable record of jobs and their transitions
type Store interface {
	// Create inserts a new job in PENDING
	Create(ctx context.Context, in domain.NewJob) (*domain.Job, error)

	// Get returns the job or domain.ErrJobNotFound
	Get(ctx context.Context, jobID string) (*domain.Job, error)

	// Transition moves the job to target if it is a legal successor of the
	// current status, persisting only the fields valid for target. Otherwise
	// it returns an error wrapping domain.ErrIllegalTransition and leaves the
	// job untouched.
	Transition(ctx context.Context, jobID string, target domain.JobStatus, fields domain.TransitionFields) (*domain.Job, error)

	// ListByStatus returns every job currently in status, oldest first
	ListByStatus(ctx context.Context, status domain.JobStatus) ([]*domain.Job, error)

	// List returns a page of jobs, newest first. It fetches up to
	// PageSize+1 rows so callers can detect a following page.
	List(ctx context.Context, filter ListFilter) ([]*domain.Job, error)
}

// ListFilter selects a page of jobs
type ListFilter struct {
	Status   domain.JobStatus
	PageSize int
	Cursor   *JobCursor
}

// JobCursor marks the last job of the previous page
type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}
