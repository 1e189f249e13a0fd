package domain

import (
	"errors"
	"time"
)

// ErrMissingHandle is returned when a job enters RUNNING without an external handle
var ErrMissingHandle = errors.New("external handle is required to enter RUNNING")

// successors lists the legal next states of each status. Terminal states have none.
var successors = map[JobStatus][]JobStatus{
	JobStatusPending: {JobStatusQueued, JobStatusRunning, JobStatusFailed},
	JobStatusQueued:  {JobStatusRunning, JobStatusFailed},
	JobStatusRunning: {JobStatusCompleted, JobStatusFailed},
}

// CanTransition reports whether to is a legal successor of from
func CanTransition(from, to JobStatus) bool {
	for _, s := range successors[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Predecessors returns every status from which target may be entered
func Predecessors(target JobStatus) []JobStatus {
	var out []JobStatus
	for _, from := range []JobStatus{JobStatusPending, JobStatusQueued, JobStatusRunning} {
		if CanTransition(from, target) {
			out = append(out, from)
		}
	}
	return out
}

// TransitionFields carries the values persisted alongside a transition.
// Only the fields valid for the target status are applied.
type TransitionFields struct {
	ExternalHandle string
	StartedAt      time.Time
	CompletedAt    time.Time
	Metrics        *Metrics
	ErrorMessage   string
}

// ForTarget drops the fields that are not valid for target and fills
// missing timestamps with now.
func (f TransitionFields) ForTarget(target JobStatus, now time.Time) TransitionFields {
	var out TransitionFields
	switch target {
	case JobStatusRunning:
		out.ExternalHandle = f.ExternalHandle
		out.StartedAt = f.StartedAt
		if out.StartedAt.IsZero() {
			out.StartedAt = now
		}
	case JobStatusCompleted:
		out.Metrics = f.Metrics
		if out.Metrics == nil {
			out.Metrics = &Metrics{}
		}
		out.CompletedAt = f.CompletedAt
		if out.CompletedAt.IsZero() {
			out.CompletedAt = now
		}
	case JobStatusFailed:
		out.ErrorMessage = f.ErrorMessage
		out.CompletedAt = f.CompletedAt
		if out.CompletedAt.IsZero() {
			out.CompletedAt = now
		}
	}
	return out
}

// Apply moves the job to target, setting the fields valid for it.
// The job is left untouched when the transition is rejected.
func (j *Job) Apply(target JobStatus, fields TransitionFields, now time.Time) error {
	if !CanTransition(j.Status, target) {
		return &TransitionError{JobID: j.JobID, From: j.Status, To: target}
	}

	f := fields.ForTarget(target, now)
	if target == JobStatusRunning && f.ExternalHandle == "" {
		return ErrMissingHandle
	}

	switch target {
	case JobStatusRunning:
		started := notBefore(f.StartedAt, j.CreatedAt)
		j.ExternalHandle = f.ExternalHandle
		j.StartedAt = &started
	case JobStatusCompleted:
		completed := notBefore(f.CompletedAt, j.lastTimestamp())
		j.Metrics = f.Metrics
		j.CompletedAt = &completed
	case JobStatusFailed:
		completed := notBefore(f.CompletedAt, j.lastTimestamp())
		j.ErrorMessage = f.ErrorMessage
		j.CompletedAt = &completed
	}

	j.Status = target
	j.UpdatedAt = now
	return nil
}

func (j *Job) lastTimestamp() time.Time {
	if j.StartedAt != nil {
		return *j.StartedAt
	}
	return j.CreatedAt
}

func notBefore(t, floor time.Time) time.Time {
	if t.Before(floor) {
		return floor
	}
	return t
}
