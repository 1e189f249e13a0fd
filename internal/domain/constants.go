package domain

// JobStatus is the lifecycle state of a simulation job
type JobStatus string

// Job status constants
const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusQueued    JobStatus = "QUEUED"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
)

// Default simulation parameters applied by the submission path
const (
	DefaultDuration      = 1000
	DefaultTemperature   = 0.8
	DefaultFrameInterval = 100
)

// UnknownFailureReason is recorded when the gateway reports a failure without a reason
const UnknownFailureReason = "Unknown error"

// ParseJobStatus converts a string into a JobStatus
func ParseJobStatus(s string) (JobStatus, bool) {
	switch st := JobStatus(s); st {
	case JobStatusPending, JobStatusQueued, JobStatusRunning, JobStatusCompleted, JobStatusFailed:
		return st, true
	default:
		return "", false
	}
}

// IsTerminal reports whether no further transition is possible
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

func (s JobStatus) String() string {
	return string(s)
}
