// Package artifact reads simulation outputs from object storage.
package artifact

import (
	"context"
	"errors"
)

// ErrNotFound is returned when the requested object does not exist
var ErrNotFound = errors.New("artifact not found")

// Fetcher retrieves an artifact by key
type Fetcher interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// LogKey returns the object key of a job's run log
func LogKey(jobID string) string {
	return jobID + "-results/" + jobID + ".run.log"
}
