package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/simulation-jobs/internal/jobstore"
	"github.com/cuongbtq/simulation-jobs/internal/queue"
)

// HealthChecker reports whether a dependency is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger *slog.Logger
	Store  jobstore.Store
	Queue  queue.Queue
	// Checks are consulted by /health, keyed by dependency name
	Checks map[string]HealthChecker
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger *slog.Logger
	store  jobstore.Store
	queue  queue.Queue
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger: deps.Logger,
		store:  deps.Store,
		queue:  deps.Queue,
	}
}
