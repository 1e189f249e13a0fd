// Package queue carries newly created jobs from the submission path to the
// worker. Delivery is at-least-once; consumers drain it with a destructive
// bulk pop on a fixed cadence instead of subscribing.
package queue

import (
	"context"
	"fmt"

	"github.com/cuongbtq/simulation-jobs/internal/domain"
)

// Backend names accepted by configuration
const (
	BackendRedis    = "redis"
	BackendRabbitMQ = "rabbitmq"
	BackendMemory   = "memory"
)

// Queue is the work queue between submission and the worker
type Queue interface {
	// Enqueue appends a message
	Enqueue(ctx context.Context, msg domain.QueueMessage) error

	// DequeueAll atomically removes and returns every message currently
	// visible, oldest first. An empty queue yields an empty batch. A message
	// enqueued concurrently either lands in this batch or stays for the next.
	DequeueAll(ctx context.Context) ([][]byte, error)
}

func encode(msg domain.QueueMessage) ([]byte, error) {
	body, err := msg.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode message for job %s: %w", msg.JobID, err)
	}
	return body, nil
}
