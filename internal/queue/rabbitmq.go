package queue

import (
	"context"
	"fmt"

	"github.com/cuongbtq/simulation-jobs/internal/domain"
)

// Broker is the subset of the RabbitMQ client used by RabbitQueue
type Broker interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
	Drain(ctx context.Context) ([][]byte, error)
}

// RabbitQueue publishes to a RabbitMQ exchange and drains the bound queue
type RabbitQueue struct {
	broker Broker
}

// NewRabbitQueue creates a RabbitQueue
func NewRabbitQueue(broker Broker) *RabbitQueue {
	return &RabbitQueue{broker: broker}
}

// Enqueue implements Queue
func (q *RabbitQueue) Enqueue(ctx context.Context, msg domain.QueueMessage) error {
	body, err := encode(msg)
	if err != nil {
		return err
	}

	if err := q.broker.PublishWithRetry(ctx, body, "application/json"); err != nil {
		return fmt.Errorf("failed to publish message for job %s: %w", msg.JobID, err)
	}
	return nil
}

// DequeueAll implements Queue
func (q *RabbitQueue) DequeueAll(ctx context.Context) ([][]byte, error) {
	batch, err := q.broker.Drain(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to drain rabbitmq queue: %w", err)
	}
	if batch == nil {
		batch = [][]byte{}
	}
	return batch, nil
}
