package queue

import (
	"context"
	"sync"

	"github.com/cuongbtq/simulation-jobs/internal/domain"
)

// MemoryQueue is an in-process Queue
type MemoryQueue struct {
	mu    sync.Mutex
	items [][]byte
}

// NewMemoryQueue creates an empty MemoryQueue
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

// Enqueue implements Queue
func (q *MemoryQueue) Enqueue(_ context.Context, msg domain.QueueMessage) error {
	body, err := encode(msg)
	if err != nil {
		return err
	}
	q.Push(body)
	return nil
}

// Push appends a raw message body
func (q *MemoryQueue) Push(body []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, body)
}

// DequeueAll implements Queue
func (q *MemoryQueue) DequeueAll(_ context.Context) ([][]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	batch := q.items
	q.items = nil
	if batch == nil {
		batch = [][]byte{}
	}
	return batch, nil
}

// Len returns the number of queued messages
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
