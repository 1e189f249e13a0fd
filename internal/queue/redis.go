package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis"

	"github.com/cuongbtq/simulation-jobs/internal/domain"
)

// RedisQueue stores messages in a Redis list
type RedisQueue struct {
	client *redis.Client
	key    string
	logger *slog.Logger
}

// NewRedisQueue creates a RedisQueue over the list at key
func NewRedisQueue(client *redis.Client, key string, logger *slog.Logger) *RedisQueue {
	return &RedisQueue{
		client: client,
		key:    key,
		logger: logger,
	}
}

// Enqueue implements Queue
func (q *RedisQueue) Enqueue(ctx context.Context, msg domain.QueueMessage) error {
	body, err := encode(msg)
	if err != nil {
		return err
	}

	if err := q.client.WithContext(ctx).RPush(q.key, body).Err(); err != nil {
		return fmt.Errorf("failed to push message to redis list %s: %w", q.key, err)
	}

	q.logger.Debug("Message enqueued",
		slog.String("job_id", msg.JobID),
		slog.String("key", q.key),
	)
	return nil
}

// DequeueAll implements Queue. LRANGE and DEL run inside MULTI/EXEC, so two
// consumers can never drain the same message and a concurrent RPUSH is
// ordered either before or after the whole transaction.
func (q *RedisQueue) DequeueAll(ctx context.Context) ([][]byte, error) {
	var lrange *redis.StringSliceCmd

	_, err := q.client.WithContext(ctx).TxPipelined(func(pipe redis.Pipeliner) error {
		lrange = pipe.LRange(q.key, 0, -1)
		pipe.Del(q.key)
		return nil
	})
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to drain redis list %s: %w", q.key, err)
	}

	values := lrange.Val()
	batch := make([][]byte, 0, len(values))
	for _, v := range values {
		batch = append(batch, []byte(v))
	}

	if len(batch) > 0 {
		q.logger.Debug("Drained messages",
			slog.Int("count", len(batch)),
			slog.String("key", q.key),
		)
	}
	return batch, nil
}
