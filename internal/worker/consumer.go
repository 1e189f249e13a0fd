package worker

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/simulation-jobs/internal/domain"
)

// submitQueued drains the queue and submits every message in arrival order
func (w *Worker) submitQueued(ctx context.Context) {
	batch, err := w.queue.DequeueAll(ctx)
	if err != nil {
		w.logger.Error("Failed to drain work queue", slog.Any("error", err))
		return
	}
	if len(batch) == 0 {
		return
	}

	w.logger.Debug("Drained work queue", slog.Int("messages", len(batch)))

	for _, body := range batch {
		msg, err := domain.DecodeQueueMessage(body)
		if err != nil {
			w.logger.Warn("Dropping malformed queue message",
				slog.String("body", truncate(body, 256)),
				slog.Any("error", err),
			)
			w.metrics.message(outcomeDropped)
			continue
		}

		w.processMessage(ctx, msg)
	}
}

// requeue puts msg back so the next cycle retries it
func (w *Worker) requeue(ctx context.Context, msg domain.QueueMessage, cause error) {
	if err := w.queue.Enqueue(ctx, msg); err != nil {
		w.logger.Error("Failed to requeue message, job left for manual recovery",
			slog.String("job_id", msg.JobID),
			slog.Any("cause", cause),
			slog.Any("error", err),
		)
		w.metrics.message(outcomeStranded)
		return
	}

	w.logger.Warn("Message requeued for next cycle",
		slog.String("job_id", msg.JobID),
		slog.Any("cause", cause),
	)
	w.metrics.message(outcomeRequeued)
}

func truncate(body []byte, n int) string {
	if len(body) > n {
		return string(body[:n]) + "..."
	}
	return string(body)
}
