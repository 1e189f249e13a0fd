package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/cuongbtq/simulation-jobs/internal/domain"
)

// processMessage submits one job to the gateway. Every failure is handled
// here so siblings in the batch are unaffected.
func (w *Worker) processMessage(ctx context.Context, msg domain.QueueMessage) {
	logger := w.logger.With(slog.String("job_id", msg.JobID))

	job, err := w.store.Get(ctx, msg.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			logger.Warn("Dropping message for unknown job")
			w.metrics.message(outcomeDropped)
			return
		}
		w.requeue(ctx, msg, err)
		return
	}

	// Redelivered message for a job that already has a compute handle
	if job.Status == domain.JobStatusRunning || job.Status.IsTerminal() {
		logger.Info("Job already submitted, skipping",
			slog.String("status", job.Status.String()),
		)
		w.metrics.message(outcomeSkipped)
		return
	}

	params := msg.Params()
	if err := params.Validate(); err != nil {
		logger.Warn("Rejecting job with invalid parameters", slog.Any("error", err))
		w.fail(ctx, msg, err.Error())
		return
	}

	handle, err := w.gateway.Submit(ctx, job.JobID, params)
	if err != nil {
		logger.Error("Failed to submit job", slog.Any("error", err))
		w.fail(ctx, msg, err.Error())
		return
	}

	w.markRunning(ctx, job.JobID, handle)
}

// fail records a submission-phase failure. On a store error the message is
// requeued; nothing was created on the gateway, so retrying is safe.
func (w *Worker) fail(ctx context.Context, msg domain.QueueMessage, reason string) {
	_, err := w.store.Transition(ctx, msg.JobID, domain.JobStatusFailed, domain.TransitionFields{
		ErrorMessage: reason,
		CompletedAt:  w.clock.Now(),
	})
	switch {
	case err == nil:
		w.metrics.message(outcomeFailed)
	case errors.Is(err, domain.ErrIllegalTransition), errors.Is(err, domain.ErrJobNotFound):
		w.logger.Warn("Job changed state before failure was recorded",
			slog.String("job_id", msg.JobID),
			slog.Any("error", err),
		)
		w.metrics.message(outcomeSkipped)
	default:
		w.requeue(ctx, msg, err)
	}
}

// markRunning records the compute handle. The compute job already exists,
// so store errors are retried in place rather than resubmitting.
func (w *Worker) markRunning(ctx context.Context, jobID, handle string) {
	logger := w.logger.With(
		slog.String("job_id", jobID),
		slog.String("handle", handle),
	)

	record := func() error {
		_, err := w.store.Transition(ctx, jobID, domain.JobStatusRunning, domain.TransitionFields{
			ExternalHandle: handle,
			StartedAt:      w.clock.Now(),
		})
		if err == nil || errors.Is(err, domain.ErrStore) {
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, next time.Duration) {
		logger.Warn("Failed to record submission, retrying",
			slog.Duration("retry_after", next),
			slog.Any("error", err),
		)
	}

	policy := backoff.WithContext(w.newBackOff(), ctx)
	if err := backoff.RetryNotify(record, policy, notify); err != nil {
		if errors.Is(err, domain.ErrIllegalTransition) {
			logger.Warn("Job left QUEUED before submission was recorded", slog.Any("error", err))
			w.metrics.message(outcomeSkipped)
			return
		}
		logger.Error("Failed to record submission, compute job is untracked", slog.Any("error", err))
		w.metrics.message(outcomeStranded)
		return
	}

	logger.Info("Job submitted")
	w.metrics.message(outcomeSubmitted)
}
