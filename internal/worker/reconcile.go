package worker

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cuongbtq/simulation-jobs/internal/artifact"
	"github.com/cuongbtq/simulation-jobs/internal/domain"
	"github.com/cuongbtq/simulation-jobs/internal/gateway"
	"github.com/cuongbtq/simulation-jobs/internal/logparser"
)

// reconcileRunning polls the gateway for every RUNNING job. Only a failure
// to list the store is returned.
func (w *Worker) reconcileRunning(ctx context.Context) error {
	jobs, err := w.store.ListByStatus(ctx, domain.JobStatusRunning)
	if err != nil {
		return err
	}

	w.metrics.runningJobs.Set(float64(len(jobs)))
	if len(jobs) > 0 {
		w.logger.Debug("Reconciling running jobs", slog.Int("count", len(jobs)))
	}

	for _, job := range jobs {
		if ctx.Err() != nil {
			return nil
		}
		w.reconcileJob(ctx, job)
	}
	return nil
}

func (w *Worker) reconcileJob(ctx context.Context, job *domain.Job) {
	logger := w.logger.With(
		slog.String("job_id", job.JobID),
		slog.String("handle", job.ExternalHandle),
	)

	if job.ExternalHandle == "" {
		logger.Warn("Running job has no compute handle")
		w.metrics.reconcile(outcomeLookup)
		return
	}

	desc, err := w.gateway.Describe(ctx, job.ExternalHandle)
	if err != nil {
		logger.Warn("Failed to describe compute job", slog.Any("error", err))
		w.metrics.reconcile(outcomeLookup)
		return
	}

	switch desc.Status {
	case gateway.StatusCompleted:
		metrics := w.collectMetrics(ctx, job.JobID)
		w.finish(ctx, logger, job.JobID, domain.JobStatusCompleted, domain.TransitionFields{
			Metrics:     metrics,
			CompletedAt: w.clock.Now(),
		})

	case gateway.StatusFailed:
		reason := desc.Reason
		if reason == "" {
			reason = domain.UnknownFailureReason
		}
		w.finish(ctx, logger, job.JobID, domain.JobStatusFailed, domain.TransitionFields{
			ErrorMessage: reason,
			CompletedAt:  w.clock.Now(),
		})

	default:
		logger.Debug("Compute job still in progress",
			slog.String("code", desc.Code),
			slog.String("status", desc.Status.String()),
		)
		w.metrics.reconcile(outcomePending)
	}
}

// collectMetrics fetches and parses the run log. A missing or unreadable
// log yields empty metrics; it never fails the job.
func (w *Worker) collectMetrics(ctx context.Context, jobID string) *domain.Metrics {
	key := artifact.LogKey(jobID)

	body, err := w.fetcher.Fetch(ctx, key)
	if err != nil {
		level := slog.LevelError
		if errors.Is(err, artifact.ErrNotFound) {
			level = slog.LevelWarn
		}
		w.logger.Log(ctx, level, "Failed to fetch run log, completing without metrics",
			slog.String("job_id", jobID),
			slog.String("key", key),
			slog.Any("error", err),
		)
		return &domain.Metrics{}
	}

	metrics := logparser.Parse(string(body))
	if metrics.IsEmpty() {
		w.logger.Warn("Run log contained no metrics",
			slog.String("job_id", jobID),
			slog.Int("bytes", len(body)),
		)
	}
	return &metrics
}

func (w *Worker) finish(ctx context.Context, logger *slog.Logger, jobID string, target domain.JobStatus, fields domain.TransitionFields) {
	_, err := w.store.Transition(ctx, jobID, target, fields)
	switch {
	case err == nil:
		logger.Info("Job finished", slog.String("status", target.String()))
		if target == domain.JobStatusCompleted {
			w.metrics.reconcile(outcomeCompleted)
		} else {
			w.metrics.reconcile(outcomeFailed)
		}
	case errors.Is(err, domain.ErrIllegalTransition):
		logger.Info("Job already left RUNNING, ignoring", slog.Any("error", err))
		w.metrics.reconcile(outcomeConflict)
	default:
		logger.Error("Failed to record job outcome, retrying next cycle",
			slog.String("status", target.String()),
			slog.Any("error", err),
		)
		w.metrics.reconcile(outcomeStoreErr)
	}
}
