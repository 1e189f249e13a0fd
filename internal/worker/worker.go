package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"

	"github.com/cuongbtq/simulation-jobs/internal/artifact"
	"github.com/cuongbtq/simulation-jobs/internal/gateway"
	"github.com/cuongbtq/simulation-jobs/internal/jobstore"
	"github.com/cuongbtq/simulation-jobs/internal/queue"
)

// ErrStoreUnavailable is returned by Start once the job store has failed
// for MaxStoreFailures consecutive cycles
var ErrStoreUnavailable = errors.New("job store unavailable")

const (
	DefaultPollInterval      = 2 * time.Second
	DefaultReconcileInterval = 10 * time.Second
	DefaultMaxStoreFailures  = 5
	DefaultRecordTimeout     = 10 * time.Second
)

// Config holds worker configuration
type Config struct {
	Logger  *slog.Logger
	Store   jobstore.Store
	Queue   queue.Queue
	Gateway gateway.Gateway
	Fetcher artifact.Fetcher
	Metrics *Metrics
	Clock   clock.Clock

	PollInterval      time.Duration
	ReconcileInterval time.Duration
	MaxStoreFailures  int

	// RecordTimeout bounds the retries spent recording a successful
	// submission. The loop is blocked while they run.
	RecordTimeout time.Duration

	// NewBackOff builds the retry policy for recording a successful
	// submission. Defaults to exponential backoff capped at RecordTimeout.
	NewBackOff func() backoff.BackOff
}

// Worker drives jobs from the queue through the compute gateway to a
// terminal state. It runs a single loop; phases never overlap.
type Worker struct {
	logger  *slog.Logger
	store   jobstore.Store
	queue   queue.Queue
	gateway gateway.Gateway
	fetcher artifact.Fetcher
	metrics *Metrics
	clock   clock.Clock

	pollInterval      time.Duration
	reconcileInterval time.Duration
	maxStoreFailures  int
	recordTimeout     time.Duration
	newBackOff        func() backoff.BackOff

	lastReconcile time.Time
	reconciled    bool
	storeFailures int

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	w := &Worker{
		logger:            cfg.Logger,
		store:             cfg.Store,
		queue:             cfg.Queue,
		gateway:           cfg.Gateway,
		fetcher:           cfg.Fetcher,
		metrics:           cfg.Metrics,
		clock:             cfg.Clock,
		pollInterval:      cfg.PollInterval,
		reconcileInterval: cfg.ReconcileInterval,
		maxStoreFailures:  cfg.MaxStoreFailures,
		recordTimeout:     cfg.RecordTimeout,
		newBackOff:        cfg.NewBackOff,
		stopChan:          make(chan struct{}),
	}

	if w.logger == nil {
		w.logger = slog.Default()
	}
	if w.metrics == nil {
		w.metrics = NewMetrics(nil)
	}
	if w.clock == nil {
		w.clock = clock.New()
	}
	if w.pollInterval <= 0 {
		w.pollInterval = DefaultPollInterval
	}
	if w.reconcileInterval <= 0 {
		w.reconcileInterval = DefaultReconcileInterval
	}
	if w.maxStoreFailures <= 0 {
		w.maxStoreFailures = DefaultMaxStoreFailures
	}
	if w.recordTimeout <= 0 {
		w.recordTimeout = DefaultRecordTimeout
	}
	if w.newBackOff == nil {
		w.newBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = w.recordTimeout
			return b
		}
	}
	return w
}

// Start runs the loop until ctx is canceled or Stop is called. It returns
// ErrStoreUnavailable when the job store stays unreachable.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.Duration("poll_interval", w.pollInterval),
		slog.Duration("reconcile_interval", w.reconcileInterval),
		slog.Int("max_store_failures", w.maxStoreFailures),
		slog.Duration("record_timeout", w.recordTimeout),
	)

	ticker := w.clock.Ticker(w.pollInterval)
	defer ticker.Stop()

	for {
		if err := w.RunCycle(ctx); err != nil {
			w.logger.Error("Worker stopping", slog.Any("error", err))
			return err
		}

		select {
		case <-ctx.Done():
			w.logger.Info("Worker context canceled, stopping...")
			return nil
		case <-w.stopChan:
			w.logger.Info("Worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Stop makes Start return after the current cycle
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("Stopping worker...")
		close(w.stopChan)
	})
}

// RunCycle runs one outer iteration: submission always, reconciliation
// when the reconcile interval has elapsed since it last listed the store.
// Per-job failures are absorbed; only persistent store unavailability is
// returned.
func (w *Worker) RunCycle(ctx context.Context) error {
	start := w.clock.Now()
	w.submitQueued(ctx)
	w.metrics.observePhase("submit", w.clock.Since(start).Seconds())

	if w.reconciled && w.clock.Since(w.lastReconcile) < w.reconcileInterval {
		return nil
	}

	start = w.clock.Now()
	err := w.reconcileRunning(ctx)
	w.metrics.observePhase("reconcile", w.clock.Since(start).Seconds())

	if err != nil {
		w.storeFailures++
		w.metrics.setStoreFailures(w.storeFailures)
		w.logger.Error("Failed to list running jobs",
			slog.Int("consecutive_failures", w.storeFailures),
			slog.Int("max_store_failures", w.maxStoreFailures),
			slog.Any("error", err),
		)
		if w.storeFailures >= w.maxStoreFailures {
			return fmt.Errorf("%w after %d consecutive failures: %w", ErrStoreUnavailable, w.storeFailures, err)
		}
		return nil
	}

	if w.storeFailures > 0 {
		w.logger.Info("Job store recovered", slog.Int("failed_cycles", w.storeFailures))
	}
	w.storeFailures = 0
	w.metrics.setStoreFailures(0)
	w.lastReconcile = start
	w.reconciled = true
	return nil
}
