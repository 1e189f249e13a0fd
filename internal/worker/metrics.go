package worker

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels
const (
	outcomeSubmitted = "submitted"
	outcomeFailed    = "failed"
	outcomeSkipped   = "skipped"
	outcomeDropped   = "dropped"
	outcomeRequeued  = "requeued"
	outcomeStranded  = "stranded"
	outcomeCompleted = "completed"
	outcomePending   = "pending"
	outcomeLookup    = "lookup_error"
	outcomeConflict  = "conflict"
	outcomeStoreErr  = "store_error"
)

// Metrics holds the worker's Prometheus collectors
type Metrics struct {
	messages         *prometheus.CounterVec
	reconciled       *prometheus.CounterVec
	cycleDuration    *prometheus.HistogramVec
	runningJobs      prometheus.Gauge
	storeUnavailable prometheus.Gauge
	storeFailures    prometheus.Gauge
}

// NewMetrics creates the worker collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "simjobs",
			Subsystem: "worker",
			Name:      "messages_total",
			Help:      "Queue messages handled by the submission phase, by outcome",
		}, []string{"outcome"}),
		reconciled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "simjobs",
			Subsystem: "worker",
			Name:      "reconciled_total",
			Help:      "Running jobs examined by the reconciliation phase, by outcome",
		}, []string{"outcome"}),
		cycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "simjobs",
			Subsystem: "worker",
			Name:      "phase_duration_seconds",
			Help:      "Duration of each worker phase",
			Buckets:   prometheus.DefBuckets,
		}, []string{"phase"}),
		runningJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "simjobs",
			Subsystem: "worker",
			Name:      "running_jobs",
			Help:      "Jobs in RUNNING at the last reconciliation",
		}),
		storeUnavailable: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "simjobs",
			Subsystem: "worker",
			Name:      "store_unavailable",
			Help:      "1 while the job store cannot be listed",
		}),
		storeFailures: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "simjobs",
			Subsystem: "worker",
			Name:      "store_consecutive_failures",
			Help:      "Consecutive cycles in which the job store could not be listed",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.messages,
			m.reconciled,
			m.cycleDuration,
			m.runningJobs,
			m.storeUnavailable,
			m.storeFailures,
		)
	}
	return m
}

func (m *Metrics) message(outcome string) {
	m.messages.WithLabelValues(outcome).Inc()
}

func (m *Metrics) reconcile(outcome string) {
	m.reconciled.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observePhase(phase string, seconds float64) {
	m.cycleDuration.WithLabelValues(phase).Observe(seconds)
}

func (m *Metrics) setStoreFailures(n int) {
	m.storeFailures.Set(float64(n))
	if n > 0 {
		m.storeUnavailable.Set(1)
	} else {
		m.storeUnavailable.Set(0)
	}
}
