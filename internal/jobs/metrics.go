// Package jobmetrics instruments asynq handlers.
package jobmetrics

import (
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

// Metrics holds the job collectors. A nil registerer leaves them unregistered.
type Metrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	lowStock    prometheus.Gauge
	orphans     prometheus.Counter
	purged      prometheus.Counter
	now         func() time.Time
}

// NewMetrics registers the job collectors on registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{Namespace: "tutti", Subsystem: "jobs", Name: name, Help: help}
	}
	return &Metrics{
		runs: factory.NewCounterVec(prometheus.CounterOpts(opts("runs_total",
			"Job executions by task type and outcome.")), []string{"job", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tutti",
			Subsystem: "jobs",
			Name:      "duration_seconds",
			Help:      "Job execution time by task type.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"job"}),
		lastSuccess: factory.NewGaugeVec(prometheus.GaugeOpts(opts("last_success_timestamp_seconds",
			"Unix time of the last successful run per task type.")), []string{"job"}),
		lowStock: factory.NewGauge(prometheus.GaugeOpts(opts("low_stock_items",
			"Warehouse items at or below their reorder point at the last scan."))),
		orphans: factory.NewCounter(prometheus.CounterOpts(opts("orphan_counts_total",
			"Stock count headers observed without any item rows."))),
		purged: factory.NewCounter(prometheus.CounterOpts(opts("idempotency_keys_purged_total",
			"Request idempotency keys removed by the cleanup job."))),
		now: time.Now,
	}
}

// Run is one in-flight job execution.
type Run struct {
	m       *Metrics
	job     string
	started time.Time
}

// Track starts timing job. Safe on a nil receiver.
func (m *Metrics) Track(job string) *Run {
	r := &Run{m: m, job: job}
	if m != nil {
		r.started = m.now()
	}
	return r
}

// End records the outcome and passes err through.
func (r *Run) End(err error) error {
	if r == nil || r.m == nil {
		return err
	}
	outcome := Outcome(err)
	r.m.runs.WithLabelValues(r.job, outcome).Inc()
	finished := r.m.now()
	r.m.duration.WithLabelValues(r.job).Observe(finished.Sub(r.started).Seconds())
	if outcome == OutcomeOK {
		r.m.lastSuccess.WithLabelValues(r.job).Set(float64(finished.Unix()))
	}
	return err
}

// Outcome classifies a handler result. SkipRetry marks input the job will never accept.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, asynq.SkipRetry):
		return OutcomeSkipped
	default:
		return OutcomeError
	}
}

// SetLowStock publishes the size of the last low-stock scan.
func (m *Metrics) SetLowStock(n int) {
	if m != nil {
		m.lowStock.Set(float64(n))
	}
}

// AddOrphanCounts records stock count headers found without items.
func (m *Metrics) AddOrphanCounts(n int) {
	if m != nil && n > 0 {
		m.orphans.Add(float64(n))
	}
}

// AddPurgedKeys records idempotency keys removed by cleanup.
func (m *Metrics) AddPurgedKeys(n int64) {
	if m != nil && n > 0 {
		m.purged.Add(float64(n))
	}
}
