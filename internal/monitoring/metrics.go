package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SamplesIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ev_analytics_samples_ingested_total",
			Help: "Total number of telemetry samples accepted at the intake boundary",
		},
		[]string{"stream"},
	)

	SamplesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ev_analytics_samples_dropped_total",
			Help: "Total number of telemetry samples rejected at the intake boundary",
		},
		[]string{"stream", "reason"},
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ev_analytics_queue_depth",
			Help: "Number of entries in the durable queue stream (XLEN), acked entries included",
		},
		[]string{"stream"},
	)

	BatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ev_analytics_batch_size",
			Help:    "Number of samples written per batch",
			Buckets: []float64{1, 10, 50, 100, 250, 500, 1000, 2000},
		},
		[]string{"stream"},
	)

	BatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ev_analytics_batch_write_duration_seconds",
			Help:    "Wall time to write one batch transaction",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"stream"},
	)

	BatchTrigger = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ev_analytics_batch_trigger_total",
			Help: "Number of batches flushed, labeled by which trigger fired",
		},
		[]string{"stream", "trigger"},
	)

	BatchFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ev_analytics_batch_write_failures_total",
			Help: "Total number of batch write attempts that failed",
		},
		[]string{"stream"},
	)

	DeadLettersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ev_analytics_dead_letters_total",
			Help: "Total number of messages moved to the dead-letter stream after exhausting retries",
		},
		[]string{"stream"},
	)

	SessionOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ev_analytics_session_ops_total",
			Help: "Total number of session lifecycle operations",
		},
		[]string{"op", "result"},
	)

	SessionCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ev_analytics_session_cache_result_total",
			Help: "Session lookup cache hits and misses",
		},
		[]string{"result"},
	)
)

// Metrics gates all updates behind a single enabled flag, same as every
// other service in this fleet: metrics collection can be turned off without
// littering call sites with conditionals.
type Metrics struct {
	enabled bool
}

func New(enabled bool) *Metrics {
	return &Metrics{enabled: enabled}
}

func (m *Metrics) isEnabled() bool {
	return m.enabled
}

func (m *Metrics) RecordIngested(stream string, n int) {
	if !m.isEnabled() {
		return
	}
	SamplesIngestedTotal.WithLabelValues(stream).Add(float64(n))
}

func (m *Metrics) RecordDropped(stream, reason string) {
	if !m.isEnabled() {
		return
	}
	SamplesDroppedTotal.WithLabelValues(stream, reason).Inc()
}

func (m *Metrics) SetQueueDepth(stream string, depth int64) {
	if !m.isEnabled() {
		return
	}
	QueueDepth.WithLabelValues(stream).Set(float64(depth))
}

func (m *Metrics) RecordBatch(stream, trigger string, size int, duration time.Duration) {
	if !m.isEnabled() {
		return
	}
	BatchSize.WithLabelValues(stream).Observe(float64(size))
	BatchDuration.WithLabelValues(stream).Observe(duration.Seconds())
	BatchTrigger.WithLabelValues(stream, trigger).Inc()
}

func (m *Metrics) RecordBatchFailure(stream string) {
	if !m.isEnabled() {
		return
	}
	BatchFailuresTotal.WithLabelValues(stream).Inc()
}

func (m *Metrics) RecordDeadLetter(stream string, n int) {
	if !m.isEnabled() {
		return
	}
	DeadLettersTotal.WithLabelValues(stream).Add(float64(n))
}

func (m *Metrics) RecordSessionOp(op, result string) {
	if !m.isEnabled() {
		return
	}
	SessionOpsTotal.WithLabelValues(op, result).Inc()
}

func (m *Metrics) RecordSessionCache(hit bool) {
	if !m.isEnabled() {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	SessionCacheHits.WithLabelValues(result).Inc()
}
