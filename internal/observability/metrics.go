package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "idbench"

// Metrics holds the Prometheus collectors for one benchmark run. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry         *prometheus.Registry
	phaseSeconds     *prometheus.GaugeVec
	batchLatency     *prometheus.HistogramVec
	rowsInserted     *prometheus.CounterVec
	rowsQueried      *prometheus.CounterVec
	storageRetries   *prometheus.CounterVec
	clockRegressions prometheus.Gauge
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		phaseSeconds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Wall-clock duration of a benchmark phase.",
		}, []string{"strategy", "operation"}),
		batchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "insert_batch_duration_seconds",
			Help:      "Round-trip latency of one bulk-insert batch.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
		}, []string{"strategy"}),
		rowsInserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_inserted_total",
			Help:      "Rows acknowledged by the store.",
		}, []string{"strategy"}),
		rowsQueried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_queried_total",
			Help:      "Rows materialized by paginated queries.",
		}, []string{"strategy"}),
		storageRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_retries_total",
			Help:      "Transient storage failures that were retried.",
		}, []string{"op"}),
		clockRegressions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "clock_regressions",
			Help:      "Clock regressions absorbed by the monotonic id generator.",
		}),
	}

	m.registry.MustRegister(
		m.phaseSeconds,
		m.batchLatency,
		m.rowsInserted,
		m.rowsQueried,
		m.storageRetries,
		m.clockRegressions,
	)
	return m
}

// Registry exposes the registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObservePhase records the duration of a finished phase.
func (m *Metrics) ObservePhase(strategy, operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.phaseSeconds.WithLabelValues(strategy, operation).Set(d.Seconds())
}

// ObserveBatch records one acknowledged insert batch.
func (m *Metrics) ObserveBatch(strategy string, rows int, d time.Duration) {
	if m == nil {
		return
	}
	m.batchLatency.WithLabelValues(strategy).Observe(d.Seconds())
	m.rowsInserted.WithLabelValues(strategy).Add(float64(rows))
}

// ObserveQuery records the rows a paginated query returned.
func (m *Metrics) ObserveQuery(strategy string, rows int) {
	if m == nil {
		return
	}
	m.rowsQueried.WithLabelValues(strategy).Add(float64(rows))
}

// IncRetry counts one retried storage operation.
func (m *Metrics) IncRetry(op string) {
	if m == nil {
		return
	}
	m.storageRetries.WithLabelValues(op).Inc()
}

// SetClockRegressions publishes the generator's regression count.
func (m *Metrics) SetClockRegressions(n uint64) {
	if m == nil {
		return
	}
	m.clockRegressions.Set(float64(n))
}

// WriteTextfile writes all metrics in the Prometheus text format, suitable for
// the node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
