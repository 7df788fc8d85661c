package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the margin engine. A nil *Metrics
// is valid: every recording method no-ops, so tests and tools can run the
// engine without a registry.
type Metrics struct {
	// --- Settlement ---
	OperationsTotal  *prometheus.CounterVec
	CallbacksTotal   *prometheus.CounterVec
	SagasInFlight    prometheus.Gauge
	SagaDuration     prometheus.Histogram

	// --- Pool state ---
	PendingDebt     *prometheus.GaugeVec
	AvailableAmount *prometheus.GaugeVec

	// --- Ingestion ---
	CallbacksReceived *prometheus.CounterVec
	ParseErrors       *prometheus.CounterVec
	PublishDrops      prometheus.Counter

	// --- Persistence ---
	OutcomesWritten   prometheus.Counter
	PersistBatchSize  prometheus.Histogram
	PersistErrors     *prometheus.CounterVec
	PersistRetry      prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	sagaBuckets := []float64{
		0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
	}

	return &Metrics{
		OperationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "margin_operations_total",
			Help: "Settlement operations by op and result",
		}, []string{"op", "result"}),

		CallbacksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "margin_callbacks_total",
			Help: "Settlement callbacks by kind and outcome",
		}, []string{"kind", "outcome"}),

		SagasInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "margin_sagas_in_flight",
			Help: "Sagas awaiting an external trade outcome",
		}),

		SagaDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "margin_saga_duration_seconds",
			Help:    "Time from dispatch to final callback",
			Buckets: sagaBuckets,
		}),

		PendingDebt: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "margin_pending_debt",
			Help: "Reserved but unconfirmed debt per asset",
		}, []string{"asset"}),

		AvailableAmount: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "margin_available_amount",
			Help: "Lendable liquidity per asset",
		}, []string{"asset"}),

		CallbacksReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "margin_callbacks_received_total",
			Help: "Raw callback messages received per subject class",
		}, []string{"kind"}),

		ParseErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "margin_callback_parse_errors_total",
			Help: "Callback messages that failed to decode",
		}, []string{"kind"}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "margin_publish_drops_total",
			Help: "Outbound results dropped on a full publish buffer",
		}),

		OutcomesWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "margin_outcomes_written_total",
			Help: "Outcome journal rows written",
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "margin_persist_batch_size",
			Help:    "Rows per outcome journal batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "margin_persist_errors_total",
			Help: "Outcome journal write errors",
		}, []string{"kind"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "margin_persist_retries_total",
			Help: "Outcome journal write retries",
		}),
	}
}

// RecordOperation counts a settlement operation outcome.
func (m *Metrics) RecordOperation(op, result string) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(op, result).Inc()
}

// RecordCallback counts a callback delivery outcome.
func (m *Metrics) RecordCallback(kind, outcome string) {
	if m == nil {
		return
	}
	m.CallbacksTotal.WithLabelValues(kind, outcome).Inc()
}

// SetSagasInFlight updates the in-flight saga gauge.
func (m *Metrics) SetSagasInFlight(n int) {
	if m == nil {
		return
	}
	m.SagasInFlight.Set(float64(n))
}

// ObserveSagaDuration records the dispatch-to-settlement latency of one saga.
func (m *Metrics) ObserveSagaDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.SagaDuration.Observe(d.Seconds())
}

// SetPoolState updates the per-asset liquidity gauges.
func (m *Metrics) SetPoolState(asset string, pendingDebt, available float64) {
	if m == nil {
		return
	}
	m.PendingDebt.WithLabelValues(asset).Set(pendingDebt)
	m.AvailableAmount.WithLabelValues(asset).Set(available)
}
