package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains Prometheus metrics for engine operations.
// A nil *Metrics records nothing.
type Metrics struct {
	operationsTotal    *prometheus.CounterVec
	operationDuration  *prometheus.HistogramVec
	rejectionsTotal    *prometheus.CounterVec
	auditFailuresTotal prometheus.Counter
	auditEntriesTotal  *prometheus.CounterVec

	collectors []prometheus.Collector
}

// NewMetrics creates and registers engine metrics.
func NewMetrics(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "budget_engine_operations_total",
			Help: "Total number of engine operations",
		},
		[]string{"operation", "status"}, // status: success, rejected, error
	)
	m.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "budget_engine_operation_duration_seconds",
			Help:    "Time taken by engine operations including the transaction",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		},
		[]string{"operation"},
	)
	m.rejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "budget_engine_rejections_total",
			Help: "Total number of rejected operations by error kind",
		},
		[]string{"operation", "kind"},
	)
	m.auditFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "budget_engine_audit_failures_total",
		Help: "Total number of audit entries that could not be written",
	})
	m.auditEntriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "budget_engine_audit_entries_total",
			Help: "Total number of audit entries written",
		},
		[]string{"object_type"},
	)

	m.collectors = []prometheus.Collector{
		m.operationsTotal, m.operationDuration, m.rejectionsTotal, m.auditFailuresTotal, m.auditEntriesTotal,
	}
}

// Describe implements the Collector interface
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordOperation records the outcome and duration of one operation.
func (m *Metrics) RecordOperation(operation string, err error, took time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		kind := KindOf(err)
		if kind == KindOperational {
			status = "error"
		} else {
			status = "rejected"
		}
		m.rejectionsTotal.WithLabelValues(operation, string(kind)).Inc()
	}
	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(took.Seconds())
}

// RecordAudit records a written or failed audit entry.
func (m *Metrics) RecordAudit(objectType string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.auditFailuresTotal.Inc()
		return
	}
	m.auditEntriesTotal.WithLabelValues(objectType).Inc()
}
