package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WorkflowMetrics содержит метрики жизненного цикла накладных.
type WorkflowMetrics struct {
	// Переходы накладных по целевому статусу: created, cancelled, paid, refund, expired.
	transitions *prometheus.CounterVec
	// Неуспешные операции по шагу.
	failures *prometheus.CounterVec

	operationDuration *prometheus.HistogramVec

	// Вызовы склада по операции и результату (ok, rejected, error).
	gatewayCalls *prometheus.CounterVec

	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter

	inFlight prometheus.Gauge
}

// NewWorkflowMetrics создаёт метрики в глобальном реестре Prometheus.
func NewWorkflowMetrics() *WorkflowMetrics {
	return NewWorkflowMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWorkflowMetricsWithRegisterer создаёт метрики в указанном реестре (для тестов).
func NewWorkflowMetricsWithRegisterer(registerer prometheus.Registerer) *WorkflowMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &WorkflowMetrics{
		transitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "accountancy_invoice_transitions_total",
			Help: "Total number of invoice status transitions by target status",
		}, []string{"status"}),
		failures: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "accountancy_invoice_failures_total",
			Help: "Total number of failed invoice operations by step",
		}, []string{"step"}),
		operationDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "accountancy_invoice_operation_duration_seconds",
			Help:    "Duration of invoice workflow operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation"}),
		gatewayCalls: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "accountancy_stock_gateway_calls_total",
			Help: "Total number of store service calls by operation and result",
		}, []string{"operation", "result"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "accountancy_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "accountancy_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
		inFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "accountancy_invoice_operations_in_flight",
			Help: "Number of invoice workflow operations currently running",
		}),
	}
}

// RecordTransition учитывает переход накладной в статус (или "expired" для истечения срока).
func (m *WorkflowMetrics) RecordTransition(status string) {
	m.transitions.WithLabelValues(status).Inc()
}

// RecordFailure учитывает неуспешную операцию.
func (m *WorkflowMetrics) RecordFailure(step string) {
	m.failures.WithLabelValues(step).Inc()
}

// ObserveOperation начинает замер операции; вызовите возвращённую функцию по завершении.
func (m *WorkflowMetrics) ObserveOperation(operation string) func() {
	start := time.Now()
	m.inFlight.Inc()
	return func() {
		m.inFlight.Dec()
		m.operationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

// RecordGatewayCall учитывает вызов сервиса склада.
func (m *WorkflowMetrics) RecordGatewayCall(operation, result string) {
	m.gatewayCalls.WithLabelValues(operation, result).Inc()
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *WorkflowMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *WorkflowMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
