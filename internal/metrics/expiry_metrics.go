package metrics

import "github.com/prometheus/client_golang/prometheus"

// ExpiryMetrics — метрики планировщика отмены просроченных накладных.
type ExpiryMetrics struct {
	runs          *prometheus.CounterVec
	cancelled     prometheus.Counter
	lastCancelled prometheus.Gauge
	lastRun       prometheus.Gauge
}

// NewExpiryMetricsWithRegisterer регистрирует метрики в указанном реестре.
func NewExpiryMetricsWithRegisterer(registerer prometheus.Registerer) *ExpiryMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &ExpiryMetrics{
		runs: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "accountancy_invoice_expiry_runs_total",
			Help: "Total number of invoice expiry scans grouped by result.",
		}, []string{"result"}),
		cancelled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "accountancy_invoice_expiry_cancelled_total",
			Help: "Total number of invoices cancelled by the expiry scheduler.",
		}),
		lastCancelled: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "accountancy_invoice_expiry_last_cancelled",
			Help: "Number of invoices cancelled during the last expiry scan.",
		}),
		lastRun: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "accountancy_invoice_expiry_last_run_timestamp_seconds",
			Help: "Unix time of the last finished expiry scan.",
		}),
	}
}

// RecordRun учитывает завершённый проход: result — ok, error, skipped.
func (m *ExpiryMetrics) RecordRun(result string, cancelled int, finishedAt float64) {
	m.runs.WithLabelValues(result).Inc()
	if result == "skipped" {
		return
	}
	m.cancelled.Add(float64(cancelled))
	m.lastCancelled.Set(float64(cancelled))
	m.lastRun.Set(finishedAt)
}
