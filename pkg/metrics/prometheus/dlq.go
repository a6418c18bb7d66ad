package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fleetyard/eldcore/pkg/dlq"
	"github.com/fleetyard/eldcore/pkg/metrics"
)

func init() {
	metrics.RegisterDLQMetricsConstructor(NewDLQMetrics)
}

// dlqMetrics is the Prometheus implementation of dlq.Metrics.
type dlqMetrics struct {
	retries *prometheus.CounterVec
	depth   *prometheus.GaugeVec
}

// NewDLQMetrics creates a Prometheus-backed dlq.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewDLQMetrics() dlq.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &dlqMetrics{
		retries: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "eldcore_dlq_retries_total",
				Help: "Total number of operator drain actions by outcome",
			},
			[]string{"outcome"}, // "resolved", "failed", "discarded"
		),
		depth: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "eldcore_dlq_depth",
				Help: "Open dead letter entries by status, as of the last stats poll",
			},
			[]string{"status"}, // "pending", "retrying"
		),
	}
}

func (m *dlqMetrics) ObserveRetry(outcome string) {
	m.retries.WithLabelValues(outcome).Inc()
}

func (m *dlqMetrics) SetQueueDepth(pending, retrying int) {
	m.depth.WithLabelValues("pending").Set(float64(pending))
	m.depth.WithLabelValues("retrying").Set(float64(retrying))
}
