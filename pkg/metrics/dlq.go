package metrics

import (
	"github.com/fleetyard/eldcore/pkg/dlq"
)

// NewDLQMetrics creates a Prometheus-backed dlq.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewDLQMetrics() dlq.Metrics {
	if !IsEnabled() || newPrometheusDLQMetrics == nil {
		return nil
	}
	return newPrometheusDLQMetrics()
}

// newPrometheusDLQMetrics is implemented in pkg/metrics/prometheus.
var newPrometheusDLQMetrics func() dlq.Metrics

// RegisterDLQMetricsConstructor registers the Prometheus dead-letter
// metrics constructor. Called by pkg/metrics/prometheus during package
// initialization.
func RegisterDLQMetricsConstructor(constructor func() dlq.Metrics) {
	newPrometheusDLQMetrics = constructor
}
