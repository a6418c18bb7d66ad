package metrics

import (
	"github.com/fleetyard/eldcore/pkg/ingest"
)

// NewIngestMetrics creates a Prometheus-backed ingest.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
// When nil is returned, callers should pass nil to the pipeline, which
// results in zero overhead.
//
// Example usage:
//
//	// With metrics enabled
//	metrics.InitRegistry()
//	pipeline.SetMetrics(metrics.NewIngestMetrics())
//
//	// Without metrics (zero overhead)
//	pipeline.SetMetrics(nil)
func NewIngestMetrics() ingest.Metrics {
	if !IsEnabled() || newPrometheusIngestMetrics == nil {
		return nil
	}
	return newPrometheusIngestMetrics()
}

// newPrometheusIngestMetrics is implemented in pkg/metrics/prometheus.
// The indirection avoids an import cycle: the prometheus subpackage
// needs this package for the registry.
var newPrometheusIngestMetrics func() ingest.Metrics

// RegisterIngestMetricsConstructor registers the Prometheus ingest
// metrics constructor. Called by pkg/metrics/prometheus during package
// initialization.
func RegisterIngestMetricsConstructor(constructor func() ingest.Metrics) {
	newPrometheusIngestMetrics = constructor
}
