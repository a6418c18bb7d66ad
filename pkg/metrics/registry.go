// Package metrics owns the process-wide Prometheus registry and the
// constructors components use to obtain their instrument sets.
//
// Metrics are opt-in: nothing records until InitRegistry is called.
// Component constructors (NewIngestMetrics, NewDLQMetrics) return nil
// while the registry is uninitialized, and every recording path treats
// a nil instrument set as disabled, so the cost of running without
// metrics is a nil check.
//
// The Prometheus implementations live in pkg/metrics/prometheus and
// register themselves through the Register*Constructor hooks; import
// that package for its side effects to activate them.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	mu       sync.RWMutex
	registry *prometheus.Registry
)

// InitRegistry creates the metrics registry and seeds it with the Go
// runtime and process collectors.
//
// Call once at startup, before constructing components that record
// metrics. Calling it again is a no-op.
func InitRegistry() {
	mu.Lock()
	defer mu.Unlock()
	if registry != nil {
		return
	}
	registry = prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return registry != nil
}

// GetRegistry returns the process registry, or nil when metrics are
// disabled. Instrument constructors must check IsEnabled first.
func GetRegistry() *prometheus.Registry {
	mu.RLock()
	defer mu.RUnlock()
	return registry
}

// Handler returns the scrape endpoint for the registry, or nil when
// metrics are disabled.
func Handler() http.Handler {
	reg := GetRegistry()
	if reg == nil {
		return nil
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
