// Package metrics manages the process-wide Prometheus registry.
//
// Metrics are opt-in: until InitRegistry is called, IsEnabled returns false
// and the typed collectors construct as nil, which every consumer treats as
// a no-op. This keeps the disabled path at zero overhead.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	registryMu sync.RWMutex
	registry   *prometheus.Registry
)

// InitRegistry creates the process-wide metrics registry.
//
// Call once during startup, before constructing components that record
// metrics. Subsequent calls return the existing registry.
//
// Returns:
//   - *prometheus.Registry: The shared registry
func InitRegistry() *prometheus.Registry {
	registryMu.Lock()
	defer registryMu.Unlock()

	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	return registry
}

// IsEnabled reports whether metrics collection has been initialized.
func IsEnabled() bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry != nil
}

// GetRegistry returns the shared registry, or nil when metrics are disabled.
func GetRegistry() *prometheus.Registry {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry
}

// ResetForTesting discards the shared registry so tests can initialize a
// fresh one without duplicate-registration panics.
func ResetForTesting() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = nil
}
