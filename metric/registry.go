// Package metric owns the Prometheus registry and the engine instruments.
// A private registry keeps the exposition surface limited to what this
// process registers.
package metric

import (
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/c360/sentinel/errors"
)

// MetricsRegistry manages metric registration over a private registry.
type MetricsRegistry struct {
	prometheusRegistry *prometheus.Registry
	Metrics            *Metrics

	mu         sync.RWMutex
	registered map[string]prometheus.Collector
}

// NewMetricsRegistry creates a registry preloaded with the engine instruments
// and Go runtime collectors.
func NewMetricsRegistry() *MetricsRegistry {
	r := &MetricsRegistry{
		prometheusRegistry: prometheus.NewRegistry(),
		Metrics:            NewMetrics(),
		registered:         make(map[string]prometheus.Collector),
	}

	for _, c := range r.Metrics.collectors() {
		r.prometheusRegistry.MustRegister(c)
	}
	r.prometheusRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// PrometheusRegistry returns the underlying registry for the HTTP handler.
func (r *MetricsRegistry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// Register adds a component-specific collector under a namespaced key.
func (r *MetricsRegistry) Register(component, name string, collector prometheus.Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", component, name)
	if _, exists := r.registered[key]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("metric %s already registered for %s", name, component),
			"MetricsRegistry", "Register", "duplicate metric registration")
	}

	if err := r.prometheusRegistry.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if stderrors.As(err, &already) {
			return errors.WrapInvalid(err, "MetricsRegistry", "Register",
				fmt.Sprintf("prometheus conflict for metric %s", name))
		}
		return errors.WrapFatal(err, "MetricsRegistry", "Register", "registration failed")
	}

	r.registered[key] = collector
	return nil
}

// Unregister removes a previously registered component collector.
func (r *MetricsRegistry) Unregister(component, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", component, name)
	collector, exists := r.registered[key]
	if !exists {
		return false
	}
	delete(r.registered, key)
	return r.prometheusRegistry.Unregister(collector)
}
