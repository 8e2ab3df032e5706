// Package metrics holds the Prometheus instruments countd exposes on the
// metrics listener.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every countd instrument with its private registry.
type Metrics struct {
	registry *prometheus.Registry

	// Increments counts successfully applied counter increments.
	Increments prometheus.Counter
	// NotifyFailures counts notification publishes that failed after the
	// increment already committed. The increment still succeeds; this counter
	// is the required observability for the swallowed error.
	NotifyFailures prometheus.Counter
	// HTTPRequests counts requests by operation and status code.
	HTTPRequests *prometheus.CounterVec
	// StoreErrors counts backend failures surfaced to callers.
	StoreErrors prometheus.Counter
}

// New constructs and registers all instruments on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		Increments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "countd",
			Name:      "increments_total",
			Help:      "Successfully applied counter increments.",
		}),
		NotifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "countd",
			Name:      "notify_failures_total",
			Help:      "Notification publishes that failed after a committed increment.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "countd",
			Name:      "http_requests_total",
			Help:      "HTTP requests by operation and status code.",
		}, []string{"operation", "status"}),
		StoreErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "countd",
			Name:      "store_errors_total",
			Help:      "Backend failures surfaced to callers.",
		}),
	}
	registry.MustRegister(m.Increments, m.NotifyFailures, m.HTTPRequests, m.StoreErrors)
	return m
}

// Registry exposes the private registry for the scrape handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
