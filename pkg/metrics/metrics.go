// Package metrics exposes the in-process Prometheus instrumentation
// named in SPEC_FULL.md's ambient stack: per-pool request counts by
// status class, a per-address health gauge, a per-address open
// connection gauge, and ACME issuance outcome counters. None of it is
// written to disk or read back, so it doesn't reintroduce the
// persistent metrics store spec.md's Non-goals exclude.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/phi-labs/lambo/pkg/pool"
)

// Registry bundles the collectors and the prometheus.Registerer they
// are registered against, so a caller can mount /metrics against one
// concrete *prometheus.Registry without reaching for the global
// DefaultRegisterer (matching 99souls-ariadne's per-component registry
// construction rather than prometheus/promhttp's package-level default).
type Registry struct {
	inner *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	Health          *prometheus.GaugeVec
	OpenConnections *prometheus.GaugeVec
	AcmeIssuance    *prometheus.CounterVec
}

// NewRegistry builds a fresh registry with all collectors registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		inner: reg,
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lambo",
			Name:      "requests_total",
			Help:      "Requests dispatched, labeled by pool and response status class.",
		}, []string{"pool", "status_class"}),
		Health: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "lambo",
			Name:      "backend_health",
			Help:      "Backend healthiness: 0=Healthy, 1=Slow, 2=Unresponsive.",
		}, []string{"address"}),
		OpenConnections: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "lambo",
			Name:      "backend_open_connections",
			Help:      "Open outbound connections per backend address.",
		}, []string{"address"}),
		AcmeIssuance: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lambo",
			Name:      "acme_issuance_total",
			Help:      "ACME certificate issuance attempts, labeled by outcome.",
		}, []string{"outcome"}),
	}
}

// Gatherer exposes the underlying registry for the HTTP handler (see
// cmd/lambo, promhttp.HandlerFor).
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.inner
}

// ObserveRequest records one dispatched request's outcome.
func (r *Registry) ObserveRequest(poolName string, statusCode int) {
	if r == nil {
		return
	}
	r.RequestsTotal.WithLabelValues(poolName, statusClass(statusCode)).Inc()
}

// ObserveHealth records a backend's current classification.
func (r *Registry) ObserveHealth(address string, h pool.Healthiness) {
	if r == nil {
		return
	}
	r.Health.WithLabelValues(address).Set(h.Gauge())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "other"
	}
}
