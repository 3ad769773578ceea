// Package metrics exposes Prometheus counters for validations and key
// administration.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry    *prometheus.Registry
	validations *prometheus.CounterVec
	bindings    prometheus.Counter
	generated   prometheus.Counter
	adminOps    *prometheus.CounterVec
}

// New registers the collectors on a fresh registry so several instances can
// coexist in one process.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hwidlock",
			Name:      "validations_total",
			Help:      "Validation attempts by outcome.",
		}, []string{"outcome"}),
		bindings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hwidlock",
			Name:      "bindings_total",
			Help:      "Keys bound to a device on first use.",
		}),
		generated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hwidlock",
			Name:      "keys_generated_total",
			Help:      "Keys created by the admin generate operation.",
		}),
		adminOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hwidlock",
			Name:      "admin_operations_total",
			Help:      "Admin operations by name.",
		}, []string{"op"}),
	}
	reg.MustRegister(m.validations, m.bindings, m.generated, m.adminOps)
	return m
}

// The observe methods are no-ops on a nil receiver.

func (m *Metrics) ObserveValidation(outcome string) {
	if m == nil {
		return
	}
	m.validations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveBinding() {
	if m == nil {
		return
	}
	m.bindings.Inc()
}

func (m *Metrics) ObserveGenerated(n int) {
	if m == nil {
		return
	}
	m.generated.Add(float64(n))
}

func (m *Metrics) ObserveAdmin(op string) {
	if m == nil {
		return
	}
	m.adminOps.WithLabelValues(op).Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
