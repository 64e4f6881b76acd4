// Package metrics exposes Prometheus counters for the relay.
//
// Every method is safe on a nil *Metrics, so components can take an
// optional collector without checking for it.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Navigation outcomes.
const (
	OutcomeNavigated = "navigated"
	OutcomeFailed    = "failed"
	OutcomeEmptyURL  = "skipped_empty_url"
	OutcomeGate      = "skipped_gate"
)

// Refresh results.
const (
	RefreshOK     = "ok"
	RefreshCache  = "cache"
	RefreshFailed = "failed"
)

// Metrics holds the relay's Prometheus collectors.
type Metrics struct {
	Executions    *prometheus.CounterVec
	HandlerPanics prometheus.Counter
	Refreshes     *prometheus.CounterVec
	Sites         prometheus.Gauge

	registry *prometheus.Registry
}

// New creates the collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		Executions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "siterelay_executions_total",
				Help: "Execute phases by outcome",
			},
			[]string{"outcome"},
		),
		HandlerPanics: factory.NewCounter(prometheus.CounterOpts{
			Name: "siterelay_handler_panics_total",
			Help: "Recovered phase handler panics",
		}),
		Refreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "siterelay_config_refreshes_total",
				Help: "Configuration refreshes by result",
			},
			[]string{"result"},
		),
		Sites: factory.NewGauge(prometheus.GaugeOpts{
			Name: "siterelay_sites",
			Help: "Number of sites in the current configuration",
		}),
		registry: reg,
	}
}

// Execution records the outcome of one Execute phase.
func (m *Metrics) Execution(outcome string) {
	if m == nil {
		return
	}
	m.Executions.WithLabelValues(outcome).Inc()
}

// Panic records a recovered handler panic.
func (m *Metrics) Panic() {
	if m == nil {
		return
	}
	m.HandlerPanics.Inc()
}

// Refresh records a configuration refresh and the resulting site count.
func (m *Metrics) Refresh(result string, sites int) {
	if m == nil {
		return
	}
	m.Refreshes.WithLabelValues(result).Inc()
	m.Sites.Set(float64(sites))
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
