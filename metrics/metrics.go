// Package metrics exposes the Prometheus collectors of the API.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing,
// which keeps handlers usable in tests without a registry.
type Metrics struct {
	gatherer prometheus.Gatherer

	httpLatency *prometheus.HistogramVec
	authEvents  *prometheus.CounterVec
	placeOps    *prometheus.CounterVec
}

// New registers the collectors with reg. reg must also be a Gatherer (a
// *prometheus.Registry) for Handler to serve it; otherwise the default
// gatherer is used.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		httpLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_requests_latency_seconds",
				Help:    "Latency of HTTP requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
		authEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_events_total",
				Help: "Authentication events by kind and outcome.",
			},
			[]string{"event", "outcome"}, // register|login|refresh|logout, ok|fail
		),
		placeOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "place_mutations_total",
				Help: "Successful place mutations.",
			},
			[]string{"op"}, // create|update|delete
		),
	}
	reg.MustRegister(m.httpLatency, m.authEvents, m.placeOps)

	m.gatherer = prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

func (m *Metrics) ObserveRequest(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.httpLatency.WithLabelValues(method, route, status).Observe(d.Seconds())
}

func (m *Metrics) AuthEvent(event string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "fail"
	}
	m.authEvents.WithLabelValues(event, outcome).Inc()
}

func (m *Metrics) PlaceMutation(op string) {
	if m == nil {
		return
	}
	m.placeOps.WithLabelValues(op).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
