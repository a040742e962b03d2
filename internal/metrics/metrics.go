// Package metrics exposes prometheus instrumentation for the gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the gateway's prometheus collectors.
type Metrics struct {
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	httpInFlight  prometheus.Gauge
	signTotal     *prometheus.CounterVec
	broadcastSeen *prometheus.CounterVec
}

// New creates and registers the gateway metrics on the registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_http_requests_total",
			Help: "HTTP requests by method, path and status.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_http_in_flight_requests",
			Help: "HTTP requests currently being served.",
		}),
		signTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_sign_total",
			Help: "Sign operations by wallet, message kind and outcome.",
		}, []string{"wallet", "kind", "outcome"}),
		broadcastSeen: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_broadcast_total",
			Help: "Broadcast operations by wallet, message kind and outcome.",
		}, []string{"wallet", "kind", "outcome"}),
	}

	reg.MustRegister(m.httpRequests, m.httpDuration, m.httpInFlight, m.signTotal, m.broadcastSeen)
	return m
}

// RecordHTTPRequest records one completed HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, seconds float64) {
	m.httpRequests.WithLabelValues(method, path, status).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(seconds)
}

// IncrementInFlight marks a request as started.
func (m *Metrics) IncrementInFlight() { m.httpInFlight.Inc() }

// DecrementInFlight marks a request as finished.
func (m *Metrics) DecrementInFlight() { m.httpInFlight.Dec() }

// RecordSign counts one sign attempt.
func (m *Metrics) RecordSign(wallet, kind, outcome string) {
	m.signTotal.WithLabelValues(wallet, kind, outcome).Inc()
}

// RecordBroadcast counts one broadcast attempt.
func (m *Metrics) RecordBroadcast(wallet, kind, outcome string) {
	m.broadcastSeen.WithLabelValues(wallet, kind, outcome).Inc()
}
