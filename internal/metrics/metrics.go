// Package metrics exposes Prometheus instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors used across the application.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	httpInFlight  prometheus.Gauge
	pointsAwarded prometheus.Counter
	pointsSpent   prometheus.Counter
	levelUps      prometheus.Counter
	guardRetries  prometheus.Counter
}

// New creates and registers all collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nitemap_http_requests_total",
			Help: "Total HTTP requests by service, method, path and status.",
		}, []string{"service", "method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nitemap_http_request_duration_seconds",
			Help:    "HTTP request duration.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"service", "method", "path"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nitemap_http_requests_in_flight",
			Help: "HTTP requests currently being served.",
		}),
		pointsAwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nitemap_points_awarded_total",
			Help: "Points credited by content-creation awards.",
		}),
		pointsSpent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nitemap_points_spent_total",
			Help: "Points debited by coupon redemptions.",
		}),
		levelUps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nitemap_level_ups_total",
			Help: "Profile level advancements.",
		}),
		guardRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nitemap_guard_retries_total",
			Help: "Fetch guard retries on transient auth failures.",
		}),
	}

	registry.MustRegister(
		m.httpRequests, m.httpDuration, m.httpInFlight,
		m.pointsAwarded, m.pointsSpent, m.levelUps, m.guardRetries,
	)
	return m
}

// Handler returns the /metrics scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// IncrementInFlight marks one request in flight.
func (m *Metrics) IncrementInFlight() { m.httpInFlight.Inc() }

// DecrementInFlight marks one request completed.
func (m *Metrics) DecrementInFlight() { m.httpInFlight.Dec() }

// RecordHTTPRequest records one completed HTTP request.
func (m *Metrics) RecordHTTPRequest(service, method, path, status string, duration time.Duration) {
	m.httpRequests.WithLabelValues(service, method, path, status).Inc()
	m.httpDuration.WithLabelValues(service, method, path).Observe(duration.Seconds())
}

// RecordPointsAwarded records credited points.
func (m *Metrics) RecordPointsAwarded(amount int) {
	m.pointsAwarded.Add(float64(amount))
}

// RecordPointsSpent records debited points.
func (m *Metrics) RecordPointsSpent(amount int) {
	m.pointsSpent.Add(float64(amount))
}

// RecordLevelUp records one level advancement.
func (m *Metrics) RecordLevelUp() { m.levelUps.Inc() }

// RecordGuardRetry records one fetch guard retry.
func (m *Metrics) RecordGuardRetry() { m.guardRetries.Inc() }
