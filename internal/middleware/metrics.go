package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus collectors for HTTP-level observability.
type Metrics struct {
	// RequestDuration tracks HTTP request latency by method, path, and status.
	RequestDuration *prometheus.HistogramVec

	// RequestsTotal counts HTTP requests by method, path, and status.
	RequestsTotal *prometheus.CounterVec

	// RequestSize tracks request body sizes.
	RequestSize *prometheus.HistogramVec

	// ResponseSize tracks response body sizes.
	ResponseSize *prometheus.HistogramVec

	// RateLimitedTotal counts requests rejected by the rate limiter.
	RateLimitedTotal *prometheus.CounterVec
}

// NewMetrics creates the HTTP metrics collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		RequestSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_size_bytes",
				Help:    "HTTP request body size in bytes.",
				Buckets: prometheus.ExponentialBuckets(64, 4, 8),
			},
			[]string{"method", "path"},
		),
		ResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_response_size_bytes",
				Help:    "HTTP response body size in bytes.",
				Buckets: prometheus.ExponentialBuckets(64, 4, 8),
			},
			[]string{"method", "path"},
		),
		RateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_rate_limited_total",
				Help: "Total number of requests rejected by the rate limiter.",
			},
			[]string{"path"},
		),
	}
}

// Register registers all collectors with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.RequestDuration,
		m.RequestsTotal,
		m.RequestSize,
		m.ResponseSize,
		m.RateLimitedTotal,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
