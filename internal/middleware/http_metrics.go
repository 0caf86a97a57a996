package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// metricsResponseWriter captures status and size for the metrics middleware
// without interfering with the logging middleware's wrapper.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int
	wroteHeader bool
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.statusCode = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *metricsResponseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// Unwrap exposes the underlying writer to http.ResponseController so the
// websocket upgrader can hijack the connection through this wrapper.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// normalizePath collapses dynamic path segments to route templates so metric
// label cardinality stays bounded.
func normalizePath(path string) string {
	switch path {
	case "/health", "/ready", "/metrics":
		return path
	}

	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 || parts[0] != "tracking" {
		return "/other"
	}

	switch {
	case len(parts) == 2 && parts[1] == "point":
		return "/tracking/point"
	case len(parts) == 3 && parts[1] == "my" && parts[2] == "day":
		return "/tracking/my/day"
	case len(parts) == 3 && parts[1] == "admin" && parts[2] == "last":
		return "/tracking/admin/last"
	case len(parts) == 3 && parts[1] == "points":
		return "/tracking/points/{point_id}"
	case len(parts) == 5 && parts[1] == "admin" && parts[2] == "users" && parts[4] == "day":
		return "/tracking/admin/users/{user_id}/day"
	case len(parts) == 4 && parts[1] == "admin" && parts[3] == "day":
		return "/tracking/admin/{user_id}/day"
	case len(parts) == 2 && parts[1] == "ws":
		return "/tracking/ws"
	case len(parts) == 3 && parts[1] == "ws":
		return "/tracking/ws/" + parts[2]
	}
	return "/tracking/other"
}

// HTTPMetrics is a middleware that records request metrics for Prometheus.
func HTTPMetrics(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			path := normalizePath(r.URL.Path)

			rw := &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)

			status := strconv.Itoa(rw.statusCode)
			duration := time.Since(start).Seconds()

			m.RequestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
			m.RequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			if r.ContentLength > 0 {
				m.RequestSize.WithLabelValues(r.Method, path).Observe(float64(r.ContentLength))
			}
			m.ResponseSize.WithLabelValues(r.Method, path).Observe(float64(rw.size))
			if rw.statusCode == http.StatusTooManyRequests {
				m.RateLimitedTotal.WithLabelValues(path).Inc()
			}
		})
	}
}
