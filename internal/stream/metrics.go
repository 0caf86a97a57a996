package stream

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricPointsIngested      = "tracking_points_ingested_total"
	MetricBroadcastDeliveries = "tracking_broadcast_deliveries_total"
	MetricLiveConnections     = "tracking_live_connections"
)

// Delivery result labels.
const (
	DeliveryOK      = "ok"
	DeliveryDropped = "dropped"
)

// Connection class labels.
const (
	ClassUser  = "user"
	ClassAdmin = "admin"
)

// Metrics contains Prometheus metrics for the tracking stream.
// All operations are thread-safe. A nil *Metrics is a no-op, so wiring
// metrics stays optional in tests.
type Metrics struct {
	pointsIngested      *prometheus.CounterVec
	broadcastDeliveries *prometheus.CounterVec
	liveConnections     *prometheus.GaugeVec
}

// NewMetrics creates and returns a new Metrics instance with all collectors
// initialized. The metrics are not registered; call Register to register
// them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		pointsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricPointsIngested,
				Help: "Total number of location points accepted and stored",
			},
			[]string{"source"},
		),
		broadcastDeliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricBroadcastDeliveries,
				Help: "Total number of per-admin broadcast delivery attempts by result",
			},
			[]string{"result"},
		),
		liveConnections: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: MetricLiveConnections,
				Help: "Number of currently open tracking connections by class",
			},
			[]string{"class"},
		),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.pointsIngested,
		m.broadcastDeliveries,
		m.liveConnections,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncPointsIngested increments the ingestion counter.
// source: "ws" or "rest".
func (m *Metrics) IncPointsIngested(source string) {
	if m == nil {
		return
	}
	m.pointsIngested.WithLabelValues(source).Inc()
}

// IncBroadcastDelivery increments the delivery counter for one attempt.
func (m *Metrics) IncBroadcastDelivery(result string) {
	if m == nil {
		return
	}
	m.broadcastDeliveries.WithLabelValues(result).Inc()
}

// ConnectionOpened increments the live connection gauge for a class.
func (m *Metrics) ConnectionOpened(class string) {
	if m == nil {
		return
	}
	m.liveConnections.WithLabelValues(class).Inc()
}

// ConnectionClosed decrements the live connection gauge for a class.
func (m *Metrics) ConnectionClosed(class string) {
	if m == nil {
		return
	}
	m.liveConnections.WithLabelValues(class).Dec()
}
