package prometheus

import (
	"time"

	"github.com/marmos91/gpibgate/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// vxi11Metrics is the Prometheus implementation of metrics.VXI11Metrics.
type vxi11Metrics struct {
	requestsTotal          *prometheus.CounterVec
	requestDuration        *prometheus.HistogramVec
	bytesTransferred       *prometheus.CounterVec
	activeConnections      prometheus.Gauge
	activeLinks            prometheus.Gauge
	connectionsAccepted    prometheus.Counter
	connectionsRejected    prometheus.Counter
	connectionsClosed      prometheus.Counter
	connectionsForceClosed prometheus.Counter
}

// NewVXI11Metrics creates a Prometheus-backed VXI11Metrics.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewVXI11Metrics() metrics.VXI11Metrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopVXI11Metrics()
	}

	reg := metrics.GetRegistry()

	return &vxi11Metrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gpibgate_vxi11_requests_total",
				Help: "Total number of VXI-11 core requests by procedure and status",
			},
			[]string{"procedure", "status", "error_code"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "gpibgate_vxi11_request_duration_milliseconds",
				Help: "Duration of VXI-11 core requests in milliseconds",
				Buckets: []float64{
					1,    // 1ms
					10,   // 10ms
					100,  // 100ms, typical bus round trip
					1000, // 1s
					5000, // 5s
				},
			},
			[]string{"procedure"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gpibgate_vxi11_bytes_transferred_total",
				Help: "Total payload bytes moved through DEVICE_READ and DEVICE_WRITE",
			},
			[]string{"direction"},
		),
		activeConnections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "gpibgate_vxi11_active_connections",
				Help: "Current number of VXI-11 TCP connections",
			},
		),
		activeLinks: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "gpibgate_vxi11_active_links",
				Help: "Current number of occupied link slots",
			},
		),
		connectionsAccepted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "gpibgate_vxi11_connections_accepted_total",
				Help: "Total number of VXI-11 connections accepted",
			},
		),
		connectionsRejected: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "gpibgate_vxi11_connections_rejected_total",
				Help: "Total number of VXI-11 connections refused at the connection limit",
			},
		),
		connectionsClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "gpibgate_vxi11_connections_closed_total",
				Help: "Total number of VXI-11 connections closed",
			},
		),
		connectionsForceClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "gpibgate_vxi11_connections_force_closed_total",
				Help: "Total number of VXI-11 connections force-closed during shutdown timeout",
			},
		),
	}
}

func (m *vxi11Metrics) RecordRequest(procedure string, duration time.Duration, errorCode string) {
	status := "success"
	if errorCode != "" {
		status = "error"
	}

	m.requestsTotal.WithLabelValues(procedure, status, errorCode).Inc()
	m.requestDuration.WithLabelValues(procedure).Observe(duration.Seconds() * 1000)
}

func (m *vxi11Metrics) RecordBytesTransferred(direction string, bytes uint64) {
	m.bytesTransferred.WithLabelValues(direction).Add(float64(bytes))
}

func (m *vxi11Metrics) SetActiveConnections(count int32) {
	m.activeConnections.Set(float64(count))
}

func (m *vxi11Metrics) SetActiveLinks(count int) {
	m.activeLinks.Set(float64(count))
}

func (m *vxi11Metrics) RecordConnectionAccepted() {
	m.connectionsAccepted.Inc()
}

func (m *vxi11Metrics) RecordConnectionRejected() {
	m.connectionsRejected.Inc()
}

func (m *vxi11Metrics) RecordConnectionClosed() {
	m.connectionsClosed.Inc()
}

func (m *vxi11Metrics) RecordConnectionForceClosed() {
	m.connectionsForceClosed.Inc()
}
