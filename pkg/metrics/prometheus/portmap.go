package prometheus

import (
	"github.com/marmos91/gpibgate/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type portmapMetrics struct {
	lookups *prometheus.CounterVec
}

// NewPortmapMetrics creates a Prometheus-backed PortmapMetrics.
func NewPortmapMetrics() metrics.PortmapMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopPortmapMetrics()
	}

	return &portmapMetrics{
		lookups: promauto.With(metrics.GetRegistry()).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gpibgate_portmap_lookups_total",
				Help: "Total number of port-mapper GETPORT requests by transport and result",
			},
			[]string{"transport", "result"},
		),
	}
}

func (m *portmapMetrics) RecordLookup(transport string, result string) {
	m.lookups.WithLabelValues(transport, result).Inc()
}
