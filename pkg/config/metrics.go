package config

import (
	"github.com/marmos91/gpibgate/pkg/metrics"
	promMetrics "github.com/marmos91/gpibgate/pkg/metrics/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// VXI11 is the collector for the VXI-11 adapter (never nil)
	VXI11 metrics.VXI11Metrics

	// Portmap is the collector for the port mapper (never nil)
	Portmap metrics.PortmapMetrics

	// Bus is the collector for the instrument bridge (never nil)
	Bus metrics.BusMetrics
}

// InitializeMetrics creates all metrics components based on configuration.
//
// When metrics are disabled it returns a nil server and no-op collectors.
// health, when not nil, backs the server's /healthz endpoint.
func InitializeMetrics(cfg *Config, health func() error) *MetricsResult {
	if !cfg.Server.Metrics.Enabled {
		return &MetricsResult{
			VXI11:   metrics.NewNoopVXI11Metrics(),
			Portmap: metrics.NewNoopPortmapMetrics(),
			Bus:     metrics.NewNoopBusMetrics(),
		}
	}

	metrics.InitRegistry()

	server := metrics.NewServer(metrics.ServerConfig{
		Port:   cfg.Server.Metrics.Port,
		Health: health,
	})

	return &MetricsResult{
		Server:  server,
		VXI11:   promMetrics.NewVXI11Metrics(),
		Portmap: promMetrics.NewPortmapMetrics(),
		Bus:     promMetrics.NewBusMetrics(),
	}
}
