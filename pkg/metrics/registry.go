// Package metrics defines the observability interfaces of the gateway
// components and the HTTP endpoint that exposes them.
//
// Every interface has a no-op implementation used when metrics are
// disabled; the Prometheus implementations live in the prometheus
// subpackage and register on the registry created by InitRegistry:
//
//	metrics.InitRegistry()
//	core := vxi11.New(cfg, prometheus.NewVXI11Metrics())
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry creates the gateway registry, preloaded with the Go runtime
// and process collectors. Later calls are no-ops.
//
// Collectors constructed before the first call stay no-ops.
func InitRegistry() {
	registryOnce.Do(func() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		registry = reg
	})
}

// GetRegistry returns nil until InitRegistry has run.
func GetRegistry() *prometheus.Registry {
	return registry
}

func IsEnabled() bool {
	return registry != nil
}
