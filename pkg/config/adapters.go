package config

import (
	"errors"

	"github.com/marmos91/gpibgate/pkg/adapter"
	"github.com/marmos91/gpibgate/pkg/adapter/portmap"
	"github.com/marmos91/gpibgate/pkg/adapter/prologix"
	"github.com/marmos91/gpibgate/pkg/adapter/vxi11"
	"github.com/marmos91/gpibgate/pkg/store/settings"
)

// CreateAdapters creates all enabled protocol adapters from the configuration.
//
// Adapters are returned in start order: the VXI-11 channel, its port
// mapper (which allocates against the channel's link table), then the
// line server. The server stops them in reverse, so the mapper goes quiet
// before the channel drains.
//
// store is only used by the line server and may be nil when it is
// disabled. m may be nil for no-op metrics.
func CreateAdapters(cfg *Config, store settings.Store, m *MetricsResult) ([]adapter.Adapter, error) {
	if m == nil {
		m = &MetricsResult{}
	}

	var adapters []adapter.Adapter

	var core *vxi11.Adapter
	if cfg.Adapters.VXI11.Enabled {
		core = vxi11.New(cfg.Adapters.VXI11, m.VXI11)
		adapters = append(adapters, core)
	}

	if cfg.Adapters.Portmap.Enabled {
		if core == nil {
			return nil, errors.New("portmap adapter requires the vxi11 adapter")
		}
		adapters = append(adapters, portmap.New(cfg.Adapters.Portmap, core, m.Portmap))
	}

	if cfg.Adapters.Prologix.Enabled {
		if store == nil {
			return nil, errors.New("prologix adapter requires a settings store")
		}
		adapters = append(adapters, prologix.New(cfg.Adapters.Prologix, store))
	}

	if len(adapters) == 0 {
		return nil, errors.New("no adapters enabled in configuration")
	}

	return adapters, nil
}
