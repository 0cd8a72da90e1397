package config

import (
	"strings"
	"time"

	"github.com/marmos91/gpibgate/pkg/bridge"
)

// DefaultRateLimit is the port mapper rate limit, in requests per second
// per source address, used when the configuration does not set one.
const DefaultRateLimit = 20

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values are replaced with defaults; explicit values are preserved.
// Type-specific bus and store defaults are written into every type's map
// so that generated config files document all of them.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)

	if cfg.Identity == "" {
		cfg.Identity = bridge.DefaultIdentity
	}

	applyBusDefaults(&cfg.Bus)
	applySettingsDefaults(&cfg.Settings)
	applyAdaptersDefaults(&cfg.Adapters)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
}

// applyBusDefaults sets bus defaults. The simulator gets one instrument so
// that an unconfigured gateway answers queries out of the box.
func applyBusDefaults(cfg *BusConfig) {
	if cfg.Type == "" {
		cfg.Type = "sim"
	}

	if cfg.Sim == nil {
		cfg.Sim = make(map[string]any)
	}
	if cfg.Prologix == nil {
		cfg.Prologix = make(map[string]any)
	}

	if _, ok := cfg.Sim["instruments"]; !ok {
		cfg.Sim["instruments"] = map[string]any{
			"1": "gpibgate,Simulated Instrument,0,1.0",
		}
	}
	if _, ok := cfg.Prologix["dial_timeout"]; !ok {
		cfg.Prologix["dial_timeout"] = "3s"
	}
	if _, ok := cfg.Prologix["io_timeout"]; !ok {
		cfg.Prologix["io_timeout"] = "3s"
	}
}

func applySettingsDefaults(cfg *SettingsConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}

	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}

	if _, ok := cfg.Badger["db_path"]; !ok {
		cfg.Badger["db_path"] = "/tmp/gpibgate-settings"
	}
}

// applyAdaptersDefaults sets adapter defaults.
//
// The VXI-11 channel and its port mapper are enabled when their section
// looks unconfigured (port 0), so a freshly loaded config with no file
// passes validation. The line server is opt-in.
func applyAdaptersDefaults(cfg *AdaptersConfig) {
	if !cfg.VXI11.Enabled && cfg.VXI11.Port == 0 {
		cfg.VXI11.Enabled = true
	}
	if !cfg.Portmap.Enabled && cfg.Portmap.Port == 0 {
		cfg.Portmap.Enabled = true
	}

	if cfg.Portmap.RateLimit == 0 {
		cfg.Portmap.RateLimit = DefaultRateLimit
	}

	cfg.VXI11.ApplyDefaults()
	cfg.Portmap.ApplyDefaults()
	cfg.Prologix.ApplyDefaults()
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for generating sample configuration files and for tests.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
