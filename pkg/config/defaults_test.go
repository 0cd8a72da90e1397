package config

import (
	"testing"
	"time"

	"github.com/marmos91/gpibgate/pkg/bridge"
	"github.com/stretchr/testify/assert"
)

func TestApplyDefaults_Empty(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 9090, cfg.Server.Metrics.Port)
	assert.False(t, cfg.Server.Metrics.Enabled)
	assert.Equal(t, bridge.DefaultIdentity, cfg.Identity)

	assert.Equal(t, "sim", cfg.Bus.Type)
	assert.Contains(t, cfg.Bus.Sim, "instruments")
	assert.Contains(t, cfg.Bus.Prologix, "io_timeout")
	assert.Equal(t, "memory", cfg.Settings.Type)
	assert.Contains(t, cfg.Settings.Badger, "db_path")

	assert.True(t, cfg.Adapters.VXI11.Enabled)
	assert.Equal(t, 9010, cfg.Adapters.VXI11.Port)
	assert.Equal(t, 4, cfg.Adapters.VXI11.MaxLinks)
	assert.True(t, cfg.Adapters.Portmap.Enabled)
	assert.Equal(t, 111, cfg.Adapters.Portmap.Port)
	assert.Equal(t, 40, cfg.Adapters.Portmap.RateBurst)
	assert.False(t, cfg.Adapters.Prologix.Enabled)
	assert.Equal(t, 1234, cfg.Adapters.Prologix.Port)
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging:  LoggingConfig{Level: "warn", Format: "json", Output: "stderr"},
		Identity: "X,Y,Z,1",
		Bus: BusConfig{
			Type: "prologix",
			Prologix: map[string]any{
				"address":    "10.0.0.2:1234",
				"io_timeout": "9s",
			},
		},
	}
	cfg.Adapters.VXI11.Port = 9020
	cfg.Adapters.Portmap.RateLimit = 5

	ApplyDefaults(cfg)

	assert.Equal(t, "WARN", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "stderr", cfg.Logging.Output)
	assert.Equal(t, "X,Y,Z,1", cfg.Identity)
	assert.Equal(t, "prologix", cfg.Bus.Type)
	assert.Equal(t, "9s", cfg.Bus.Prologix["io_timeout"])

	// a configured port without enabled means the section was written out
	assert.False(t, cfg.Adapters.VXI11.Enabled)
	assert.Equal(t, 9020, cfg.Adapters.VXI11.Port)
	assert.Equal(t, float64(5), cfg.Adapters.Portmap.RateLimit)
	assert.Equal(t, 10, cfg.Adapters.Portmap.RateBurst)
}

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()
	assert.NoError(t, Validate(cfg))
}
