package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_DefaultConfig(t *testing.T) {
	require.NoError(t, Validate(GetDefaultConfig()))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Logging.Level = "TRACE" },
			wantErr: "Level",
		},
		{
			name:    "invalid log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "Format",
		},
		{
			name:    "zero shutdown timeout",
			mutate:  func(c *Config) { c.Server.ShutdownTimeout = 0 },
			wantErr: "ShutdownTimeout",
		},
		{
			name:    "empty identity",
			mutate:  func(c *Config) { c.Identity = "" },
			wantErr: "Identity",
		},
		{
			name:    "unknown bus type",
			mutate:  func(c *Config) { c.Bus.Type = "usb" },
			wantErr: "Bus.Type",
		},
		{
			name:    "unknown settings type",
			mutate:  func(c *Config) { c.Settings.Type = "etcd" },
			wantErr: "Settings.Type",
		},
		{
			name: "no adapter enabled",
			mutate: func(c *Config) {
				c.Adapters.VXI11.Enabled = false
				c.Adapters.Portmap.Enabled = false
			},
			wantErr: "at least one",
		},
		{
			name:    "portmap without vxi11",
			mutate:  func(c *Config) { c.Adapters.VXI11.Enabled = false; c.Adapters.Prologix.Enabled = true },
			wantErr: "requires adapters.vxi11",
		},
		{
			name:    "vxi11 connections below links",
			mutate:  func(c *Config) { c.Adapters.VXI11.MaxConnections = 1 },
			wantErr: "adapters.vxi11",
		},
		{
			name:    "vxi11 too many links",
			mutate:  func(c *Config) { c.Adapters.VXI11.MaxLinks = 1000 },
			wantErr: "MaxLinks",
		},
		{
			name: "portmap without transports",
			mutate: func(c *Config) {
				c.Adapters.Portmap.DisableTCP = true
				c.Adapters.Portmap.DisableUDP = true
			},
			wantErr: "adapters.portmap",
		},
		{
			name:    "port collision",
			mutate:  func(c *Config) { c.Adapters.Portmap.Port = c.Adapters.VXI11.Port },
			wantErr: "already used",
		},
		{
			name: "metrics port collision",
			mutate: func(c *Config) {
				c.Server.Metrics.Enabled = true
				c.Server.Metrics.Port = c.Adapters.VXI11.Port
			},
			wantErr: "server.metrics",
		},
		{
			name: "line server short line limit",
			mutate: func(c *Config) {
				c.Adapters.Prologix.Enabled = true
				c.Adapters.Prologix.MaxLineLength = 10
			},
			wantErr: "adapters.prologix",
		},
		{
			name: "prologix bus without address",
			mutate: func(c *Config) {
				c.Bus.Type = "prologix"
			},
			wantErr: "bus.prologix",
		},
		{
			name: "prologix bus with malformed address",
			mutate: func(c *Config) {
				c.Bus.Type = "prologix"
				c.Bus.Prologix["address"] = "controller"
			},
			wantErr: "Address",
		},
		{
			name: "simulated instrument out of range",
			mutate: func(c *Config) {
				c.Bus.Sim["instruments"] = map[string]any{"31": "X"}
			},
			wantErr: "bus.sim",
		},
		{
			name: "badger without path",
			mutate: func(c *Config) {
				c.Settings.Type = "badger"
				c.Settings.Badger = map[string]any{}
			},
			wantErr: "db_path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_AcceptsLowercaseLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "debug"
	assert.NoError(t, Validate(cfg))
}

func TestValidate_LineServerOnly(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Adapters.VXI11.Enabled = false
	cfg.Adapters.Portmap.Enabled = false
	cfg.Adapters.Prologix.Enabled = true
	assert.NoError(t, Validate(cfg))
}
