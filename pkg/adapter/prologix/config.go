package prologix

import (
	"fmt"
	"time"
)

// DefaultVersion is the "++ver" banner.
const DefaultVersion = "gpibgate Prologix-compatible line server 1.0"

// Config configures the line server.
type Config struct {
	// Enabled controls whether the line server is started.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the TCP port clients connect to.
	// Default: 1234 (the port Prologix Ethernet controllers use)
	Port int `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`

	// MaxConnections bounds concurrent clients. Each client holds one
	// bridge claim while connected.
	// Default: 2
	MaxConnections int `mapstructure:"max_connections" yaml:"max_connections" validate:"min=0"`

	// Profile is the settings store key used by "++savecfg" and "++rst".
	// Default: "default"
	Profile string `mapstructure:"profile" yaml:"profile"`

	// Version is printed by "++ver".
	Version string `mapstructure:"version" yaml:"version"`

	// MaxReadSize caps the bytes returned by one read.
	// Default: 1024
	MaxReadSize int `mapstructure:"max_read_size" yaml:"max_read_size" validate:"min=0"`

	// MaxLineLength bounds one input line. Longer lines close the connection.
	// Default: 4096
	MaxLineLength int `mapstructure:"max_line_length" yaml:"max_line_length" validate:"min=0"`

	// IdleTimeout closes connections without input for this long. 0 disables it.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout" validate:"min=0"`

	// IOTimeout bounds one bus transaction.
	// Default: 3s
	IOTimeout time.Duration `mapstructure:"io_timeout" yaml:"io_timeout" validate:"min=0"`

	// ShutdownTimeout bounds the wait for clients on shutdown.
	// Default: 5s
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"min=0"`
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Port <= 0 {
		c.Port = 1234
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = 2
	}
	if c.Profile == "" {
		c.Profile = "default"
	}
	if c.Version == "" {
		c.Version = DefaultVersion
	}
	if c.MaxReadSize <= 0 {
		c.MaxReadSize = 1024
	}
	if c.MaxLineLength <= 0 {
		c.MaxLineLength = 4096
	}
	if c.IOTimeout == 0 {
		c.IOTimeout = 3 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
}

func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.MaxLineLength < 64 {
		return fmt.Errorf("invalid MaxLineLength %d: must be >= 64", c.MaxLineLength)
	}
	return nil
}
