package portmap

import (
	"fmt"
	"time"
)

// Config configures the port mapper.
type Config struct {
	// Enabled controls whether the port mapper is started. VXI-11 clients
	// always ask port 111 first, so it is normally on.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is shared by the UDP and TCP sockets.
	// Default: 111
	Port int `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`

	// DisableUDP turns the UDP socket off.
	DisableUDP bool `mapstructure:"disable_udp" yaml:"disable_udp"`

	// DisableTCP turns the TCP listener off.
	DisableTCP bool `mapstructure:"disable_tcp" yaml:"disable_tcp"`

	// RateLimit is the sustained GETPORT rate allowed per source address,
	// in requests per second. Zero or negative disables rate limiting. The
	// configuration file layer turns an unset value into 20.
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`

	// RateBurst is the number of back-to-back requests a source may send.
	// 0 means twice RateLimit.
	RateBurst int `mapstructure:"rate_burst" yaml:"rate_burst" validate:"min=0"`

	// MaxConnections bounds concurrent TCP connections.
	// Default: 16
	MaxConnections int `mapstructure:"max_connections" yaml:"max_connections" validate:"min=0"`

	// IdleTimeout closes TCP connections without a request for this long.
	// Default: 30s
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout" validate:"min=0"`

	// WriteTimeout bounds sending one reply.
	// Default: 5s
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" validate:"min=0"`

	// ShutdownTimeout bounds the wait for TCP connections on shutdown.
	// Default: 5s
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"min=0"`
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Port <= 0 {
		c.Port = 111
	}
	if c.RateBurst == 0 {
		c.RateBurst = max(1, int(2*c.RateLimit))
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = 16
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
}

// Validate checks the rules struct tags cannot express. Call it after
// ApplyDefaults.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.DisableUDP && c.DisableTCP {
		return fmt.Errorf("both UDP and TCP are disabled")
	}
	return nil
}
