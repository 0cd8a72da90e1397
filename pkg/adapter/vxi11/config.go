package vxi11

import (
	"fmt"
	"time"
)

// MaxRecvSizeLimit is the largest MaxRecvSize accepted.
const MaxRecvSizeLimit = 16 << 20

// Config configures the VXI-11 core channel server.
//
// Connections and links are bounded separately. MaxConnections limits open
// TCP sockets (excess sockets are closed as soon as they are accepted);
// MaxLinks is the size of the link slot table and therefore the number of
// clients that can hold a link at the same time.
type Config struct {
	// Enabled controls whether the adapter is started.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the TCP port of the core channel.
	// Default: 9010
	Port int `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`

	// MaxLinks is the number of link slots. Link ids are slot indexes.
	// Default: 4
	MaxLinks int `mapstructure:"max_links" yaml:"max_links" validate:"min=0,max=256"`

	// MaxConnections bounds concurrent TCP connections. 0 means twice MaxLinks.
	MaxConnections int `mapstructure:"max_connections" yaml:"max_connections" validate:"min=0"`

	// MaxRecvSize is advertised in Create_LinkResp as the largest
	// DEVICE_WRITE chunk the gateway accepts.
	// Default: 1024
	MaxRecvSize uint32 `mapstructure:"max_recv_size" yaml:"max_recv_size" validate:"min=0,max=16777216"`

	// MaxReadSize caps the data returned by one DEVICE_READ.
	// Default: 1024
	MaxReadSize uint32 `mapstructure:"max_read_size" yaml:"max_read_size" validate:"min=0"`

	// IgnoreEndFlag forwards every DEVICE_WRITE chunk to the bus
	// immediately instead of accumulating chunks until the END flag.
	IgnoreEndFlag bool `mapstructure:"ignore_end_flag" yaml:"ignore_end_flag"`

	// CloseOnDestroy closes the socket after the DESTROY_LINK reply.
	// When false the client may create a new link on the same socket.
	CloseOnDestroy bool `mapstructure:"close_on_destroy" yaml:"close_on_destroy"`

	// Timeouts configures connection and bus timeouts.
	Timeouts TimeoutsConfig `mapstructure:"timeouts" yaml:"timeouts"`

	// ShutdownTimeout bounds the wait for active connections on shutdown.
	// Default: 10s
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"min=0"`

	// MetricsLogInterval is how often connection and link counts are logged.
	// 0 disables the log line.
	MetricsLogInterval time.Duration `mapstructure:"metrics_log_interval" yaml:"metrics_log_interval" validate:"min=0"`
}

// TimeoutsConfig groups the per-connection timeouts.
type TimeoutsConfig struct {
	// Read bounds reading one complete request once its first byte may arrive.
	// Default: 30s
	Read time.Duration `mapstructure:"read" yaml:"read" validate:"min=0"`

	// Write bounds sending one reply.
	// Default: 10s
	Write time.Duration `mapstructure:"write" yaml:"write" validate:"min=0"`

	// Idle closes connections with no request for this long. 0 disables it.
	Idle time.Duration `mapstructure:"idle" yaml:"idle" validate:"min=0"`

	// IO caps the io_timeout a client may request for one bus transaction.
	// Default: 10s
	IO time.Duration `mapstructure:"io" yaml:"io" validate:"min=0"`
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Port <= 0 {
		c.Port = 9010
	}
	if c.MaxLinks <= 0 {
		c.MaxLinks = 4
	}
	if c.MaxConnections == 0 {
		c.MaxConnections = 2 * c.MaxLinks
	}
	if c.MaxRecvSize == 0 {
		c.MaxRecvSize = 1024
	}
	if c.MaxReadSize == 0 {
		c.MaxReadSize = 1024
	}
	if c.Timeouts.Read == 0 {
		c.Timeouts.Read = 30 * time.Second
	}
	if c.Timeouts.Write == 0 {
		c.Timeouts.Write = 10 * time.Second
	}
	if c.Timeouts.IO == 0 {
		c.Timeouts.IO = 10 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

// Validate checks the rules struct tags cannot express. Call it after
// ApplyDefaults.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.MaxLinks < 1 {
		return fmt.Errorf("invalid MaxLinks %d: must be >= 1", c.MaxLinks)
	}
	if c.MaxConnections < c.MaxLinks {
		return fmt.Errorf("invalid MaxConnections %d: must be >= MaxLinks (%d)", c.MaxConnections, c.MaxLinks)
	}
	if c.MaxRecvSize < 64 || c.MaxRecvSize > MaxRecvSizeLimit {
		return fmt.Errorf("invalid MaxRecvSize %d: must be 64-%d", c.MaxRecvSize, MaxRecvSizeLimit)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid ShutdownTimeout %v: must be > 0", c.ShutdownTimeout)
	}
	return nil
}

// maxRecordSize bounds one reassembled request: a full write chunk plus
// the call header with maximum-size credentials.
func (c *Config) maxRecordSize() uint32 {
	return c.MaxRecvSize + 1024
}

// maxPendingWrite bounds data accumulated across chunks without END.
func (c *Config) maxPendingWrite() int {
	return int(c.MaxRecvSize) * 16
}
