package adapter

import (
	"context"

	"github.com/marmos91/gpibgate/pkg/bridge"
)

// Adapter represents a network-facing protocol server managed by the
// GatewayServer.
//
// Each adapter speaks one protocol (VXI-11 core channel, port mapper,
// Prologix line protocol) and provides a unified interface for lifecycle
// management.
//
// Lifecycle:
//  1. Creation: Adapter is created with protocol-specific configuration
//  2. Instrument injection: adapters implementing InstrumentUser receive the
//     shared bridge before Serve()
//  3. Startup: Serve() starts the protocol server and blocks until shutdown
//  4. Shutdown: Stop() initiates graceful shutdown with timeout
//
// Thread safety:
// Implementations must be safe for concurrent use. Stop() may be called
// concurrently with Serve().
type Adapter interface {
	// Serve starts the protocol server and blocks until the context is
	// cancelled or an unrecoverable error occurs.
	//
	// When the context is cancelled, Serve must stop accepting new
	// connections, wait for active ones (with timeout) and return nil or
	// context.Canceled. Returning before cancellation is treated as fatal
	// by the GatewayServer.
	Serve(ctx context.Context) error

	// Stop initiates graceful shutdown. It must be idempotent and safe to
	// call concurrently with Serve(). ctx bounds the wait for active
	// connections.
	Stop(ctx context.Context) error

	// Protocol returns the human-readable protocol name for logging and metrics.
	Protocol() string

	// Port returns the port the adapter listens on. After Serve() has bound
	// its listener this is the actual port, which differs from the
	// configured one only when port 0 was requested.
	Port() int
}

// InstrumentUser is implemented by adapters that talk to instruments.
//
// SetInstrument is called exactly once by the GatewayServer before Serve().
type InstrumentUser interface {
	SetInstrument(inst bridge.Instrument)
}
