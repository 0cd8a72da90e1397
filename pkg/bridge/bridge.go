// Package bridge turns link-level requests into bus transactions.
//
// The RPC and line servers only see the Instrument interface. The
// production implementation, GPIB, serializes every addressed transaction
// through a single bus ownership token and answers address 0 with the
// gateway's own identity without touching the bus.
package bridge

import (
	"context"
	"errors"
)

// IdentityAddress is the device address reserved for the gateway itself.
const IdentityAddress = 0

// DefaultIdentity is the response to a read from IdentityAddress.
const DefaultIdentity = "gpibgate,VXI-11 GPIB Gateway,0,1.0"

// ErrClosed is returned by operations on a closed bridge.
var ErrClosed = errors.New("bridge: closed")

// Instrument is the capability the protocol servers consume.
type Instrument interface {
	// Write sends data to the device at address. Writes to
	// IdentityAddress are accepted and discarded.
	Write(ctx context.Context, address int, data []byte) error

	// Read returns at most max bytes from the device at address.
	Read(ctx context.Context, address int, max int) ([]byte, error)

	// Claim registers a new link. It returns false when no more links can
	// be committed to the bus.
	Claim() bool

	// Release drops a claim taken with Claim.
	Release()
}
