// Package bus defines the Bus Access Gate: the boundary between the
// gateway and whatever drives the physical GPIB lines.
//
// A Gate performs complete addressed transactions. For a write it
// addresses the target as listener, sends the bytes with EOI on the last
// one and unaddresses the bus; for a read it addresses the target as
// talker, collects bytes until EOI or the size limit and unaddresses.
package bus

import (
	"context"
	"errors"
	"fmt"
)

// ============================================================================
// Standard Gate Errors
// ============================================================================

// Implementations wrap these with context:
//
//	return fmt.Errorf("read from %d: %w", addr, bus.ErrTimeout)
var (
	// ErrNotReady indicates the bus controller cannot be reached.
	ErrNotReady = errors.New("bus: controller not ready")

	// ErrClosed indicates the gate was closed.
	ErrClosed = errors.New("bus: gate closed")

	// ErrBusy indicates Claim was called while another holder owns the bus.
	ErrBusy = errors.New("bus: already claimed")

	// ErrNotClaimed indicates a transaction was attempted without Claim.
	ErrNotClaimed = errors.New("bus: not claimed")

	// ErrInvalidAddress indicates an address outside MinAddress..MaxAddress.
	ErrInvalidAddress = errors.New("bus: invalid address")

	// ErrNoDevice indicates nothing answered at the address.
	ErrNoDevice = errors.New("bus: no device at address")

	// ErrTimeout indicates the device did not complete the handshake in time.
	ErrTimeout = errors.New("bus: timeout")
)

// Primary address range usable for instruments. Address 0 is the
// controller itself, 31 is the unlisten/untalk code.
const (
	MinAddress = 1
	MaxAddress = 30
)

// Gate grants exclusive ownership of the shared bus and performs addressed
// transactions while owned.
//
// Claim and Release bracket exactly one transaction. Implementations must
// be safe for concurrent use but may reject overlapping claims with
// ErrBusy; serializing callers is the bridge's job.
type Gate interface {
	// Claim takes ownership of the bus, connecting to the controller first
	// if needed.
	Claim(ctx context.Context) error

	// Release gives up ownership. Calling it without a matching Claim is a no-op.
	Release()

	// Write sends data to the instrument at address.
	Write(ctx context.Context, address int, data []byte) error

	// Read collects at most max bytes from the instrument at address.
	Read(ctx context.Context, address int, max int) ([]byte, error)

	// Ready reports whether a Claim is expected to succeed.
	Ready() bool

	// Close releases the controller connection. Further calls fail with ErrClosed.
	Close() error
}

// ValidateAddress checks that address can be put on the bus.
func ValidateAddress(address int) error {
	if address < MinAddress || address > MaxAddress {
		return fmt.Errorf("%w: %d", ErrInvalidAddress, address)
	}
	return nil
}
