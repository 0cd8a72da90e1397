package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/gpibgate/internal/logger"
	"github.com/marmos91/gpibgate/pkg/bus"
	"github.com/marmos91/gpibgate/pkg/metrics"
)

// Config configures a GPIB bridge.
type Config struct {
	// Identity is returned for reads from IdentityAddress. A trailing
	// newline is added when missing.
	Identity string

	// MaxClaims bounds the outstanding link claims. 0 means unbounded;
	// the link table of each server is the real limit then.
	MaxClaims int
}

// GPIB is the production Instrument backed by a bus.Gate.
//
// Links claim the bridge for their whole lifetime, but the bus itself is
// owned only for the duration of one transaction: each Write or Read takes
// the ownership token, claims the gate, transacts, releases the gate and
// returns the token.
type GPIB struct {
	gate     bus.Gate
	identity []byte
	config   Config
	metrics  metrics.BusMetrics

	// token is the bus ownership token: a one-slot semaphore so that
	// waiting honors context cancellation.
	token chan struct{}

	mu     sync.Mutex
	claims int
	closed bool
}

// New creates a bridge over gate. A nil metrics uses the no-op implementation.
func New(gate bus.Gate, config Config, m metrics.BusMetrics) *GPIB {
	if config.Identity == "" {
		config.Identity = DefaultIdentity
	}
	identity := []byte(config.Identity)
	if identity[len(identity)-1] != '\n' {
		identity = append(identity, '\n')
	}
	if m == nil {
		m = metrics.NewNoopBusMetrics()
	}

	return &GPIB{
		gate:     gate,
		identity: identity,
		config:   config,
		metrics:  m,
		token:    make(chan struct{}, 1),
	}
}

// Claim succeeds unless the bridge is closed, the gate reports its
// controller unreachable, or MaxClaims links are already committed.
func (b *GPIB) Claim() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || !b.gate.Ready() {
		return false
	}
	if b.config.MaxClaims > 0 && b.claims >= b.config.MaxClaims {
		return false
	}

	b.claims++
	b.metrics.SetClaims(b.claims)
	return true
}

func (b *GPIB) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.claims > 0 {
		b.claims--
	}
	b.metrics.SetClaims(b.claims)
}

// Claims returns the number of outstanding link claims.
func (b *GPIB) Claims() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.claims
}

// Ready reports whether the underlying gate can be claimed.
func (b *GPIB) Ready() error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if !b.gate.Ready() {
		return bus.ErrNotReady
	}
	return nil
}

// acquire takes the ownership token and claims the gate. The returned
// function undoes both and must be called exactly once.
func (b *GPIB) acquire(ctx context.Context) (func(), error) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	start := time.Now()
	select {
	case b.token <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	b.metrics.RecordTokenWait(time.Since(start))

	if err := b.gate.Claim(ctx); err != nil {
		<-b.token
		return nil, fmt.Errorf("claim bus: %w", err)
	}

	return func() {
		b.gate.Release()
		<-b.token
	}, nil
}

func (b *GPIB) Write(ctx context.Context, address int, data []byte) error {
	if address == IdentityAddress {
		return nil
	}

	release, err := b.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	start := time.Now()
	err = b.gate.Write(ctx, address, data)
	b.metrics.RecordTransaction("write", address, len(data), time.Since(start), err)
	if err != nil {
		logger.Debug("Bus write to %d failed: %v", address, err)
		return fmt.Errorf("write to %d: %w", address, err)
	}

	return nil
}

func (b *GPIB) Read(ctx context.Context, address int, max int) ([]byte, error) {
	if address == IdentityAddress {
		n := min(max, len(b.identity))
		return append([]byte{}, b.identity[:n]...), nil
	}

	release, err := b.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	data, err := b.gate.Read(ctx, address, max)
	b.metrics.RecordTransaction("read", address, len(data), time.Since(start), err)
	if err != nil {
		logger.Debug("Bus read from %d failed: %v", address, err)
		return nil, fmt.Errorf("read from %d: %w", address, err)
	}

	return data, nil
}

// Close closes the bridge and its gate. In-flight transactions finish;
// later ones fail with ErrClosed.
func (b *GPIB) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	return b.gate.Close()
}

var _ Instrument = (*GPIB)(nil)
