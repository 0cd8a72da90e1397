// Package sim implements an in-process bus populated with simulated
// instruments. It is the default gate when no hardware controller is
// configured, and doubles as a test double that counts transactions.
package sim

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/marmos91/gpibgate/pkg/bus"
)

// Config describes the simulated instruments.
type Config struct {
	// Instruments maps a bus address to the identity string the instrument
	// answers to *IDN?.
	Instruments map[int]string `mapstructure:"instruments"`
}

type instrument struct {
	identity string
	output   []byte
}

// Gate is a simulated bus. Every instrument answers *IDN? with its
// identity and echoes any other query (a line ending in '?'). Commands
// produce no output.
type Gate struct {
	mu           sync.Mutex
	instruments  map[int]*instrument
	claimed      bool
	closed       bool
	notReady     bool
	transactions int
	claims       int
}

// New creates a simulated bus.
func New(cfg Config) *Gate {
	g := &Gate{instruments: make(map[int]*instrument)}
	for addr, identity := range cfg.Instruments {
		g.instruments[addr] = &instrument{identity: identity}
	}
	return g
}

// SetReady toggles the controller reachability reported by Ready and Claim.
func (g *Gate) SetReady(ready bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.notReady = !ready
}

func (g *Gate) Claim(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	switch {
	case g.closed:
		return bus.ErrClosed
	case g.notReady:
		return bus.ErrNotReady
	case g.claimed:
		return bus.ErrBusy
	}

	g.claimed = true
	g.claims++
	return nil
}

func (g *Gate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.claimed = false
}

func (g *Gate) lookup(address int) (*instrument, error) {
	if g.closed {
		return nil, bus.ErrClosed
	}
	if !g.claimed {
		return nil, bus.ErrNotClaimed
	}
	if err := bus.ValidateAddress(address); err != nil {
		return nil, err
	}

	inst, ok := g.instruments[address]
	if !ok {
		return nil, fmt.Errorf("%w: %d", bus.ErrNoDevice, address)
	}
	return inst, nil
}

func (g *Gate) Write(ctx context.Context, address int, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	inst, err := g.lookup(address)
	if err != nil {
		return err
	}
	g.transactions++

	cmd := bytes.TrimSpace(data)
	switch {
	case bytes.EqualFold(cmd, []byte("*IDN?")):
		inst.output = []byte(inst.identity + "\n")
	case bytes.HasSuffix(cmd, []byte("?")):
		inst.output = append(append([]byte{}, cmd...), '\n')
	case bytes.EqualFold(cmd, []byte("*RST")), bytes.EqualFold(cmd, []byte("*CLS")):
		inst.output = nil
	}
	return nil
}

func (g *Gate) Read(ctx context.Context, address int, max int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	inst, err := g.lookup(address)
	if err != nil {
		return nil, err
	}
	g.transactions++

	if len(inst.output) == 0 {
		return nil, fmt.Errorf("read from %d: %w", address, bus.ErrTimeout)
	}

	n := min(max, len(inst.output))
	out := append([]byte{}, inst.output[:n]...)
	inst.output = inst.output[n:]
	return out, nil
}

func (g *Gate) Ready() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.closed && !g.notReady
}

func (g *Gate) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	return nil
}

// Transactions returns the number of addressed transactions performed.
func (g *Gate) Transactions() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.transactions
}

// Claims returns the number of successful Claim calls.
func (g *Gate) Claims() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.claims
}

// Claimed reports whether the bus is currently owned.
func (g *Gate) Claimed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.claimed
}

var _ bus.Gate = (*Gate)(nil)
