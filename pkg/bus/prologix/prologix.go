// Package prologix drives a GPIB bus through a Prologix-compatible
// Ethernet controller (Prologix GPIB-ETHERNET, AR488 in Ethernet mode).
//
// The controller accepts "++" commands and raw data on one TCP stream,
// by default on port 1234. Data bytes that collide with the command
// syntax (CR, LF, ESC and '+') are escaped with ESC.
package prologix

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/marmos91/gpibgate/internal/logger"
	"github.com/marmos91/gpibgate/pkg/bus"
)

const esc = 0x1B

// Config holds the controller connection settings.
type Config struct {
	// Address is the controller's host:port.
	Address string `mapstructure:"address" validate:"required,hostname_port"`

	// DialTimeout bounds the TCP connect.
	DialTimeout time.Duration `mapstructure:"dial_timeout"`

	// IOTimeout bounds each controller command and the wait for read data.
	IOTimeout time.Duration `mapstructure:"io_timeout"`

	// RetryInterval is how long Ready reports false after a failed dial.
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

func (c *Config) applyDefaults() {
	if c.DialTimeout == 0 {
		c.DialTimeout = 3 * time.Second
	}
	if c.IOTimeout == 0 {
		c.IOTimeout = 3 * time.Second
	}
	if c.RetryInterval == 0 {
		c.RetryInterval = 5 * time.Second
	}
}

// initCommands put the controller into controller mode with manual
// read-after-write, EOI on the last byte and no appended terminator.
var initCommands = []string{
	"++mode 1",
	"++auto 0",
	"++eoi 1",
	"++eos 3",
	"++read_tmo_ms 3000",
}

// Gate is a bus.Gate backed by a Prologix controller.
type Gate struct {
	config Config

	mu         sync.Mutex
	conn       net.Conn
	reader     *bufio.Reader
	claimed    bool
	closed     bool
	lastDialAt time.Time
	lastDialOK bool
	address    int
}

// New creates a gate. The controller is dialed lazily on the first Claim.
func New(config Config) *Gate {
	config.applyDefaults()
	return &Gate{config: config, lastDialOK: true, address: -1}
}

func (g *Gate) connect(ctx context.Context) error {
	if g.conn != nil {
		return nil
	}

	dialer := net.Dialer{Timeout: g.config.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", g.config.Address)
	g.lastDialAt = time.Now()
	g.lastDialOK = err == nil
	if err != nil {
		return fmt.Errorf("dial controller %s: %w (%v)", g.config.Address, bus.ErrNotReady, err)
	}

	g.conn = conn
	g.reader = bufio.NewReader(conn)
	g.address = -1

	for _, cmd := range initCommands {
		if err := g.send([]byte(cmd)); err != nil {
			g.disconnect()
			return fmt.Errorf("initialize controller: %w", err)
		}
	}

	logger.Info("Connected to Prologix controller at %s", g.config.Address)
	return nil
}

func (g *Gate) disconnect() {
	if g.conn != nil {
		_ = g.conn.Close()
	}
	g.conn = nil
	g.reader = nil
	g.address = -1
}

// send writes one controller line terminated by LF.
func (g *Gate) send(line []byte) error {
	if err := g.conn.SetWriteDeadline(time.Now().Add(g.config.IOTimeout)); err != nil {
		return err
	}
	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')
	_, err := g.conn.Write(buf)
	return err
}

func (g *Gate) selectAddress(address int) error {
	if g.address == address {
		return nil
	}
	if err := g.send(fmt.Appendf(nil, "++addr %d", address)); err != nil {
		return err
	}
	g.address = address
	return nil
}

// Escape prefixes CR, LF, ESC and '+' with ESC so the controller forwards
// them to the instrument instead of interpreting them.
func Escape(data []byte) []byte {
	out := make([]byte, 0, len(data)+8)
	for _, b := range data {
		switch b {
		case '\r', '\n', esc, '+':
			out = append(out, esc)
		}
		out = append(out, b)
	}
	return out
}

func (g *Gate) Claim(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return bus.ErrClosed
	}
	if g.claimed {
		return bus.ErrBusy
	}
	if err := g.connect(ctx); err != nil {
		return err
	}

	g.claimed = true
	return nil
}

func (g *Gate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.claimed = false
}

func (g *Gate) ready() error {
	if g.closed {
		return bus.ErrClosed
	}
	if !g.claimed {
		return bus.ErrNotClaimed
	}
	if g.conn == nil {
		return bus.ErrNotReady
	}
	return nil
}

// fail drops the connection after an I/O error so the next Claim redials.
func (g *Gate) fail(op string, address int, err error) error {
	g.disconnect()
	if errors.Is(err, os.ErrDeadlineExceeded) {
		err = bus.ErrTimeout
	}
	return fmt.Errorf("%s at %d: %w", op, address, err)
}

func (g *Gate) Write(ctx context.Context, address int, data []byte) error {
	if err := bus.ValidateAddress(address); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.ready(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := g.selectAddress(address); err != nil {
		return g.fail("address", address, err)
	}
	if err := g.send(Escape(data)); err != nil {
		return g.fail("write", address, err)
	}
	return nil
}

func (g *Gate) Read(ctx context.Context, address int, max int) ([]byte, error) {
	if err := bus.ValidateAddress(address); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.ready(); err != nil {
		return nil, err
	}

	if err := g.selectAddress(address); err != nil {
		return nil, g.fail("address", address, err)
	}
	// anything still buffered belongs to an earlier, abandoned response
	if _, err := g.reader.Discard(g.reader.Buffered()); err != nil {
		return nil, g.fail("read", address, err)
	}
	if err := g.send([]byte("++read eoi")); err != nil {
		return nil, g.fail("read", address, err)
	}

	deadline := time.Now().Add(g.config.IOTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := g.conn.SetReadDeadline(deadline); err != nil {
		return nil, g.fail("read", address, err)
	}

	// The controller forwards instrument bytes until EOI; the instrument's
	// own terminator (LF) marks the end of the response on the stream.
	// Bytes past max are consumed and dropped so the stream stays aligned
	// on response boundaries.
	var out bytes.Buffer
	for {
		b, err := g.reader.ReadByte()
		if err != nil {
			if out.Len() > 0 && errors.Is(err, os.ErrDeadlineExceeded) {
				// partial response: the rest may still arrive, so the
				// stream cannot be reused
				logger.Debug("Partial response from %d after %d bytes, resetting controller connection", address, out.Len())
				g.disconnect()
				return out.Bytes(), nil
			}
			return nil, g.fail("read", address, err)
		}
		if out.Len() < max {
			out.WriteByte(b)
		}
		if b == '\n' {
			break
		}
	}

	return out.Bytes(), nil
}

func (g *Gate) Ready() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return false
	}
	if g.conn != nil || g.lastDialOK {
		return true
	}
	return time.Since(g.lastDialAt) >= g.config.RetryInterval
}

func (g *Gate) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.closed = true
	g.disconnect()
	return nil
}

var _ bus.Gate = (*Gate)(nil)
