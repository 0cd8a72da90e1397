package prologix

import (
	"bufio"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/gpibgate/pkg/bus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeController records every line it receives and answers "++read"
// with the configured response.
type fakeController struct {
	listener net.Listener
	response string

	mu    sync.Mutex
	lines []string
}

func newFakeController(t *testing.T, response string) *fakeController {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	fc := &fakeController{listener: l, response: response}
	go fc.serve()
	t.Cleanup(func() { _ = l.Close() })
	return fc
}

func (fc *fakeController) serve() {
	for {
		conn, err := fc.listener.Accept()
		if err != nil {
			return
		}
		go func(c net.Conn) {
			defer c.Close()
			scanner := bufio.NewScanner(c)
			for scanner.Scan() {
				line := scanner.Text()
				fc.mu.Lock()
				fc.lines = append(fc.lines, line)
				fc.mu.Unlock()
				if line == "++read eoi" {
					_, _ = c.Write([]byte(fc.response))
				}
			}
		}(conn)
	}
}

func (fc *fakeController) received() []string {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return append([]string{}, fc.lines...)
}

func (fc *fakeController) waitLines(t *testing.T, n int) []string {
	t.Helper()
	require.Eventually(t, func() bool { return len(fc.received()) >= n }, 2*time.Second, 10*time.Millisecond)
	return fc.received()
}

func TestEscape(t *testing.T) {
	assert.Equal(t, []byte("*IDN?"), Escape([]byte("*IDN?")))
	assert.Equal(t,
		[]byte{'A', esc, '+', 'B', esc, '\r', esc, '\n', esc, esc},
		Escape([]byte{'A', '+', 'B', '\r', '\n', esc}))
}

func TestGateWriteAndRead(t *testing.T) {
	fc := newFakeController(t, "ACME,PSU,1,2\n")
	g := New(Config{Address: fc.listener.Addr().String(), IOTimeout: time.Second})
	defer g.Close()

	ctx := context.Background()
	require.True(t, g.Ready())
	require.NoError(t, g.Claim(ctx))

	require.NoError(t, g.Write(ctx, 7, []byte("*IDN?")))
	out, err := g.Read(ctx, 7, 256)
	require.NoError(t, err)
	assert.Equal(t, "ACME,PSU,1,2\n", string(out))
	g.Release()

	lines := fc.waitLines(t, len(initCommands)+3)
	assert.Equal(t, initCommands, lines[:len(initCommands)])
	// the address is selected once and reused for the read
	assert.Equal(t, []string{"++addr 7", "*IDN?", "++read eoi"}, lines[len(initCommands):])
}

func TestGateReadHonorsMax(t *testing.T) {
	fc := newFakeController(t, "0123456789\n")
	g := New(Config{Address: fc.listener.Addr().String(), IOTimeout: time.Second})
	defer g.Close()

	ctx := context.Background()
	require.NoError(t, g.Claim(ctx))
	defer g.Release()

	out, err := g.Read(ctx, 3, 4)
	require.NoError(t, err)
	assert.Equal(t, "0123", string(out))

	// the truncated tail must not surface as the next device's answer
	out, err = g.Read(ctx, 5, 100)
	require.NoError(t, err)
	assert.Equal(t, "0123456789\n", string(out))
}

func TestGatePartialResponseResetsConnection(t *testing.T) {
	fc := newFakeController(t, "partial")
	g := New(Config{Address: fc.listener.Addr().String(), IOTimeout: 200 * time.Millisecond})
	defer g.Close()

	ctx := context.Background()
	require.NoError(t, g.Claim(ctx))

	out, err := g.Read(ctx, 3, 100)
	require.NoError(t, err)
	assert.Equal(t, "partial", string(out))

	// the stream was dropped, so the gate needs a fresh claim
	assert.ErrorIs(t, g.Write(ctx, 3, []byte("x")), bus.ErrNotReady)
	g.Release()

	require.NoError(t, g.Claim(ctx))
	defer g.Release()

	out, err = g.Read(ctx, 3, 100)
	require.NoError(t, err)
	assert.Equal(t, "partial", string(out))

	lines := fc.waitLines(t, 2*(len(initCommands)+2))
	assert.Equal(t, initCommands, lines[len(initCommands)+2:2*len(initCommands)+2])
}

func TestGateRequiresClaim(t *testing.T) {
	fc := newFakeController(t, "")
	g := New(Config{Address: fc.listener.Addr().String()})
	defer g.Close()

	assert.ErrorIs(t, g.Write(context.Background(), 7, []byte("x")), bus.ErrNotClaimed)
	assert.ErrorIs(t, g.Write(context.Background(), 0, []byte("x")), bus.ErrInvalidAddress)
}

func TestGateUnreachableController(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	g := New(Config{Address: addr, DialTimeout: 200 * time.Millisecond, RetryInterval: time.Hour})
	defer g.Close()

	assert.True(t, g.Ready())
	assert.ErrorIs(t, g.Claim(context.Background()), bus.ErrNotReady)
	assert.False(t, g.Ready())
}

func TestGateClosed(t *testing.T) {
	g := New(Config{Address: "127.0.0.1:1"})
	require.NoError(t, g.Close())
	assert.False(t, g.Ready())
	assert.ErrorIs(t, g.Claim(context.Background()), bus.ErrClosed)
}
