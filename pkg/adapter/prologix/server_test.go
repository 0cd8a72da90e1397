package prologix

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/marmos91/gpibgate/pkg/bridge/memory"
	"github.com/marmos91/gpibgate/pkg/store/settings"
	settingsmem "github.com/marmos91/gpibgate/pkg/store/settings/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIdentity = "gpibgate,test,0,1.0"

func startLineServer(t *testing.T, cfg Config, store settings.Store) (*Adapter, *memory.Instrument, string) {
	t.Helper()

	inst := memory.New(testIdentity)
	a := New(cfg, store)
	a.SetInstrument(inst)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.ServeListener(ctx, l) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("line server did not shut down")
		}
	})
	return a, inst, l.Addr().String()
}

type lineClient struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
}

func connect(t *testing.T, addr string) *lineClient {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &lineClient{t: t, conn: conn, reader: bufio.NewReader(conn)}
}

func (c *lineClient) send(line string) {
	c.t.Helper()
	_, err := c.conn.Write([]byte(line + "\r\n"))
	require.NoError(c.t, err)
}

func (c *lineClient) expect() string {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	line, err := c.reader.ReadString('\n')
	require.NoError(c.t, err)
	return strings.TrimRight(line, "\n")
}

// sync round-trips a query so every earlier line has been processed.
func (c *lineClient) sync() {
	c.t.Helper()
	c.send("++ver")
	require.Equal(c.t, DefaultVersion, c.expect())
}

func TestAddressCommand(t *testing.T) {
	_, _, addr := startLineServer(t, Config{}, settingsmem.New())
	c := connect(t, addr)

	c.send("++addr")
	assert.Equal(t, "1", c.expect())

	c.send("++addr 12")
	c.send("++addr")
	assert.Equal(t, "12", c.expect())

	c.send("++addr 31")
	assert.Contains(t, c.expect(), "Error:")
	c.send("++addr x")
	assert.Contains(t, c.expect(), "Error:")
	c.send("++addr")
	assert.Equal(t, "12", c.expect())
}

func TestAutoReadQuery(t *testing.T) {
	_, inst, addr := startLineServer(t, Config{}, settingsmem.New())
	inst.QueueResponse(5, []byte("ACME,DMM,1,2\n"))
	c := connect(t, addr)

	c.send("++addr 5")
	c.send("*IDN?")
	assert.Equal(t, "ACME,DMM,1,2", c.expect())
	assert.Equal(t, [][]byte{[]byte("*IDN?\n")}, inst.Writes(5))
}

func TestManualRead(t *testing.T) {
	_, inst, addr := startLineServer(t, Config{}, settingsmem.New())
	inst.QueueResponse(5, []byte("1.25\n"))
	c := connect(t, addr)

	c.send("++addr 5")
	c.send("++auto 0")
	c.send("++auto")
	assert.Equal(t, "0", c.expect())

	c.send("MEAS:VOLT?")
	c.sync()
	assert.Len(t, inst.Writes(5), 1)

	c.send("++read eoi")
	assert.Equal(t, "1.25", c.expect())
}

func TestIdentityAddress(t *testing.T) {
	_, inst, addr := startLineServer(t, Config{}, settingsmem.New())
	c := connect(t, addr)

	c.send("++addr 0")
	c.send("*IDN?")
	assert.Equal(t, testIdentity, c.expect())
	assert.Equal(t, 0, inst.Transactions())
}

func TestEOSTerminator(t *testing.T) {
	_, inst, addr := startLineServer(t, Config{}, settingsmem.New())
	c := connect(t, addr)

	c.send("++addr 3")
	c.send("++eos 0")
	c.send("*RST")
	c.send("++eos 3")
	c.send("*CLS")
	c.sync()

	assert.Equal(t, [][]byte{[]byte("*RST\r\n"), []byte("*CLS")}, inst.Writes(3))
}

func TestUnrecognizedCommand(t *testing.T) {
	_, _, addr := startLineServer(t, Config{}, settingsmem.New())
	c := connect(t, addr)

	c.send("++spoll")
	assert.Equal(t, "Unrecognized command", c.expect())
	c.send("++")
	assert.Equal(t, "Unrecognized command", c.expect())
}

func TestBridgeErrorKeepsSessionOpen(t *testing.T) {
	_, inst, addr := startLineServer(t, Config{}, settingsmem.New())
	c := connect(t, addr)

	inst.SetFail(errors.New("no listener"))
	c.send("++addr 4")
	c.send("*IDN?")
	assert.Equal(t, "Error: no listener", c.expect())

	c.sync()
}

func TestSaveAndRestoreSettings(t *testing.T) {
	store := settingsmem.New()
	_, _, addr := startLineServer(t, Config{Profile: "bench"}, store)

	c := connect(t, addr)
	c.send("++addr 9")
	c.send("++auto 0")
	c.send("++savecfg")
	c.sync()

	saved, err := store.Get(context.Background(), "bench")
	require.NoError(t, err)
	assert.Equal(t, settings.BusSettings{Address: 9, AutoRead: false, EOS: settings.EOSLF}, saved)

	c.send("++addr 2")
	c.send("++rst")
	c.send("++addr")
	assert.Equal(t, "9", c.expect())

	// a new client starts from the saved settings
	c2 := connect(t, addr)
	c2.send("++addr")
	assert.Equal(t, "9", c2.expect())
}

func TestClaimPerClient(t *testing.T) {
	a, inst, addr := startLineServer(t, Config{MaxConnections: 2}, settingsmem.New())

	c := connect(t, addr)
	c.sync()
	assert.Equal(t, 1, inst.Claims())

	require.NoError(t, c.conn.Close())
	require.Eventually(t, func() bool { return inst.Claims() == 0 && a.Connections() == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestBusRefusesClaim(t *testing.T) {
	_, inst, addr := startLineServer(t, Config{}, settingsmem.New())
	inst.SetMaxClaims(1)

	c1 := connect(t, addr)
	c1.sync()

	c2 := connect(t, addr)
	assert.Equal(t, "Error: bus not available", c2.expect())
}

func TestConnectionLimit(t *testing.T) {
	_, _, addr := startLineServer(t, Config{MaxConnections: 1}, settingsmem.New())

	c1 := connect(t, addr)
	c1.sync()

	c2 := connect(t, addr)
	assert.Equal(t, "Error: too many connections", c2.expect())
}

func TestStopBeforeServe(t *testing.T) {
	a := New(Config{}, settingsmem.New())
	a.SetInstrument(memory.New(testIdentity))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, a.Stop(ctx))

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- a.ServeListener(context.Background(), l) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		_ = l.Close()
		t.Fatal("ServeListener did not return after Stop")
	}
}
