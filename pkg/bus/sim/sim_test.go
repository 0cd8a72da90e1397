package sim

import (
	"context"
	"testing"

	"github.com/marmos91/gpibgate/pkg/bus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGate() *Gate {
	return New(Config{Instruments: map[int]string{5: "ACME,DMM100,0,1.0"}})
}

func TestGateIdentityQuery(t *testing.T) {
	ctx := context.Background()
	g := newGate()

	require.NoError(t, g.Claim(ctx))
	require.NoError(t, g.Write(ctx, 5, []byte("*idn?")))
	out, err := g.Read(ctx, 5, 1024)
	require.NoError(t, err)
	g.Release()

	assert.Equal(t, "ACME,DMM100,0,1.0\n", string(out))
	assert.Equal(t, 2, g.Transactions())
	assert.Equal(t, 1, g.Claims())
	assert.False(t, g.Claimed())
}

func TestGateEchoAndPartialRead(t *testing.T) {
	ctx := context.Background()
	g := newGate()

	require.NoError(t, g.Claim(ctx))
	defer g.Release()

	require.NoError(t, g.Write(ctx, 5, []byte("MEAS:VOLT?")))
	out, err := g.Read(ctx, 5, 4)
	require.NoError(t, err)
	assert.Equal(t, "MEAS", string(out))

	out, err = g.Read(ctx, 5, 100)
	require.NoError(t, err)
	assert.Equal(t, ":VOLT?\n", string(out))

	_, err = g.Read(ctx, 5, 100)
	assert.ErrorIs(t, err, bus.ErrTimeout)
}

func TestGateErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("RequiresClaim", func(t *testing.T) {
		g := newGate()
		assert.ErrorIs(t, g.Write(ctx, 5, []byte("x")), bus.ErrNotClaimed)
	})

	t.Run("RejectsDoubleClaim", func(t *testing.T) {
		g := newGate()
		require.NoError(t, g.Claim(ctx))
		assert.ErrorIs(t, g.Claim(ctx), bus.ErrBusy)
	})

	t.Run("NoDevice", func(t *testing.T) {
		g := newGate()
		require.NoError(t, g.Claim(ctx))
		assert.ErrorIs(t, g.Write(ctx, 9, []byte("x")), bus.ErrNoDevice)
	})

	t.Run("InvalidAddress", func(t *testing.T) {
		g := newGate()
		require.NoError(t, g.Claim(ctx))
		assert.ErrorIs(t, g.Write(ctx, 31, []byte("x")), bus.ErrInvalidAddress)
		assert.ErrorIs(t, g.Write(ctx, 0, []byte("x")), bus.ErrInvalidAddress)
	})

	t.Run("NotReady", func(t *testing.T) {
		g := newGate()
		g.SetReady(false)
		assert.False(t, g.Ready())
		assert.ErrorIs(t, g.Claim(ctx), bus.ErrNotReady)
	})

	t.Run("Closed", func(t *testing.T) {
		g := newGate()
		require.NoError(t, g.Close())
		assert.False(t, g.Ready())
		assert.ErrorIs(t, g.Claim(ctx), bus.ErrClosed)
	})
}
