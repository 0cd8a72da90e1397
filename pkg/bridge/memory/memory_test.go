package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrument(t *testing.T) {
	ctx := context.Background()
	m := New("GW\n")

	out, err := m.Read(ctx, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, "GW\n", string(out))
	assert.Equal(t, 0, m.Transactions())

	require.NoError(t, m.Write(ctx, 3, []byte("*RST")))
	assert.Equal(t, [][]byte{[]byte("*RST")}, m.Writes(3))

	_, err = m.Read(ctx, 3, 100)
	assert.ErrorIs(t, err, ErrNoResponse)

	m.QueueResponse(3, []byte("1.234\n"))
	out, err = m.Read(ctx, 3, 3)
	require.NoError(t, err)
	assert.Equal(t, "1.2", string(out))

	m.SetFail(errors.New("bus down"))
	assert.Error(t, m.Write(ctx, 3, []byte("x")))
	assert.Equal(t, 4, m.Transactions())
}

func TestInstrumentClaims(t *testing.T) {
	m := New("GW")
	m.SetMaxClaims(1)

	assert.True(t, m.Claim())
	assert.False(t, m.Claim())
	m.Release()
	m.Release()
	assert.Equal(t, 0, m.Claims())
	assert.True(t, m.Claim())
	assert.Equal(t, 2, m.TotalClaims())
}
