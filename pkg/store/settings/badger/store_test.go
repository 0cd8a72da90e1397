package badger

import (
	"context"
	"testing"

	"github.com/marmos91/gpibgate/pkg/store/settings"
	storetesting "github.com/marmos91/gpibgate/pkg/store/settings/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBadgerStore(t *testing.T) {
	storetesting.RunStoreTests(t, func(t *testing.T) settings.Store {
		s, err := New(context.Background(), Config{DBPath: t.TempDir()})
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestBadgerStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := New(ctx, Config{DBPath: dir})
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "default", settings.BusSettings{Address: 9, AutoRead: true, EOS: settings.EOSLF}))
	require.NoError(t, s.Close())

	s, err = New(ctx, Config{DBPath: dir})
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, 9, got.Address)
	assert.True(t, got.AutoRead)
}

func TestBadgerStoreRequiresPath(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.Error(t, err)
}

func TestBadgerStoreInMemory(t *testing.T) {
	s, err := New(context.Background(), Config{InMemory: true})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put(context.Background(), "m", settings.Defaults()))
}
