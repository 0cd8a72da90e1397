// Package testing provides a conformance suite run against every
// settings.Store implementation.
package testing

import (
	"context"
	"testing"

	"github.com/marmos91/gpibgate/pkg/store/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StoreFactory creates a fresh, empty store for one subtest.
type StoreFactory func(t *testing.T) settings.Store

// RunStoreTests runs the conformance suite.
func RunStoreTests(t *testing.T, factory StoreFactory) {
	t.Run("GetMissing", func(t *testing.T) {
		s := factory(t)
		_, err := s.Get(context.Background(), "default")
		assert.ErrorIs(t, err, settings.ErrNotFound)
	})

	t.Run("PutGet", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()
		want := settings.BusSettings{Address: 22, AutoRead: false, EOS: settings.EOSCRLF}

		require.NoError(t, s.Put(ctx, "default", want))
		got, err := s.Get(ctx, "default")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("Overwrite", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()

		require.NoError(t, s.Put(ctx, "p", settings.BusSettings{Address: 1}))
		require.NoError(t, s.Put(ctx, "p", settings.BusSettings{Address: 2, EOS: settings.EOSNone}))
		got, err := s.Get(ctx, "p")
		require.NoError(t, err)
		assert.Equal(t, 2, got.Address)
		assert.Equal(t, settings.EOSNone, got.EOS)
	})

	t.Run("KeysAreIndependent", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()

		require.NoError(t, s.Put(ctx, "a", settings.BusSettings{Address: 3}))
		_, err := s.Get(ctx, "b")
		assert.ErrorIs(t, err, settings.ErrNotFound)
	})

	t.Run("RejectsInvalid", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()

		assert.ErrorIs(t, s.Put(ctx, "x", settings.BusSettings{Address: 31}), settings.ErrInvalid)
		assert.ErrorIs(t, s.Put(ctx, "x", settings.BusSettings{Address: 1, EOS: 9}), settings.ErrInvalid)
		_, err := s.Get(ctx, "x")
		assert.ErrorIs(t, err, settings.ErrNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()

		require.NoError(t, s.Put(ctx, "d", settings.Defaults()))
		require.NoError(t, s.Delete(ctx, "d"))
		require.NoError(t, s.Delete(ctx, "d"))
		_, err := s.Get(ctx, "d")
		assert.ErrorIs(t, err, settings.ErrNotFound)
	})

	t.Run("CancelledContext", func(t *testing.T) {
		s := factory(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.ErrorIs(t, s.Put(ctx, "c", settings.Defaults()), context.Canceled)
	})
}
