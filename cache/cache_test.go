package cache

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	t.Run("load missing", func(t *testing.T) {
		store := NewMemoryStore()
		defer store.Close()

		_, err := store.Load(context.Background(), 42)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("save and load", func(t *testing.T) {
		store := NewMemoryStore()
		defer store.Close()

		require.NoError(t, store.Save(context.Background(), 42, []byte("artifact")))

		entry, err := store.Load(context.Background(), 42)
		require.NoError(t, err)
		assert.Equal(t, uint64(42), entry.Fingerprint)
		assert.Equal(t, []byte("artifact"), entry.Bytes)
		assert.False(t, entry.CreatedAt.IsZero())
	})

	t.Run("save overwrites", func(t *testing.T) {
		store := NewMemoryStore()
		defer store.Close()

		require.NoError(t, store.Save(context.Background(), 42, []byte("old")))
		require.NoError(t, store.Save(context.Background(), 42, []byte("new")))

		entry, err := store.Load(context.Background(), 42)
		require.NoError(t, err)
		assert.Equal(t, []byte("new"), entry.Bytes)
	})

	t.Run("loaded bytes are a copy", func(t *testing.T) {
		store := NewMemoryStore()
		defer store.Close()

		require.NoError(t, store.Save(context.Background(), 1, []byte("stable")))

		entry, err := store.Load(context.Background(), 1)
		require.NoError(t, err)
		entry.Bytes[0] = 'X'

		again, err := store.Load(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, []byte("stable"), again.Bytes)
	})

	t.Run("clear", func(t *testing.T) {
		store := NewMemoryStore()
		defer store.Close()

		require.NoError(t, store.Save(context.Background(), 7, []byte("x")))
		require.NoError(t, store.Clear(context.Background(), 7))

		_, err := store.Load(context.Background(), 7)
		assert.ErrorIs(t, err, ErrNotFound)

		// Clearing again is a no-op.
		assert.NoError(t, store.Clear(context.Background(), 7))
	})

	t.Run("cancelled context", func(t *testing.T) {
		store := NewMemoryStore()
		defer store.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.Error(t, store.Save(ctx, 1, []byte("x")))
		_, err := store.Load(ctx, 1)
		assert.Error(t, err)
	})
}

func TestSQLiteStore(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cache", "artifacts.db")

		store, err := NewSQLiteStore(path)
		require.NoError(t, err)
		defer store.Close()

		_, err = store.Load(context.Background(), 99)
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, store.Save(context.Background(), 99, []byte("payload")))

		entry, err := store.Load(context.Background(), 99)
		require.NoError(t, err)
		assert.Equal(t, uint64(99), entry.Fingerprint)
		assert.Equal(t, []byte("payload"), entry.Bytes)
	})

	t.Run("overwrite and clear", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "artifacts.db")

		store, err := NewSQLiteStore(path)
		require.NoError(t, err)
		defer store.Close()

		require.NoError(t, store.Save(context.Background(), 5, []byte("v1")))
		require.NoError(t, store.Save(context.Background(), 5, []byte("v2")))

		entry, err := store.Load(context.Background(), 5)
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), entry.Bytes)

		require.NoError(t, store.Clear(context.Background(), 5))
		_, err = store.Load(context.Background(), 5)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("survives reopen", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "artifacts.db")

		store, err := NewSQLiteStore(path)
		require.NoError(t, err)
		require.NoError(t, store.Save(context.Background(), 11, []byte("durable")))
		require.NoError(t, store.Close())

		reopened, err := NewSQLiteStore(path)
		require.NoError(t, err)
		defer reopened.Close()

		entry, err := reopened.Load(context.Background(), 11)
		require.NoError(t, err)
		assert.Equal(t, []byte("durable"), entry.Bytes)
	})

	t.Run("large fingerprint", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "artifacts.db")

		store, err := NewSQLiteStore(path)
		require.NoError(t, err)
		defer store.Close()

		// Values above the int64 range must round-trip through the
		// signed column unchanged.
		fp := uint64(0xFFFFFFFFFFFFFFFE)
		require.NoError(t, store.Save(context.Background(), fp, []byte("hi")))

		entry, err := store.Load(context.Background(), fp)
		require.NoError(t, err)
		assert.Equal(t, fp, entry.Fingerprint)
	})
}
