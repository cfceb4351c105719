package checkpoints

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradkit/gradkit/pkg/errors"
)

func TestLocalStore(t *testing.T) {
	newStore := func(t *testing.T) *LocalStore {
		store, err := NewLocalStore(filepath.Join(t.TempDir(), "checkpoints"))
		require.NoError(t, err)
		return store
	}

	t.Run("save and load round trip", func(t *testing.T) {
		store := newStore(t)
		state := map[string]any{"count": 3.0, "total": 6.0}
		require.NoError(t, store.Save(context.Background(), "epoch-3", state))
		loaded, err := store.Load(context.Background(), "epoch-3")
		require.NoError(t, err)
		assert.Equal(t, state, loaded)
	})

	t.Run("save replaces an existing checkpoint", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Save(context.Background(), "latest", map[string]any{"epoch": 1.0}))
		require.NoError(t, store.Save(context.Background(), "latest", map[string]any{"epoch": 2.0}))
		loaded, err := store.Load(context.Background(), "latest")
		require.NoError(t, err)
		assert.Equal(t, 2.0, loaded["epoch"])
	})

	t.Run("missing checkpoint is a not-found error", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Load(context.Background(), "missing")
		assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
	})

	t.Run("names with path separators are rejected", func(t *testing.T) {
		store := newStore(t)
		assert.Error(t, store.Save(context.Background(), "../escape", map[string]any{}))
		assert.Error(t, store.Save(context.Background(), "", map[string]any{}))
	})

	t.Run("list returns sorted names", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Save(context.Background(), "b", map[string]any{}))
		require.NoError(t, store.Save(context.Background(), "a", map[string]any{}))
		names, err := store.List(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, names)
	})

	t.Run("list skips foreign files", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Save(context.Background(), "a", map[string]any{}))
		require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "notes.txt"), []byte("x"), 0o644))
		names, err := store.List(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, names)
	})

	t.Run("corrupt file is a decode error", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "bad.json"), []byte("{"), 0o644))
		_, err := store.Load(context.Background(), "bad")
		assert.True(t, errors.Is(err, "CHECKPOINT_DECODE"))
	})
}
