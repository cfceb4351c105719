package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradkit/gradkit/internal/checkpoints"
	"github.com/gradkit/gradkit/internal/engine"
	"github.com/gradkit/gradkit/internal/meters"
	"github.com/gradkit/gradkit/internal/testkit"
)

func newSaver(t *testing.T, freq int) (*CheckpointSaver, *checkpoints.LocalStore) {
	t.Helper()
	store, err := checkpoints.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	saver, err := NewCheckpointSaver(store, CheckpointSaverOptions{Freq: freq})
	require.NoError(t, err)
	return saver, store
}

func TestCheckpointSaver(t *testing.T) {
	t.Run("negative frequency is rejected", func(t *testing.T) {
		store, err := checkpoints.NewLocalStore(t.TempDir())
		require.NoError(t, err)
		_, err = NewCheckpointSaver(store, CheckpointSaverOptions{Freq: -1})
		assert.Error(t, err)
	})

	t.Run("duplicate module names are rejected", func(t *testing.T) {
		saver, _ := newSaver(t, 1)
		require.NoError(t, saver.Register("meter", meters.NewAverageMeter()))
		assert.Error(t, saver.Register("meter", meters.NewAverageMeter()))
	})

	t.Run("save requires an attached engine", func(t *testing.T) {
		saver, _ := newSaver(t, 1)
		assert.Error(t, saver.Save(context.Background()))
	})

	t.Run("saves on epoch completed", func(t *testing.T) {
		saver, store := newSaver(t, 1)
		meter := meters.NewAverageMeterFrom(6.0, 3)
		require.NoError(t, saver.Register("loss_meter", meter))

		eng := testkit.NewFakeEngine(2)
		require.NoError(t, saver.Attach(eng))
		eng.SetEpoch(0)
		eng.FireEvent(engine.TrainEpochCompleted)
		require.Empty(t, eng.HandlerErrors)

		names, err := store.List(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"epoch-0000", "latest"}, names)
	})

	t.Run("honors the epoch frequency", func(t *testing.T) {
		saver, store := newSaver(t, 2)
		eng := testkit.NewFakeEngine(4)
		require.NoError(t, saver.Attach(eng))

		for epoch := 0; epoch < 4; epoch++ {
			eng.SetEpoch(epoch)
			eng.FireEvent(engine.TrainEpochCompleted)
		}
		require.Empty(t, eng.HandlerErrors)

		names, err := store.List(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"epoch-0000", "epoch-0002", "latest"}, names)
	})

	t.Run("attaching twice is rejected", func(t *testing.T) {
		saver, _ := newSaver(t, 1)
		eng := testkit.NewFakeEngine(1)
		require.NoError(t, saver.Attach(eng))
		assert.Error(t, saver.Attach(eng))
	})

	t.Run("restore pushes state back into the modules", func(t *testing.T) {
		saver, _ := newSaver(t, 1)
		meter := meters.NewAverageMeterFrom(6.0, 3)
		require.NoError(t, saver.Register("loss_meter", meter))
		eng := testkit.NewFakeEngine(2)
		require.NoError(t, saver.Attach(eng))
		eng.SetEpoch(1)
		require.NoError(t, saver.Save(context.Background()))

		meter.Reset()
		require.NoError(t, saver.Restore(context.Background(), LatestCheckpointName))
		assert.True(t, meter.Equal(meters.NewAverageMeterFrom(6.0, 3)))
	})

	t.Run("restore fails on a missing module state", func(t *testing.T) {
		saver, store := newSaver(t, 1)
		require.NoError(t, store.Save(context.Background(), "broken", map[string]any{
			"modules": map[string]any{},
		}))
		require.NoError(t, saver.Register("loss_meter", meters.NewAverageMeter()))
		assert.Error(t, saver.Restore(context.Background(), "broken"))
	})

	t.Run("run id is stable per saver", func(t *testing.T) {
		saver, _ := newSaver(t, 1)
		assert.NotEmpty(t, saver.RunID())
		assert.Equal(t, saver.RunID(), saver.RunID())
	})
}
