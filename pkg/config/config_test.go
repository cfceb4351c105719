package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradkit/gradkit/internal/loops"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("empty path loads the defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, 1, cfg.Run.MaxEpochs)
		assert.Equal(t, "vanilla", cfg.Training.Loop)
		assert.Equal(t, "local", cfg.Checkpoint.Store)
	})

	t.Run("file values override the defaults", func(t *testing.T) {
		path := writeConfig(t, `
run:
  name: experiment-7
  max_epochs: 5
  seed: 123
training:
  loop: scaled
  clip_grad:
    kind: clip_grad_norm
    max_norm: 2.5
`)
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "experiment-7", cfg.Run.Name)
		assert.Equal(t, 5, cfg.Run.MaxEpochs)
		assert.Equal(t, int64(123), cfg.Run.Seed)
		assert.Equal(t, "scaled", cfg.Training.Loop)
		require.NotNil(t, cfg.Training.ClipGrad)
		assert.Equal(t, 2.5, cfg.Training.ClipGrad.MaxNorm)
	})

	t.Run("missing file errors", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("invalid max epochs is rejected", func(t *testing.T) {
		path := writeConfig(t, `
run:
  max_epochs: 0
`)
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("unknown loop kind is rejected", func(t *testing.T) {
		path := writeConfig(t, `
training:
  loop: mystery
`)
		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestBuildClipper(t *testing.T) {
	t.Run("nil config disables clipping", func(t *testing.T) {
		clipper, err := BuildClipper(nil)
		require.NoError(t, err)
		assert.Nil(t, clipper)
	})

	t.Run("value clipper with default", func(t *testing.T) {
		clipper, err := BuildClipper(&ClipGradConfig{Kind: ClipValue})
		require.NoError(t, err)
		assert.Equal(t, loops.NewValueClipper(loops.DefaultClipValue), clipper)
	})

	t.Run("norm clipper with defaults", func(t *testing.T) {
		clipper, err := BuildClipper(&ClipGradConfig{Kind: ClipNorm})
		require.NoError(t, err)
		assert.Equal(t, loops.NewNormClipper(loops.DefaultClipMaxNorm, loops.DefaultClipNormType), clipper)
	})

	t.Run("explicit parameters win", func(t *testing.T) {
		clipper, err := BuildClipper(&ClipGradConfig{Kind: ClipNorm, MaxNorm: 3, NormType: 1})
		require.NoError(t, err)
		assert.Equal(t, loops.NewNormClipper(3, 1), clipper)
	})

	t.Run("short kind names are aliases", func(t *testing.T) {
		clipper, err := BuildClipper(&ClipGradConfig{Kind: "value"})
		require.NoError(t, err)
		assert.Equal(t, loops.NewValueClipper(loops.DefaultClipValue), clipper)

		clipper, err = BuildClipper(&ClipGradConfig{Kind: "norm"})
		require.NoError(t, err)
		assert.Equal(t, loops.NewNormClipper(loops.DefaultClipMaxNorm, loops.DefaultClipNormType), clipper)
	})

	t.Run("unknown kind fails at construction", func(t *testing.T) {
		_, err := BuildClipper(&ClipGradConfig{Kind: "quantile"})
		assert.Error(t, err)
	})
}

func TestBuildTrainingLoop(t *testing.T) {
	t.Run("vanilla loop", func(t *testing.T) {
		loop, err := BuildTrainingLoop(TrainingConfig{Tag: "train", Loop: LoopVanilla}, BuildDeps{})
		require.NoError(t, err)
		assert.Equal(t, "train", loop.Tag())
	})

	t.Run("scaled loop with scaler defaults", func(t *testing.T) {
		loop, err := BuildTrainingLoop(TrainingConfig{Loop: LoopScaled}, BuildDeps{})
		require.NoError(t, err)
		assert.Equal(t, "train", loop.Tag())
	})

	t.Run("unknown kind fails at construction", func(t *testing.T) {
		_, err := BuildTrainingLoop(TrainingConfig{Loop: "mystery"}, BuildDeps{})
		assert.Error(t, err)
	})
}

func TestBuildStore(t *testing.T) {
	t.Run("local store", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "ckpt")
		store, err := BuildStore(context.Background(), CheckpointConfig{Store: StoreLocal, Dir: dir})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("unknown kind fails at construction", func(t *testing.T) {
		_, err := BuildStore(context.Background(), CheckpointConfig{Store: "tape"})
		assert.Error(t, err)
	})
}
