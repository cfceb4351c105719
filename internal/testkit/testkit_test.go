package testkit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradkit/gradkit/internal/engine"
)

func TestFakeEngine(t *testing.T) {
	t.Run("counters start before the first epoch", func(t *testing.T) {
		eng := NewFakeEngine(5)
		assert.Equal(t, -1, eng.Epoch())
		assert.Equal(t, -1, eng.Iteration())
		assert.Equal(t, 5, eng.MaxEpochs())
		eng.IncrementEpoch()
		eng.IncrementIteration()
		assert.Equal(t, 0, eng.Epoch())
		assert.Equal(t, 0, eng.Iteration())
	})

	t.Run("event bus dispatches to subscribed handlers", func(t *testing.T) {
		eng := NewFakeEngine(1)
		calls := 0
		eng.AddEventHandler(engine.TrainEpochStarted, handlerFunc(func(ctx context.Context) error {
			calls++
			return nil
		}))
		eng.FireEvent(engine.TrainEpochStarted)
		eng.FireEvent(engine.TrainEpochCompleted)
		assert.Equal(t, 1, calls)
		assert.Equal(t, []string{engine.TrainEpochStarted, engine.TrainEpochCompleted}, eng.FiredEvents)
	})

	t.Run("handler errors are collected", func(t *testing.T) {
		eng := NewFakeEngine(1)
		eng.AddEventHandler(engine.TrainEpochStarted, handlerFunc(func(ctx context.Context) error {
			return assert.AnError
		}))
		eng.FireEvent(engine.TrainEpochStarted)
		assert.Len(t, eng.HandlerErrors, 1)
	})

	t.Run("log metrics creates histories on demand", func(t *testing.T) {
		eng := NewFakeEngine(1)
		eng.LogMetrics(map[string]float64{"train/loss": 2.0}, engine.EpochStep(0))
		require.True(t, eng.HasHistory("train/loss"))
		h, err := eng.GetHistory("train/loss")
		require.NoError(t, err)
		assert.False(t, h.IsEmpty())
		_, err = eng.GetHistory("missing")
		assert.Error(t, err)
	})
}

func TestDummyModel(t *testing.T) {
	t.Run("losses replay in order and repeat the last one", func(t *testing.T) {
		model := NewDummyModel(2, 3.0, 1.0)
		out, err := model.Forward(context.Background(), engine.Batch{})
		require.NoError(t, err)
		assert.Equal(t, 3.0, out[engine.LossKey])
		out, _ = model.Forward(context.Background(), engine.Batch{})
		assert.Equal(t, 1.0, out[engine.LossKey])
		out, _ = model.Forward(context.Background(), engine.Batch{})
		assert.Equal(t, 1.0, out[engine.LossKey])
	})

	t.Run("set grad enabled returns the prior value", func(t *testing.T) {
		model := NewDummyModel(1, 1.0)
		assert.True(t, model.SetGradEnabled(false))
		assert.False(t, model.SetGradEnabled(true))
	})

	t.Run("backward fails with gradients disabled", func(t *testing.T) {
		model := NewDummyModel(1, 1.0)
		model.SetGradEnabled(false)
		assert.Error(t, model.Backward(context.Background(), engine.LossKey, 1))
	})

	t.Run("zero grad with set to none releases the buffers", func(t *testing.T) {
		model := NewDummyModel(2, 1.0)
		optimizer := NewDummyOptimizer(model)
		optimizer.ZeroGrad(true)
		assert.Nil(t, model.Parameters()[0].Grad)
		optimizer.ZeroGrad(false)
		assert.Equal(t, []float64{0, 0}, model.Parameters()[0].Grad)
	})
}

func TestDummyDataSource(t *testing.T) {
	t.Run("iterates the configured number of batches", func(t *testing.T) {
		ds := NewDummyDataSource(3, 2)
		it, err := ds.Loader("train", nil)
		require.NoError(t, err)
		count := 0
		for it.Next() {
			assert.Len(t, it.Batch()["input"], 2)
			count++
		}
		assert.Equal(t, 3, count)
		assert.NoError(t, it.Err())
		assert.Equal(t, []string{"train"}, ds.LoaderCalls)
	})

	t.Run("loader error propagates", func(t *testing.T) {
		ds := &DummyDataSource{LoaderErr: assert.AnError}
		_, err := ds.Loader("train", nil)
		assert.Error(t, err)
	})
}

// handlerFunc is a minimal event handler for bus tests.
type handlerFunc func(ctx context.Context) error

func (f handlerFunc) Handle(ctx context.Context) error {
	return f(ctx)
}

func (f handlerFunc) Equal(other engine.EventHandler) bool {
	return false
}
