package loops

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradkit/gradkit/internal/distributed"
	"github.com/gradkit/gradkit/internal/engine"
	"github.com/gradkit/gradkit/internal/events"
	"github.com/gradkit/gradkit/internal/histories"
	"github.com/gradkit/gradkit/internal/seed"
	"github.com/gradkit/gradkit/internal/testkit"
)

func newTrainSetup(losses ...float64) (*testkit.FakeEngine, *testkit.DummyModel, *testkit.DummyOptimizer) {
	model := testkit.NewDummyModel(2, losses...)
	optimizer := testkit.NewDummyOptimizer(model)
	eng := testkit.NewFakeEngine(3).
		WithModel(model).
		WithOptimizer(optimizer).
		WithDataSource(testkit.NewDummyDataSource(len(losses), 2))
	return eng, model, optimizer
}

func TestTrainingLoop(t *testing.T) {
	t.Run("counters advance over one epoch", func(t *testing.T) {
		eng, model, optimizer := newTrainSetup(1.0, 2.0, 3.0)
		loop := NewTrainingLoop(TrainingLoopOptions{})

		require.NoError(t, loop.Train(context.Background(), eng))
		assert.Equal(t, 0, eng.Epoch())
		assert.Equal(t, 2, eng.Iteration())
		assert.Equal(t, 3, model.BackwardCnt)
		assert.Equal(t, 3, optimizer.StepCnt)
		assert.Equal(t, 3, optimizer.ZeroGradCnt)
		assert.True(t, model.TrainMode)
	})

	t.Run("event sequence of one iteration", func(t *testing.T) {
		eng, _, _ := newTrainSetup(1.0)
		loop := NewTrainingLoop(TrainingLoopOptions{})

		require.NoError(t, loop.Train(context.Background(), eng))
		assert.Equal(t, []string{
			engine.TrainEpochStarted,
			engine.TrainIterationStarted,
			engine.TrainForwardCompleted,
			engine.TrainBackwardCompleted,
			engine.TrainIterationCompleted,
			engine.TrainEpochCompleted,
		}, eng.FiredEvents)
	})

	t.Run("loss history is auto registered and fed", func(t *testing.T) {
		eng, _, _ := newTrainSetup(4.0, 2.0)
		loop := NewTrainingLoop(TrainingLoopOptions{})

		require.NoError(t, loop.Train(context.Background(), eng))
		require.True(t, eng.HasHistory("train/loss"))
		h, err := eng.GetHistory("train/loss")
		require.NoError(t, err)
		scalar, ok := h.(*histories.ScalarHistory)
		require.True(t, ok)
		assert.True(t, scalar.IsComparable())
		last, err := scalar.GetLastValue()
		require.NoError(t, err)
		assert.InDelta(t, 3.0, last, 1e-12)
	})

	t.Run("an existing loss history is kept", func(t *testing.T) {
		eng, _, _ := newTrainSetup(4.0)
		existing := histories.NewMinScalarHistory("train/loss")
		existing.AddValue(1.5, 0)
		eng.AddHistory(existing)
		loop := NewTrainingLoop(TrainingLoopOptions{})

		require.NoError(t, loop.Train(context.Background(), eng))
		h, err := eng.GetHistory("train/loss")
		require.NoError(t, err)
		best, err := h.(*histories.ScalarHistory).GetBestValue()
		require.NoError(t, err)
		assert.Equal(t, 1.5, best)
	})

	t.Run("nan loss skips backward and step but completes the iteration", func(t *testing.T) {
		eng, model, optimizer := newTrainSetup(1.0, math.NaN(), 2.0)
		loop := NewTrainingLoop(TrainingLoopOptions{})

		require.NoError(t, loop.Train(context.Background(), eng))
		assert.Equal(t, 2, model.BackwardCnt)
		assert.Equal(t, 2, optimizer.StepCnt)
		assert.Equal(t, 2, eng.Iteration())

		fired := map[string]int{}
		for _, ev := range eng.FiredEvents {
			fired[ev]++
		}
		assert.Equal(t, 3, fired[engine.TrainIterationCompleted])
		assert.Equal(t, 3, fired[engine.TrainForwardCompleted])
		assert.Equal(t, 2, fired[engine.TrainBackwardCompleted])
	})

	t.Run("iteration started handlers see the previous gradients", func(t *testing.T) {
		eng, model, _ := newTrainSetup(1.0)
		leftover := []float64{7, 7}
		copy(model.Parameters()[0].Grad, leftover)
		var seen []float64
		eng.AddEventHandler(engine.TrainIterationStarted,
			events.NewFuncHandler("capture", func(ctx context.Context) error {
				seen = append([]float64(nil), model.Parameters()[0].Grad...)
				return nil
			}))
		loop := NewTrainingLoop(TrainingLoopOptions{})

		require.NoError(t, loop.Train(context.Background(), eng))
		assert.Equal(t, leftover, seen)
	})

	t.Run("an inf loss still runs backward and step", func(t *testing.T) {
		eng, model, optimizer := newTrainSetup(math.Inf(1))
		loop := NewTrainingLoop(TrainingLoopOptions{})

		require.NoError(t, loop.Train(context.Background(), eng))
		assert.Equal(t, 1, model.BackwardCnt)
		assert.Equal(t, 1, optimizer.StepCnt)
		assert.Contains(t, eng.FiredEvents, engine.TrainBackwardCompleted)
	})

	t.Run("a pass of only nan losses leaves the loss history empty", func(t *testing.T) {
		eng, _, _ := newTrainSetup(math.NaN())
		loop := NewTrainingLoop(TrainingLoopOptions{})

		require.NoError(t, loop.Train(context.Background(), eng))
		h, err := eng.GetHistory("train/loss")
		require.NoError(t, err)
		assert.True(t, h.IsEmpty())
	})

	t.Run("reseeds the generators per epoch and rank", func(t *testing.T) {
		eng, _, _ := newTrainSetup(1.0)
		reg := seed.NewRegistry()
		var got []int64
		require.NoError(t, reg.Add("capture", seed.SetterFunc(func(s int64) {
			got = append(got, s)
		})))
		loop := NewTrainingLoop(TrainingLoopOptions{Seeds: reg})

		require.NoError(t, loop.Train(context.Background(), eng))
		require.Len(t, got, 1)
		assert.Equal(t, seed.DeriveSeed(eng.RandomSeed(), 0, eng.MaxEpochs(), 0), got[0])
	})

	t.Run("clipper bounds the gradients before the step", func(t *testing.T) {
		eng, model, _ := newTrainSetup(10.0)
		loop := NewTrainingLoop(TrainingLoopOptions{Clipper: NewValueClipper(0.25)})

		require.NoError(t, loop.Train(context.Background(), eng))
		for _, g := range model.Parameters()[0].Grad {
			assert.LessOrEqual(t, math.Abs(g), 0.25)
		}
	})

	t.Run("forward errors abort the epoch", func(t *testing.T) {
		eng, model, _ := newTrainSetup(1.0)
		model.ForwardErr = assert.AnError
		loop := NewTrainingLoop(TrainingLoopOptions{})
		assert.Error(t, loop.Train(context.Background(), eng))
	})

	t.Run("loader errors abort the epoch", func(t *testing.T) {
		eng, _, _ := newTrainSetup(1.0)
		eng.WithDataSource(&testkit.DummyDataSource{LoaderErr: assert.AnError})
		loop := NewTrainingLoop(TrainingLoopOptions{})
		assert.Error(t, loop.Train(context.Background(), eng))
	})

	t.Run("cancellation stops the batch loop", func(t *testing.T) {
		eng, _, _ := newTrainSetup(1.0, 2.0)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		loop := NewTrainingLoop(TrainingLoopOptions{})
		assert.Error(t, loop.Train(ctx, eng))
	})

	t.Run("two epochs advance the epoch counter twice", func(t *testing.T) {
		eng, _, _ := newTrainSetup(1.0, 2.0)
		loop := NewTrainingLoop(TrainingLoopOptions{})
		require.NoError(t, loop.Train(context.Background(), eng))
		require.NoError(t, loop.Train(context.Background(), eng))
		assert.Equal(t, 1, eng.Epoch())
		assert.Equal(t, 3, eng.Iteration())
	})

	t.Run("multi worker epochs stay in lockstep", func(t *testing.T) {
		comms, err := distributed.NewLocalGroup(2)
		require.NoError(t, err)
		errs := make(chan error, 2)
		for _, comm := range comms {
			go func(comm *distributed.LocalCommunicator) {
				eng, _, _ := newTrainSetup(1.0, 2.0)
				loop := NewTrainingLoop(TrainingLoopOptions{Comm: comm})
				errs <- loop.Train(context.Background(), eng)
			}(comm)
		}
		for i := 0; i < 2; i++ {
			assert.NoError(t, <-errs)
		}
	})
}

func TestScaledStrategy(t *testing.T) {
	t.Run("backward receives the scale and grads are unscaled", func(t *testing.T) {
		eng, model, optimizer := newTrainSetup(2.0)
		scaler, err := NewGradScalerWith(4, 2, 0.5, 2000)
		require.NoError(t, err)
		loop := NewTrainingLoop(TrainingLoopOptions{Strategy: NewScaledStrategy(scaler)})

		require.NoError(t, loop.Train(context.Background(), eng))
		assert.Equal(t, 4.0, model.LastGradScal)
		assert.Equal(t, 1, optimizer.StepCnt)
		// dummy backward writes loss*scale, unscale divides it back
		assert.Equal(t, 2.0, model.Parameters()[0].Grad[0])
	})

	t.Run("gradient overflow skips the step and backs off", func(t *testing.T) {
		// a finite loss whose scaled gradient overflows to infinity
		eng, _, optimizer := newTrainSetup(math.MaxFloat64, 2.0)
		scaler, err := NewGradScalerWith(16, 2, 0.5, 2000)
		require.NoError(t, err)
		loop := NewTrainingLoop(TrainingLoopOptions{Strategy: NewScaledStrategy(scaler)})

		require.NoError(t, loop.Train(context.Background(), eng))
		assert.Equal(t, 1, optimizer.StepCnt)
		assert.Equal(t, 8.0, scaler.Scale())
	})

	t.Run("loop state dict carries the scaler", func(t *testing.T) {
		scaler, err := NewGradScalerWith(16, 2, 0.5, 2000)
		require.NoError(t, err)
		loop := NewTrainingLoop(TrainingLoopOptions{Strategy: NewScaledStrategy(scaler)})
		scaler.UpdateOnOverflow()

		restoredScaler := NewGradScaler()
		restored := NewTrainingLoop(TrainingLoopOptions{Strategy: NewScaledStrategy(restoredScaler)})
		require.NoError(t, restored.LoadStateDict(loop.StateDict()))
		assert.Equal(t, 8.0, restoredScaler.Scale())
	})

	t.Run("vanilla loop state dict is empty", func(t *testing.T) {
		loop := NewTrainingLoop(TrainingLoopOptions{})
		assert.Empty(t, loop.StateDict())
		assert.NoError(t, loop.LoadStateDict(map[string]any{}))
	})
}

func TestEvaluationLoop(t *testing.T) {
	t.Run("no backward and eval mode", func(t *testing.T) {
		eng, model, optimizer := newTrainSetup(1.0, 2.0)
		loop := NewEvaluationLoop(EvaluationLoopOptions{})

		require.NoError(t, loop.Eval(context.Background(), eng))
		assert.Equal(t, 0, model.BackwardCnt)
		assert.Equal(t, 0, optimizer.StepCnt)
		assert.False(t, model.TrainMode)
	})

	t.Run("gradient tracking is disabled and restored", func(t *testing.T) {
		eng, model, _ := newTrainSetup(1.0)
		gradDuringForward := true
		model.Losses = []float64{1.0}
		loop := NewEvaluationLoop(EvaluationLoopOptions{
			Observer: &probeObserver{onUpdate: func() {
				gradDuringForward = model.GradEnabled
			}},
		})

		require.NoError(t, loop.Eval(context.Background(), eng))
		assert.False(t, gradDuringForward)
		assert.True(t, model.GradEnabled)
	})

	t.Run("grad enabled mode keeps tracking on", func(t *testing.T) {
		eng, model, _ := newTrainSetup(1.0)
		tracked := false
		loop := NewEvaluationLoop(EvaluationLoopOptions{
			GradEnabled: true,
			Observer: &probeObserver{onUpdate: func() {
				tracked = model.GradEnabled
			}},
		})

		require.NoError(t, loop.Eval(context.Background(), eng))
		assert.True(t, tracked)
	})

	t.Run("eval events fire around each batch", func(t *testing.T) {
		eng, _, _ := newTrainSetup(1.0)
		loop := NewEvaluationLoop(EvaluationLoopOptions{})

		require.NoError(t, loop.Eval(context.Background(), eng))
		assert.Equal(t, []string{
			engine.EvalEpochStarted,
			engine.EvalIterationStarted,
			engine.EvalIterationCompleted,
			engine.EvalEpochCompleted,
		}, eng.FiredEvents)
	})

	t.Run("metrics land under the eval prefix", func(t *testing.T) {
		eng, _, _ := newTrainSetup(3.0)
		eng.SetEpoch(0)
		loop := NewEvaluationLoop(EvaluationLoopOptions{})

		require.NoError(t, loop.Eval(context.Background(), eng))
		assert.True(t, eng.HasHistory("eval/loss"))
	})

	t.Run("engine counters are untouched", func(t *testing.T) {
		eng, _, _ := newTrainSetup(1.0, 2.0)
		loop := NewEvaluationLoop(EvaluationLoopOptions{})
		require.NoError(t, loop.Eval(context.Background(), eng))
		assert.Equal(t, -1, eng.Epoch())
		assert.Equal(t, -1, eng.Iteration())
	})
}

// probeObserver runs a callback on every update.
type probeObserver struct {
	onUpdate func()
}

func (p *probeObserver) Start(ctx context.Context, eng engine.Engine) error {
	return nil
}

func (p *probeObserver) Update(ctx context.Context, eng engine.Engine, batch engine.Batch, output engine.Output) error {
	if p.onUpdate != nil {
		p.onUpdate()
	}
	return nil
}

func (p *probeObserver) End(ctx context.Context, eng engine.Engine) error {
	return nil
}

func TestObservers(t *testing.T) {
	t.Run("sequential observer notifies in order", func(t *testing.T) {
		var order []string
		a := &probeObserver{onUpdate: func() { order = append(order, "a") }}
		b := &probeObserver{onUpdate: func() { order = append(order, "b") }}
		seq := NewSequentialObserver(a, b)
		require.NoError(t, seq.Update(context.Background(), nil, nil, nil))
		assert.Equal(t, []string{"a", "b"}, order)
	})

	t.Run("no-op observer accepts everything", func(t *testing.T) {
		o := NoOpObserver{}
		assert.NoError(t, o.Start(context.Background(), nil))
		assert.NoError(t, o.Update(context.Background(), nil, nil, nil))
		assert.NoError(t, o.End(context.Background(), nil))
	})
}
