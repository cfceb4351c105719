package loops

import (
	"context"
	"math"

	"go.opentelemetry.io/otel/attribute"

	"github.com/gradkit/gradkit/internal/distributed"
	"github.com/gradkit/gradkit/internal/engine"
	"github.com/gradkit/gradkit/internal/histories"
	"github.com/gradkit/gradkit/internal/observability/logging"
	"github.com/gradkit/gradkit/internal/observability/metrics"
	"github.com/gradkit/gradkit/internal/observability/trace"
	"github.com/gradkit/gradkit/internal/seed"
	"github.com/gradkit/gradkit/internal/timing"
	"github.com/gradkit/gradkit/pkg/errors"
)

// DefaultTrainTag is the loader id and metric prefix of the training pass.
const DefaultTrainTag = "train"

// BatchStrategy runs the train step of one batch: forward, backward, and
// optimizer update. VanillaStrategy is the plain full-precision variant;
// ScaledStrategy adds dynamic loss scaling.
type BatchStrategy interface {
	// TrainBatch processes one batch and returns the model output. A
	// diverged batch (NaN loss or overflowed gradients) is not an
	// error: the strategy skips the update and reports skipped=true.
	TrainBatch(ctx context.Context, eng engine.Engine, batch engine.Batch, clipper GradClipper, setGradToNone bool) (output engine.Output, skipped bool, err error)
}

// TrainingLoopOptions configures a TrainingLoop. The zero value of every
// field maps to a usable default.
type TrainingLoopOptions struct {
	// Tag prefixes metrics and names the data loader. Defaults to "train".
	Tag string

	// Clipper bounds the gradients before every optimizer step. Nil
	// disables clipping.
	Clipper GradClipper

	// SetGradToNone selects the release-buffers flavour of ZeroGrad.
	SetGradToNone bool

	// Strategy runs the per-batch train step. Defaults to VanillaStrategy.
	Strategy BatchStrategy

	// Observer watches the pass. Defaults to NoOpObserver.
	Observer Observer

	// Profiler marks iteration boundaries. Defaults to NoOpProfiler.
	Profiler Profiler

	// Seeds is reseeded at the start of every epoch with a seed derived
	// from the engine's base seed, the epoch, and the rank. Nil disables
	// reseeding.
	Seeds *seed.Registry

	// Comm synchronizes the workers of the run. Defaults to the
	// single-process communicator.
	Comm distributed.Communicator

	Clock   timing.Clock
	Logger  logging.Logger
	Metrics metrics.Collector
	Tracer  trace.Tracer
}

// TrainingLoop trains one epoch per call. It owns the epoch choreography
// (barriers, events, seeding, metric bookkeeping) and delegates the
// per-batch work to its strategy.
type TrainingLoop struct {
	tag           string
	clipper       GradClipper
	setGradToNone bool
	strategy      BatchStrategy
	observer      Observer
	profiler      Profiler
	seeds         *seed.Registry
	comm          distributed.Communicator
	clock         timing.Clock
	log           logging.Logger
	metrics       metrics.Collector
	tracer        trace.Tracer
}

// NewTrainingLoop creates a training loop from options
func NewTrainingLoop(opts TrainingLoopOptions) *TrainingLoop {
	if opts.Tag == "" {
		opts.Tag = DefaultTrainTag
	}
	if opts.Strategy == nil {
		opts.Strategy = VanillaStrategy{}
	}
	if opts.Observer == nil {
		opts.Observer = NoOpObserver{}
	}
	if opts.Profiler == nil {
		opts.Profiler = NoOpProfiler{}
	}
	if opts.Comm == nil {
		opts.Comm = distributed.NewNoop()
	}
	if opts.Clock == nil {
		opts.Clock = timing.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNoopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoopCollector()
	}
	if opts.Tracer == nil {
		opts.Tracer = trace.NewNoopTracer()
	}
	return &TrainingLoop{
		tag:           opts.Tag,
		clipper:       opts.Clipper,
		setGradToNone: opts.SetGradToNone,
		strategy:      opts.Strategy,
		observer:      opts.Observer,
		profiler:      opts.Profiler,
		seeds:         opts.Seeds,
		comm:          opts.Comm,
		clock:         opts.Clock,
		log:           opts.Logger,
		metrics:       opts.Metrics,
		tracer:        opts.Tracer,
	}
}

// Tag returns the metric prefix and loader id of the loop
func (l *TrainingLoop) Tag() string {
	return l.tag
}

// LossHistoryName returns the name of the auto-registered loss history
func (l *TrainingLoop) LossHistoryName() string {
	return l.tag + "/" + engine.LossKey
}

// Train runs one training epoch: prepare, iterate the loader, and close
// the epoch with metric logging and events. Workers synchronize at four
// points: before preparation, after loader construction, after the batch
// loop, and after the epoch-completed event.
func (l *TrainingLoop) Train(ctx context.Context, eng engine.Engine) error {
	ctx, span := l.tracer.Start(ctx, "train_epoch",
		attribute.String("tag", l.tag),
		attribute.Int("epoch", eng.Epoch()+1))
	defer span.End()

	epochStart := l.clock.Now()

	if err := l.comm.Barrier(ctx); err != nil {
		return l.record(span, errors.DistributedError("barrier", err))
	}
	l.prepare(eng)

	eng.IncrementEpoch()
	l.metrics.SetGauge("epoch_current", float64(eng.Epoch()), map[string]string{"tag": l.tag})
	eng.FireEvent(engine.TrainEpochStarted)

	iterator, err := eng.DataSource().Loader(l.tag, eng)
	if err != nil {
		return l.record(span, err)
	}
	timer := timing.NewBatchLoadingTimer(iterator, l.clock)
	if err := l.comm.Barrier(ctx); err != nil {
		return l.record(span, errors.DistributedError("barrier", err))
	}

	if err := l.runBatches(ctx, eng, timer); err != nil {
		return l.record(span, err)
	}

	if err := l.comm.Barrier(ctx); err != nil {
		return l.record(span, errors.DistributedError("barrier", err))
	}

	timer.LogStats(eng, l.tag+"/")
	if stats := timer.GetStats(); len(stats) > 0 {
		l.metrics.ObserveHistogram("batch_load_duration_seconds",
			stats[timing.StatBatchLoadTimeAvgMs]/1000, map[string]string{"tag": l.tag})
		l.metrics.SetGauge("batch_load_time_pct",
			stats[timing.StatBatchLoadTimePct], map[string]string{"tag": l.tag})
	}

	eng.FireEvent(engine.TrainEpochCompleted)
	if err := l.comm.Barrier(ctx); err != nil {
		return l.record(span, errors.DistributedError("barrier", err))
	}

	epochSeconds := l.clock.Now().Sub(epochStart).Seconds()
	l.metrics.ObserveHistogram("epoch_duration_seconds", epochSeconds, map[string]string{"tag": l.tag})
	l.log.Info("training epoch completed",
		logging.String("tag", l.tag),
		logging.Int("epoch", eng.Epoch()),
		logging.Float64("duration_sec", epochSeconds))
	return nil
}

// prepare puts the model in train mode, reseeds the generators for the
// epoch, and makes sure the loss history exists.
func (l *TrainingLoop) prepare(eng engine.Engine) {
	eng.Model().SetTrainMode(true)

	if l.seeds != nil {
		derived := seed.DeriveSeed(eng.RandomSeed(), eng.Epoch()+1, eng.MaxEpochs(), l.comm.Rank())
		l.seeds.ManualSeed(derived)
	}

	name := l.LossHistoryName()
	if !eng.HasHistory(name) {
		eng.AddHistory(histories.NewMinScalarHistory(name))
	}
}

func (l *TrainingLoop) runBatches(ctx context.Context, eng engine.Engine, timer *timing.BatchLoadingTimer) error {
	stopProfiler, err := l.profiler.Start(ctx)
	if err != nil {
		return err
	}
	defer stopProfiler()

	if err := l.observer.Start(ctx, eng); err != nil {
		return err
	}

	tracker := NewScalarMetricTracker()
	for timer.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch := timer.Batch()
		eng.IncrementIteration()

		batchStart := l.clock.Now()
		output, skipped, err := l.strategy.TrainBatch(ctx, eng, batch, l.clipper, l.setGradToNone)
		if err != nil {
			return err
		}
		l.metrics.IncrementCounter("train_iterations_total", map[string]string{"tag": l.tag})
		l.metrics.ObserveHistogram("train_batch_duration_seconds",
			l.clock.Now().Sub(batchStart).Seconds(), map[string]string{"tag": l.tag})
		if skipped {
			l.metrics.IncrementCounter("train_nan_batches_total", map[string]string{"tag": l.tag})
		}

		tracker.Update(output)
		if err := l.observer.Update(ctx, eng, batch, output); err != nil {
			return err
		}
		l.profiler.Step()
	}
	if err := timer.Err(); err != nil {
		return err
	}
	if err := l.observer.End(ctx, eng); err != nil {
		return err
	}

	tracker.LogAverages(eng, l.tag+"/")
	return nil
}

func (l *TrainingLoop) record(span trace.Span, err error) error {
	span.RecordError(err)
	return err
}

// StateDict returns an empty mapping: the loop itself is stateless, all
// run state lives on the engine and its strategy.
func (l *TrainingLoop) StateDict() map[string]any {
	state := map[string]any{}
	if s, ok := l.strategy.(engine.Stateful); ok {
		state["strategy"] = s.StateDict()
	}
	return state
}

// LoadStateDict restores the strategy state, if any
func (l *TrainingLoop) LoadStateDict(state map[string]any) error {
	s, ok := l.strategy.(engine.Stateful)
	if !ok {
		return nil
	}
	raw, present := state["strategy"]
	if !present {
		return nil
	}
	nested, ok := raw.(map[string]any)
	if !ok {
		return errors.ValidationError("strategy state must be a mapping")
	}
	return s.LoadStateDict(nested)
}

// VanillaStrategy is the plain full-precision train step: forward,
// backward, clip, and step the optimizer. Gradients are zeroed after
// the iteration-started event so its handlers still see the previous
// step's gradients. A NaN loss skips everything after the forward pass.
type VanillaStrategy struct {
	// Logger reports skipped batches. Nil disables the warning.
	Logger logging.Logger
}

func (s VanillaStrategy) TrainBatch(ctx context.Context, eng engine.Engine, batch engine.Batch, clipper GradClipper, setGradToNone bool) (engine.Output, bool, error) {
	eng.FireEvent(engine.TrainIterationStarted)
	eng.Optimizer().ZeroGrad(setGradToNone)

	output, err := eng.Model().Forward(ctx, batch)
	if err != nil {
		return nil, false, err
	}
	eng.FireEvent(engine.TrainForwardCompleted)

	loss, ok := output[engine.LossKey]
	if !ok {
		return nil, false, errors.StateError("model output is missing the loss value")
	}
	if math.IsNaN(loss) {
		if s.Logger != nil {
			s.Logger.Warn("nan loss, skipping the model update",
				logging.Float64("loss", loss),
				logging.Int("iteration", eng.Iteration()))
		}
		eng.FireEvent(engine.TrainIterationCompleted)
		return output, true, nil
	}

	if err := eng.Model().Backward(ctx, engine.LossKey, 1); err != nil {
		return nil, false, err
	}
	eng.FireEvent(engine.TrainBackwardCompleted)

	if clipper != nil {
		clipper.Clip(eng.Model().Parameters())
	}
	if err := eng.Optimizer().Step(ctx); err != nil {
		return nil, false, err
	}
	eng.FireEvent(engine.TrainIterationCompleted)
	return output, false, nil
}

// ScaledStrategy is the loss-scaling train step for reduced-precision
// backends. The loss is scaled before backward; gradients are unscaled
// before clipping, and a gradient overflow skips the optimizer step and
// backs the scale off.
type ScaledStrategy struct {
	Scaler *GradScaler

	// Logger reports skipped batches. Nil disables the warning.
	Logger logging.Logger
}

// NewScaledStrategy creates a strategy around scaler
func NewScaledStrategy(scaler *GradScaler) *ScaledStrategy {
	return &ScaledStrategy{Scaler: scaler}
}

func (s *ScaledStrategy) TrainBatch(ctx context.Context, eng engine.Engine, batch engine.Batch, clipper GradClipper, setGradToNone bool) (engine.Output, bool, error) {
	eng.FireEvent(engine.TrainIterationStarted)
	eng.Optimizer().ZeroGrad(setGradToNone)

	output, err := eng.Model().Forward(ctx, batch)
	if err != nil {
		return nil, false, err
	}
	eng.FireEvent(engine.TrainForwardCompleted)

	loss, ok := output[engine.LossKey]
	if !ok {
		return nil, false, errors.StateError("model output is missing the loss value")
	}
	if math.IsNaN(loss) {
		if s.Logger != nil {
			s.Logger.Warn("nan loss, skipping the model update",
				logging.Float64("loss", loss),
				logging.Int("iteration", eng.Iteration()))
		}
		eng.FireEvent(engine.TrainIterationCompleted)
		return output, true, nil
	}

	if err := eng.Model().Backward(ctx, engine.LossKey, s.Scaler.Scale()); err != nil {
		return nil, false, err
	}
	eng.FireEvent(engine.TrainBackwardCompleted)

	params := eng.Model().Parameters()
	if !s.Scaler.Unscale(params) {
		if s.Logger != nil {
			s.Logger.Warn("gradient overflow, skipping the optimizer step",
				logging.Float64("scale", s.Scaler.Scale()),
				logging.Int("iteration", eng.Iteration()))
		}
		s.Scaler.UpdateOnOverflow()
		eng.FireEvent(engine.TrainIterationCompleted)
		return output, true, nil
	}

	if clipper != nil {
		clipper.Clip(params)
	}
	if err := eng.Optimizer().Step(ctx); err != nil {
		return nil, false, err
	}
	s.Scaler.UpdateOnSuccess()
	eng.FireEvent(engine.TrainIterationCompleted)
	return output, false, nil
}

// StateDict returns the scaler state
func (s *ScaledStrategy) StateDict() map[string]any {
	return s.Scaler.StateDict()
}

// LoadStateDict restores the scaler state
func (s *ScaledStrategy) LoadStateDict(state map[string]any) error {
	return s.Scaler.LoadStateDict(state)
}
