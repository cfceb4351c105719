package loops

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/gradkit/gradkit/internal/distributed"
	"github.com/gradkit/gradkit/internal/engine"
	"github.com/gradkit/gradkit/internal/observability/logging"
	"github.com/gradkit/gradkit/internal/observability/metrics"
	"github.com/gradkit/gradkit/internal/observability/trace"
	"github.com/gradkit/gradkit/internal/timing"
	"github.com/gradkit/gradkit/pkg/errors"
)

// DefaultEvalTag is the loader id and metric prefix of the evaluation pass.
const DefaultEvalTag = "eval"

// EvaluationLoopOptions configures an EvaluationLoop.
type EvaluationLoopOptions struct {
	// Tag prefixes metrics and names the data loader. Defaults to "eval".
	Tag string

	// GradEnabled keeps gradient tracking on during evaluation, for
	// gradient-based metrics. Defaults to false.
	GradEnabled bool

	// Observer watches the pass. Defaults to NoOpObserver.
	Observer Observer

	// Profiler marks iteration boundaries. Defaults to NoOpProfiler.
	Profiler Profiler

	// Comm synchronizes the workers of the run. Defaults to the
	// single-process communicator.
	Comm distributed.Communicator

	Clock   timing.Clock
	Logger  logging.Logger
	Metrics metrics.Collector
	Tracer  trace.Tracer
}

// EvaluationLoop evaluates the model over one pass of the data: no
// backward, no optimizer, gradient tracking off unless requested.
type EvaluationLoop struct {
	tag         string
	gradEnabled bool
	observer    Observer
	profiler    Profiler
	comm        distributed.Communicator
	clock       timing.Clock
	log         logging.Logger
	metrics     metrics.Collector
	tracer      trace.Tracer
}

// NewEvaluationLoop creates an evaluation loop from options
func NewEvaluationLoop(opts EvaluationLoopOptions) *EvaluationLoop {
	if opts.Tag == "" {
		opts.Tag = DefaultEvalTag
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
	return &EvaluationLoop{
		tag:         opts.Tag,
		gradEnabled: opts.GradEnabled,
		observer:    opts.Observer,
		profiler:    opts.Profiler,
		comm:        opts.Comm,
		clock:       opts.Clock,
		log:         opts.Logger,
		metrics:     opts.Metrics,
		tracer:      opts.Tracer,
	}
}

// Tag returns the metric prefix and loader id of the loop
func (l *EvaluationLoop) Tag() string {
	return l.tag
}

// Eval runs one evaluation pass. Gradient tracking is restored to its
// prior value on every exit path.
func (l *EvaluationLoop) Eval(ctx context.Context, eng engine.Engine) error {
	ctx, span := l.tracer.Start(ctx, "eval_epoch",
		attribute.String("tag", l.tag),
		attribute.Int("epoch", eng.Epoch()))
	defer span.End()

	start := l.clock.Now()

	if err := l.comm.Barrier(ctx); err != nil {
		return l.record(span, errors.DistributedError("barrier", err))
	}

	model := eng.Model()
	model.SetTrainMode(false)
	prior := model.SetGradEnabled(l.gradEnabled)
	defer model.SetGradEnabled(prior)

	eng.FireEvent(engine.EvalEpochStarted)

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
	eng.FireEvent(engine.EvalEpochCompleted)
	if err := l.comm.Barrier(ctx); err != nil {
		return l.record(span, errors.DistributedError("barrier", err))
	}

	l.log.Info("evaluation completed",
		logging.String("tag", l.tag),
		logging.Int("epoch", eng.Epoch()),
		logging.Float64("duration_sec", l.clock.Now().Sub(start).Seconds()))
	return nil
}

func (l *EvaluationLoop) runBatches(ctx context.Context, eng engine.Engine, timer *timing.BatchLoadingTimer) error {
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

		eng.FireEvent(engine.EvalIterationStarted)
		output, err := eng.Model().Forward(ctx, batch)
		if err != nil {
			return err
		}
		eng.FireEvent(engine.EvalIterationCompleted)

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

func (l *EvaluationLoop) record(span trace.Span, err error) error {
	span.RecordError(err)
	return err
}

// StateDict returns an empty mapping: the loop is stateless
func (l *EvaluationLoop) StateDict() map[string]any {
	return map[string]any{}
}

// LoadStateDict accepts any state: there is nothing to restore
func (l *EvaluationLoop) LoadStateDict(state map[string]any) error {
	return nil
}
