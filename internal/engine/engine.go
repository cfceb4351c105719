// Package engine defines the collaborator surface the training core is
// built against. The concrete engine (the object that owns the model,
// optimizer, data source, event bus, and history registry) lives outside
// this module; loops, handlers, and conditions only consume the interfaces
// declared here.
package engine

import "context"

// Batch is one mini-batch of input data, keyed by input name.
type Batch map[string][]float64

// Output holds the scalar outputs of one forward pass, keyed by name.
// A training model must expose the loss under LossKey.
type Output map[string]float64

// LossKey is the output key holding the batch loss.
const LossKey = "loss"

// Parameter is one trainable parameter group of a model. Grad is nil when
// the gradients were released with a set-to-none zeroing.
type Parameter struct {
	Name string
	Data []float64
	Grad []float64
}

// Model is the trainable-model surface consumed by the loops.
type Model interface {
	// SetTrainMode switches the model between training and evaluation mode
	SetTrainMode(train bool)

	// SetGradEnabled toggles gradient tracking and returns the prior value,
	// so callers can restore it on every exit path
	SetGradEnabled(enabled bool) bool

	// Forward runs one forward pass over the batch
	Forward(ctx context.Context, batch Batch) (Output, error)

	// Backward accumulates gradients for the loss identified by lossKey,
	// scaled by scale (1 for unscaled training)
	Backward(ctx context.Context, lossKey string, scale float64) error

	// Parameters exposes the trainable parameters
	Parameters() []*Parameter
}

// Optimizer applies accumulated gradients to the model parameters.
type Optimizer interface {
	// ZeroGrad clears the gradients. With setToNone the gradient buffers
	// are released instead of zero-filled, which skips a materialize step.
	ZeroGrad(setToNone bool)

	// Step applies one update from the accumulated gradients
	Step(ctx context.Context) error
}

// BatchIterator iterates over the batches of one pass, scanner style.
type BatchIterator interface {
	// Next advances to the next batch, reporting false at the end
	Next() bool

	// Batch returns the current batch
	Batch() Batch

	// Err returns the first error encountered while iterating
	Err() error
}

// DataSource provides batch iterators, keyed by loader id (usually the
// loop tag, e.g. "train" or "eval").
type DataSource interface {
	Loader(loaderID string, eng Engine) (BatchIterator, error)
}

// EventHandler reacts to a lifecycle event fired by the engine. Equal is
// used for idempotent registration: attaching an equal handler to the same
// event twice must be a no-op.
type EventHandler interface {
	Handle(ctx context.Context) error
	Equal(other EventHandler) bool
}

// History is the narrow history surface the engine registry consumes.
// The concrete implementations live in internal/histories.
type History interface {
	// Name returns the registered name of the history
	Name() string

	// IsComparable reports whether the history can track a best value
	IsComparable() bool

	// IsEmpty reports whether no value was added yet
	IsEmpty() bool

	// AddValue appends a (step, value) pair
	AddValue(value float64, step int)
}

// Engine is the orchestration collaborator. One engine outlives many loop
// invocations; loops read its counters, fire its events, and register
// histories with it.
type Engine interface {
	// FireEvent notifies all handlers subscribed to the event
	FireEvent(event string)

	// AddEventHandler subscribes a handler to an event
	AddEventHandler(event string, handler EventHandler)

	// HasEventHandler reports whether an equal handler is already
	// subscribed to the event
	HasEventHandler(handler EventHandler, event string) bool

	// LogMetrics records a set of named scalar metrics at a step
	LogMetrics(metrics map[string]float64, step Step)

	// AddHistory registers a history under its name
	AddHistory(history History)

	// HasHistory reports whether a history is registered under the name
	HasHistory(name string) bool

	// GetHistory returns the history registered under the name
	GetHistory(name string) (History, error)

	// Epoch returns the current epoch (-1 before the first epoch)
	Epoch() int

	// Iteration returns the current iteration (-1 before the first one)
	Iteration() int

	// MaxEpochs returns the configured number of epochs
	MaxEpochs() int

	// RandomSeed returns the base random seed of the run
	RandomSeed() int64

	// IncrementEpoch advances the epoch counter
	IncrementEpoch()

	// IncrementIteration advances the iteration counter
	IncrementIteration()

	// Model returns the model under training
	Model() Model

	// Optimizer returns the optimizer
	Optimizer() Optimizer

	// DataSource returns the data source
	DataSource() DataSource
}

// Stateful is the capability interface for components whose state is
// persisted in checkpoints. StateDict must return a flat mapping that
// LoadStateDict can restore exactly.
type Stateful interface {
	StateDict() map[string]any
	LoadStateDict(state map[string]any) error
}

// Attachable is the capability interface for components that subscribe
// themselves to engine events.
type Attachable interface {
	Attach(eng Engine) error
}
