package loops

import (
	"context"

	"github.com/gradkit/gradkit/internal/engine"
)

// Observer watches one pass over the data. Start runs before the first
// batch, Update after every processed batch, End after the last one. A
// loop with no observer behaves as if a NoOpObserver were attached.
type Observer interface {
	Start(ctx context.Context, eng engine.Engine) error
	Update(ctx context.Context, eng engine.Engine, batch engine.Batch, output engine.Output) error
	End(ctx context.Context, eng engine.Engine) error
}

// NoOpObserver ignores every notification.
type NoOpObserver struct{}

func (NoOpObserver) Start(ctx context.Context, eng engine.Engine) error {
	return nil
}

func (NoOpObserver) Update(ctx context.Context, eng engine.Engine, batch engine.Batch, output engine.Output) error {
	return nil
}

func (NoOpObserver) End(ctx context.Context, eng engine.Engine) error {
	return nil
}

// SequentialObserver fans every notification out to its children in
// order, stopping at the first error.
type SequentialObserver struct {
	observers []Observer
}

// NewSequentialObserver composes observers into one
func NewSequentialObserver(observers ...Observer) *SequentialObserver {
	return &SequentialObserver{observers: observers}
}

func (s *SequentialObserver) Start(ctx context.Context, eng engine.Engine) error {
	for _, o := range s.observers {
		if err := o.Start(ctx, eng); err != nil {
			return err
		}
	}
	return nil
}

func (s *SequentialObserver) Update(ctx context.Context, eng engine.Engine, batch engine.Batch, output engine.Output) error {
	for _, o := range s.observers {
		if err := o.Update(ctx, eng, batch, output); err != nil {
			return err
		}
	}
	return nil
}

func (s *SequentialObserver) End(ctx context.Context, eng engine.Engine) error {
	for _, o := range s.observers {
		if err := o.End(ctx, eng); err != nil {
			return err
		}
	}
	return nil
}

// Profiler marks iteration boundaries for an external profiling backend.
// Start is called once before the first batch and returns a stop function
// that must run when the pass ends; Step marks the end of one iteration.
type Profiler interface {
	Start(ctx context.Context) (stop func(), err error)
	Step()
}

// NoOpProfiler records nothing.
type NoOpProfiler struct{}

func (NoOpProfiler) Start(ctx context.Context) (func(), error) {
	return func() {}, nil
}

func (NoOpProfiler) Step() {}
