// Package testkit provides in-memory collaborators for unit tests and the
// demo command: a fake engine with a working event bus and history
// registry, plus dummy model, optimizer, and data source implementations.
package testkit

import (
	"context"

	"github.com/gradkit/gradkit/internal/engine"
	"github.com/gradkit/gradkit/internal/histories"
	"github.com/gradkit/gradkit/pkg/errors"
)

// FakeEngine is a functional in-memory engine.Engine. The event bus and
// history registry behave like the real thing; counters are plain fields
// the test can inspect.
type FakeEngine struct {
	epoch     int
	iteration int
	maxEpochs int
	seed      int64

	model      engine.Model
	optimizer  engine.Optimizer
	dataSource engine.DataSource

	handlers  map[string][]engine.EventHandler
	histories map[string]engine.History

	// FiredEvents records every FireEvent call in order.
	FiredEvents []string

	// HandlerErrors collects errors returned by handlers during FireEvent.
	HandlerErrors []error
}

// NewFakeEngine creates an engine with counters at their pre-run values
func NewFakeEngine(maxEpochs int) *FakeEngine {
	return &FakeEngine{
		epoch:     -1,
		iteration: -1,
		maxEpochs: maxEpochs,
		seed:      42,
		handlers:  make(map[string][]engine.EventHandler),
		histories: make(map[string]engine.History),
	}
}

// WithModel sets the model under training
func (e *FakeEngine) WithModel(m engine.Model) *FakeEngine {
	e.model = m
	return e
}

// WithOptimizer sets the optimizer
func (e *FakeEngine) WithOptimizer(o engine.Optimizer) *FakeEngine {
	e.optimizer = o
	return e
}

// WithDataSource sets the data source
func (e *FakeEngine) WithDataSource(ds engine.DataSource) *FakeEngine {
	e.dataSource = ds
	return e
}

// WithSeed sets the base random seed
func (e *FakeEngine) WithSeed(seed int64) *FakeEngine {
	e.seed = seed
	return e
}

// SetEpoch overrides the epoch counter
func (e *FakeEngine) SetEpoch(epoch int) {
	e.epoch = epoch
}

// SetIteration overrides the iteration counter
func (e *FakeEngine) SetIteration(iteration int) {
	e.iteration = iteration
}

func (e *FakeEngine) FireEvent(event string) {
	e.FiredEvents = append(e.FiredEvents, event)
	for _, h := range e.handlers[event] {
		if err := h.Handle(context.Background()); err != nil {
			e.HandlerErrors = append(e.HandlerErrors, err)
		}
	}
}

func (e *FakeEngine) AddEventHandler(event string, handler engine.EventHandler) {
	e.handlers[event] = append(e.handlers[event], handler)
}

func (e *FakeEngine) HasEventHandler(handler engine.EventHandler, event string) bool {
	for _, h := range e.handlers[event] {
		if h.Equal(handler) {
			return true
		}
	}
	return false
}

// HandlerCount returns the number of handlers subscribed to an event
func (e *FakeEngine) HandlerCount(event string) int {
	return len(e.handlers[event])
}

func (e *FakeEngine) LogMetrics(metrics map[string]float64, step engine.Step) {
	for name, value := range metrics {
		if !e.HasHistory(name) {
			h, _ := histories.NewGenericHistory(name, histories.DefaultMaxSize)
			e.AddHistory(h)
		}
		e.histories[name].AddValue(value, step.Value)
	}
}

func (e *FakeEngine) AddHistory(history engine.History) {
	e.histories[history.Name()] = history
}

func (e *FakeEngine) HasHistory(name string) bool {
	_, ok := e.histories[name]
	return ok
}

func (e *FakeEngine) GetHistory(name string) (engine.History, error) {
	h, ok := e.histories[name]
	if !ok {
		return nil, errors.NotFoundError("history " + name)
	}
	return h, nil
}

func (e *FakeEngine) Epoch() int          { return e.epoch }
func (e *FakeEngine) Iteration() int      { return e.iteration }
func (e *FakeEngine) MaxEpochs() int      { return e.maxEpochs }
func (e *FakeEngine) RandomSeed() int64   { return e.seed }
func (e *FakeEngine) IncrementEpoch()     { e.epoch++ }
func (e *FakeEngine) IncrementIteration() { e.iteration++ }

func (e *FakeEngine) Model() engine.Model           { return e.model }
func (e *FakeEngine) Optimizer() engine.Optimizer   { return e.optimizer }
func (e *FakeEngine) DataSource() engine.DataSource { return e.dataSource }
