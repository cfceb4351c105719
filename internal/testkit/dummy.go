package testkit

import (
	"context"

	"github.com/gradkit/gradkit/internal/engine"
	"github.com/gradkit/gradkit/pkg/errors"
)

// DummyModel is a scripted engine.Model. Each forward pass pops the next
// loss from Losses (repeating the last one when exhausted) and the fake
// backward pass writes the scaled loss into every gradient slot.
type DummyModel struct {
	// Losses is the sequence of loss values returned by Forward.
	Losses []float64

	// ForwardErr, when set, is returned by every Forward call.
	ForwardErr error

	params      []*engine.Parameter
	forwardCall int

	TrainMode    bool
	GradEnabled  bool
	BackwardCnt  int
	LastLoss     float64
	LastGradScal float64
}

// NewDummyModel creates a model with one parameter of the given size
func NewDummyModel(paramSize int, losses ...float64) *DummyModel {
	if len(losses) == 0 {
		losses = []float64{1.0}
	}
	return &DummyModel{
		Losses:      losses,
		GradEnabled: true,
		params: []*engine.Parameter{
			{Name: "weight", Data: make([]float64, paramSize), Grad: make([]float64, paramSize)},
		},
	}
}

func (m *DummyModel) SetTrainMode(train bool) {
	m.TrainMode = train
}

func (m *DummyModel) SetGradEnabled(enabled bool) bool {
	prior := m.GradEnabled
	m.GradEnabled = enabled
	return prior
}

func (m *DummyModel) Forward(ctx context.Context, batch engine.Batch) (engine.Output, error) {
	if m.ForwardErr != nil {
		return nil, m.ForwardErr
	}
	idx := m.forwardCall
	if idx >= len(m.Losses) {
		idx = len(m.Losses) - 1
	}
	m.forwardCall++
	m.LastLoss = m.Losses[idx]
	return engine.Output{engine.LossKey: m.Losses[idx]}, nil
}

func (m *DummyModel) Backward(ctx context.Context, lossKey string, scale float64) error {
	if !m.GradEnabled {
		return errors.StateError("backward called with gradients disabled")
	}
	m.BackwardCnt++
	m.LastGradScal = scale
	for _, p := range m.params {
		if p.Grad == nil {
			p.Grad = make([]float64, len(p.Data))
		}
		for i := range p.Grad {
			p.Grad[i] = m.LastLoss * scale
		}
	}
	return nil
}

func (m *DummyModel) Parameters() []*engine.Parameter {
	return m.params
}

// DummyOptimizer records zero-grad and step calls.
type DummyOptimizer struct {
	model *DummyModel

	ZeroGradCnt int
	StepCnt     int

	// StepErr, when set, is returned by every Step call.
	StepErr error
}

// NewDummyOptimizer creates an optimizer operating on the model's
// parameters
func NewDummyOptimizer(model *DummyModel) *DummyOptimizer {
	return &DummyOptimizer{model: model}
}

func (o *DummyOptimizer) ZeroGrad(setToNone bool) {
	o.ZeroGradCnt++
	for _, p := range o.model.Parameters() {
		if setToNone {
			p.Grad = nil
			continue
		}
		if p.Grad == nil {
			p.Grad = make([]float64, len(p.Data))
		}
		for i := range p.Grad {
			p.Grad[i] = 0
		}
	}
}

func (o *DummyOptimizer) Step(ctx context.Context) error {
	if o.StepErr != nil {
		return o.StepErr
	}
	o.StepCnt++
	return nil
}

// sliceIterator walks a fixed slice of batches.
type sliceIterator struct {
	batches []engine.Batch
	pos     int
	err     error
}

func (it *sliceIterator) Next() bool {
	if it.err != nil || it.pos >= len(it.batches) {
		return false
	}
	it.pos++
	return true
}

func (it *sliceIterator) Batch() engine.Batch {
	return it.batches[it.pos-1]
}

func (it *sliceIterator) Err() error {
	return it.err
}

// DummyDataSource serves a fixed set of batches for every loader id.
type DummyDataSource struct {
	Batches []engine.Batch

	// LoaderErr, when set, is returned by every Loader call.
	LoaderErr error

	// LoaderCalls records the requested loader ids.
	LoaderCalls []string
}

// NewDummyDataSource creates a data source with numBatches batches of
// batchSize examples each
func NewDummyDataSource(numBatches, batchSize int) *DummyDataSource {
	batches := make([]engine.Batch, numBatches)
	for i := range batches {
		input := make([]float64, batchSize)
		for j := range input {
			input[j] = float64(i*batchSize + j)
		}
		batches[i] = engine.Batch{"input": input}
	}
	return &DummyDataSource{Batches: batches}
}

func (ds *DummyDataSource) Loader(loaderID string, eng engine.Engine) (engine.BatchIterator, error) {
	ds.LoaderCalls = append(ds.LoaderCalls, loaderID)
	if ds.LoaderErr != nil {
		return nil, ds.LoaderErr
	}
	return &sliceIterator{batches: ds.Batches}, nil
}
