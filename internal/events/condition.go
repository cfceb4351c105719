package events

import (
	"fmt"

	"github.com/gradkit/gradkit/internal/engine"
	"github.com/gradkit/gradkit/pkg/errors"
)

// Condition decides whether a conditional handler runs when its event
// fires. Equal compares the firing policy, not any internal counter, so
// two freshly configured conditions with the same policy are equal even
// when one has already been evaluated.
type Condition interface {
	// Evaluate reports whether the handler should run for this firing
	Evaluate() bool

	// Equal reports whether other encodes the same firing policy
	Equal(other Condition) bool
}

// PeriodicCondition is true on the first evaluation and then every freq-th
// one. It keeps its own call counter, so it is independent of any engine
// counters.
type PeriodicCondition struct {
	freq    int
	counter int
}

// NewPeriodicCondition creates a condition firing every freq evaluations
func NewPeriodicCondition(freq int) (*PeriodicCondition, error) {
	if freq <= 0 {
		return nil, errors.ValidationErrorf("frequency must be positive (received: %d)", freq)
	}
	return &PeriodicCondition{freq: freq}, nil
}

func (c *PeriodicCondition) String() string {
	return fmt.Sprintf("PeriodicCondition(freq=%d)", c.freq)
}

// Freq returns the firing period
func (c *PeriodicCondition) Freq() int {
	return c.freq
}

// Evaluate increments the call counter and reports whether this call is
// on the period
func (c *PeriodicCondition) Evaluate() bool {
	fire := c.counter%c.freq == 0
	c.counter++
	return fire
}

// Equal reports whether other is a periodic condition with the same
// frequency. The internal counter is not compared.
func (c *PeriodicCondition) Equal(other Condition) bool {
	o, ok := other.(*PeriodicCondition)
	return ok && c.freq == o.freq
}

// EpochPeriodicCondition is true when the engine epoch is a multiple of
// freq. It is stateless: the decision only depends on the engine counter
// at evaluation time.
type EpochPeriodicCondition struct {
	eng  engine.Engine
	freq int
}

// NewEpochPeriodicCondition creates a condition firing every freq epochs
func NewEpochPeriodicCondition(eng engine.Engine, freq int) (*EpochPeriodicCondition, error) {
	if freq <= 0 {
		return nil, errors.ValidationErrorf("frequency must be positive (received: %d)", freq)
	}
	return &EpochPeriodicCondition{eng: eng, freq: freq}, nil
}

func (c *EpochPeriodicCondition) String() string {
	return fmt.Sprintf("EpochPeriodicCondition(freq=%d)", c.freq)
}

// Freq returns the firing period
func (c *EpochPeriodicCondition) Freq() int {
	return c.freq
}

// Evaluate reports whether the current epoch is on the period
func (c *EpochPeriodicCondition) Evaluate() bool {
	return c.eng.Epoch()%c.freq == 0
}

// Equal reports whether other fires on the same epoch period
func (c *EpochPeriodicCondition) Equal(other Condition) bool {
	o, ok := other.(*EpochPeriodicCondition)
	return ok && c.freq == o.freq
}

// IterationPeriodicCondition is true when the engine iteration is a
// multiple of freq.
type IterationPeriodicCondition struct {
	eng  engine.Engine
	freq int
}

// NewIterationPeriodicCondition creates a condition firing every freq
// iterations
func NewIterationPeriodicCondition(eng engine.Engine, freq int) (*IterationPeriodicCondition, error) {
	if freq <= 0 {
		return nil, errors.ValidationErrorf("frequency must be positive (received: %d)", freq)
	}
	return &IterationPeriodicCondition{eng: eng, freq: freq}, nil
}

func (c *IterationPeriodicCondition) String() string {
	return fmt.Sprintf("IterationPeriodicCondition(freq=%d)", c.freq)
}

// Freq returns the firing period
func (c *IterationPeriodicCondition) Freq() int {
	return c.freq
}

// Evaluate reports whether the current iteration is on the period
func (c *IterationPeriodicCondition) Evaluate() bool {
	return c.eng.Iteration()%c.freq == 0
}

// Equal reports whether other fires on the same iteration period
func (c *IterationPeriodicCondition) Equal(other Condition) bool {
	o, ok := other.(*IterationPeriodicCondition)
	return ok && c.freq == o.freq
}
