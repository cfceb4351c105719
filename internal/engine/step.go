package engine

import "fmt"

// StepKind distinguishes the counter a metric step refers to.
type StepKind string

const (
	// EpochKind steps are indexed by the epoch counter
	EpochKind StepKind = "epoch"
	// IterationKind steps are indexed by the iteration counter
	IterationKind StepKind = "iteration"
)

// Step tags a metric value with the counter it was recorded at.
type Step struct {
	Kind  StepKind
	Value int
}

// EpochStep creates a step indexed by epoch
func EpochStep(epoch int) Step {
	return Step{Kind: EpochKind, Value: epoch}
}

// IterationStep creates a step indexed by iteration
func IterationStep(iteration int) Step {
	return Step{Kind: IterationKind, Value: iteration}
}

// String returns "kind=value"
func (s Step) String() string {
	return fmt.Sprintf("%s=%d", s.Kind, s.Value)
}
