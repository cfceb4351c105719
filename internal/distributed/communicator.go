// Package distributed defines the collective-communication surface used by
// the training core. Cross-worker combination always happens through an
// explicit Communicator passed by the caller; there is no global process
// group. Every collective call is blocking and must be invoked uniformly,
// in the same order, by every participating worker.
package distributed

import (
	"context"

	"github.com/gradkit/gradkit/pkg/errors"
)

// Op identifies a reduction operation
type Op int

const (
	// SUM adds the per-worker values
	SUM Op = iota
	// MIN takes the minimum across workers
	MIN
	// MAX takes the maximum across workers
	MAX
)

// String returns the name of the reduction operation
func (o Op) String() string {
	switch o {
	case SUM:
		return "sum"
	case MIN:
		return "min"
	case MAX:
		return "max"
	default:
		return "unknown"
	}
}

// Communicator is the collective-communication interface. Implementations
// must guarantee that a collective returns the same result on every rank.
type Communicator interface {
	// Rank returns the zero-based rank of this worker
	Rank() int

	// WorldSize returns the number of participating workers
	WorldSize() int

	// IsDistributed reports whether more than one worker participates
	IsDistributed() bool

	// Barrier blocks until every worker has reached the same call
	Barrier(ctx context.Context) error

	// AllReduceFloat64 combines a scalar across workers
	AllReduceFloat64(value float64, op Op) (float64, error)

	// AllReduceInt combines an integer across workers
	AllReduceInt(value int, op Op) (int, error)

	// AllGatherFloat64s concatenates per-worker slices in rank order.
	// The traffic is proportional to the total gathered size.
	AllGatherFloat64s(values []float64) ([]float64, error)
}

// reduceFloat64s folds a slice of per-rank scalars with the given op
func reduceFloat64s(values []float64, op Op) (float64, error) {
	result := values[0]
	for _, v := range values[1:] {
		switch op {
		case SUM:
			result += v
		case MIN:
			if v < result {
				result = v
			}
		case MAX:
			if v > result {
				result = v
			}
		default:
			return 0, errors.ValidationErrorf("unknown reduction op: %d", op)
		}
	}
	return result, nil
}

// Noop is the single-process communicator. All collectives are identities.
type Noop struct{}

// NewNoop creates a single-process communicator
func NewNoop() *Noop {
	return &Noop{}
}

func (n *Noop) Rank() int           { return 0 }
func (n *Noop) WorldSize() int      { return 1 }
func (n *Noop) IsDistributed() bool { return false }

func (n *Noop) Barrier(ctx context.Context) error { return ctx.Err() }

func (n *Noop) AllReduceFloat64(value float64, op Op) (float64, error) { return value, nil }
func (n *Noop) AllReduceInt(value int, op Op) (int, error)             { return value, nil }

func (n *Noop) AllGatherFloat64s(values []float64) ([]float64, error) {
	out := make([]float64, len(values))
	copy(out, values)
	return out, nil
}
