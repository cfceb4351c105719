package distributed

import (
	"context"
	"sync"

	"github.com/gradkit/gradkit/pkg/errors"
)

// localGroup coordinates a fixed set of in-process workers. Each collective
// is a two-phase rendezvous: every rank deposits its contribution, the last
// arriver computes the joint result, and the round drains before the next
// one may complete. A rank that skips a collective deadlocks the group,
// matching the semantics of a real process group.
type localGroup struct {
	n int

	mu       sync.Mutex
	cond     *sync.Cond
	gen      uint64
	buf      [][]float64
	arrived  int
	departed int
	draining bool
	result   []float64
}

// LocalCommunicator is one rank's handle on an in-process worker group.
// It is used to run and test multi-worker code inside a single process.
type LocalCommunicator struct {
	group *localGroup
	rank  int
}

// NewLocalGroup creates an in-process group of n workers and returns one
// communicator per rank. All n communicators must be driven concurrently
// (one goroutine per rank) for any collective to complete.
func NewLocalGroup(n int) ([]*LocalCommunicator, error) {
	if n <= 0 {
		return nil, errors.ValidationErrorf("world size must be greater than 0 (received: %d)", n)
	}
	g := &localGroup{
		n:   n,
		buf: make([][]float64, n),
	}
	g.cond = sync.NewCond(&g.mu)

	comms := make([]*LocalCommunicator, n)
	for rank := 0; rank < n; rank++ {
		comms[rank] = &LocalCommunicator{group: g, rank: rank}
	}
	return comms, nil
}

func (c *LocalCommunicator) Rank() int           { return c.rank }
func (c *LocalCommunicator) WorldSize() int      { return c.group.n }
func (c *LocalCommunicator) IsDistributed() bool { return c.group.n > 1 }

// round runs one collective rendezvous. The combine function is evaluated
// once, by the last arriving rank, over the contributions in rank order.
func (g *localGroup) round(rank int, payload []float64, combine func([][]float64) []float64) []float64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	// The previous round must fully drain before this one can start.
	for g.draining {
		g.cond.Wait()
	}

	gen := g.gen
	g.buf[rank] = payload
	g.arrived++

	if g.arrived == g.n {
		g.result = combine(g.buf)
		g.gen++
		g.arrived = 0
		g.draining = true
		g.cond.Broadcast()
	} else {
		for gen == g.gen {
			g.cond.Wait()
		}
	}

	result := g.result
	g.departed++
	if g.departed == g.n {
		g.departed = 0
		g.draining = false
		for i := range g.buf {
			g.buf[i] = nil
		}
		g.cond.Broadcast()
	}
	return result
}

// Barrier blocks until every rank in the group has reached the same call
func (c *LocalCommunicator) Barrier(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.group.round(c.rank, nil, func([][]float64) []float64 { return nil })
	return nil
}

// AllReduceFloat64 combines a scalar across all ranks
func (c *LocalCommunicator) AllReduceFloat64(value float64, op Op) (float64, error) {
	// Validate before the rendezvous so every rank fails uniformly.
	if op != SUM && op != MIN && op != MAX {
		return 0, errors.ValidationErrorf("unknown reduction op: %d", op)
	}
	result := c.group.round(c.rank, []float64{value}, func(buf [][]float64) []float64 {
		contributions := make([]float64, len(buf))
		for i, p := range buf {
			contributions[i] = p[0]
		}
		reduced, _ := reduceFloat64s(contributions, op)
		return []float64{reduced}
	})
	return result[0], nil
}

// AllReduceInt combines an integer across all ranks
func (c *LocalCommunicator) AllReduceInt(value int, op Op) (int, error) {
	reduced, err := c.AllReduceFloat64(float64(value), op)
	if err != nil {
		return 0, err
	}
	return int(reduced), nil
}

// AllGatherFloat64s concatenates per-rank slices in rank order
func (c *LocalCommunicator) AllGatherFloat64s(values []float64) ([]float64, error) {
	result := c.group.round(c.rank, values, func(buf [][]float64) []float64 {
		var gathered []float64
		for _, p := range buf {
			gathered = append(gathered, p...)
		}
		return gathered
	})
	out := make([]float64, len(result))
	copy(out, result)
	return out, nil
}
