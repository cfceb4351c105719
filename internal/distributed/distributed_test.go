package distributed

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoop(t *testing.T) {
	comm := NewNoop()

	t.Run("single process topology", func(t *testing.T) {
		assert.Equal(t, 0, comm.Rank())
		assert.Equal(t, 1, comm.WorldSize())
		assert.False(t, comm.IsDistributed())
	})

	t.Run("collectives are identities", func(t *testing.T) {
		out, err := comm.AllReduceFloat64(4.2, SUM)
		require.NoError(t, err)
		assert.Equal(t, 4.2, out)

		n, err := comm.AllReduceInt(7, MAX)
		require.NoError(t, err)
		assert.Equal(t, 7, n)

		gathered, err := comm.AllGatherFloat64s([]float64{1, 2})
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 2}, gathered)
	})

	t.Run("barrier honors cancellation", func(t *testing.T) {
		require.NoError(t, comm.Barrier(context.Background()))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.Error(t, comm.Barrier(ctx))
	})
}

func TestLocalGroup(t *testing.T) {
	t.Run("rejects non positive world size", func(t *testing.T) {
		_, err := NewLocalGroup(0)
		assert.Error(t, err)
	})

	t.Run("ranks and world size", func(t *testing.T) {
		comms, err := NewLocalGroup(3)
		require.NoError(t, err)
		require.Len(t, comms, 3)
		for rank, c := range comms {
			assert.Equal(t, rank, c.Rank())
			assert.Equal(t, 3, c.WorldSize())
			assert.True(t, c.IsDistributed())
		}
	})

	t.Run("all reduce sum", func(t *testing.T) {
		comms, err := NewLocalGroup(4)
		require.NoError(t, err)
		results := make([]float64, 4)
		var wg sync.WaitGroup
		for rank, c := range comms {
			wg.Add(1)
			go func(rank int, c *LocalCommunicator) {
				defer wg.Done()
				out, err := c.AllReduceFloat64(float64(rank+1), SUM)
				assert.NoError(t, err)
				results[rank] = out
			}(rank, c)
		}
		wg.Wait()
		for _, out := range results {
			assert.Equal(t, 10.0, out)
		}
	})

	t.Run("all reduce min and max", func(t *testing.T) {
		comms, err := NewLocalGroup(3)
		require.NoError(t, err)
		inputs := []float64{3, -1, 2}
		for _, tc := range []struct {
			op   Op
			want float64
		}{
			{MIN, -1},
			{MAX, 3},
		} {
			var wg sync.WaitGroup
			results := make([]float64, 3)
			for rank, c := range comms {
				wg.Add(1)
				go func(rank int, c *LocalCommunicator) {
					defer wg.Done()
					out, err := c.AllReduceFloat64(inputs[rank], tc.op)
					assert.NoError(t, err)
					results[rank] = out
				}(rank, c)
			}
			wg.Wait()
			for _, out := range results {
				assert.Equal(t, tc.want, out)
			}
		}
	})

	t.Run("all gather preserves rank order", func(t *testing.T) {
		comms, err := NewLocalGroup(2)
		require.NoError(t, err)
		results := make([][]float64, 2)
		var wg sync.WaitGroup
		for rank, c := range comms {
			wg.Add(1)
			go func(rank int, c *LocalCommunicator) {
				defer wg.Done()
				out, err := c.AllGatherFloat64s([]float64{float64(rank), float64(rank * 10)})
				assert.NoError(t, err)
				results[rank] = out
			}(rank, c)
		}
		wg.Wait()
		for _, out := range results {
			assert.Equal(t, []float64{0, 0, 1, 10}, out)
		}
	})

	t.Run("consecutive rounds stay consistent", func(t *testing.T) {
		comms, err := NewLocalGroup(2)
		require.NoError(t, err)
		var wg sync.WaitGroup
		for rank, c := range comms {
			wg.Add(1)
			go func(rank int, c *LocalCommunicator) {
				defer wg.Done()
				for round := 0; round < 50; round++ {
					out, err := c.AllReduceFloat64(float64(round), SUM)
					assert.NoError(t, err)
					assert.Equal(t, float64(2*round), out)
				}
			}(rank, c)
		}
		wg.Wait()
	})

	t.Run("unknown op fails on every rank", func(t *testing.T) {
		comms, err := NewLocalGroup(2)
		require.NoError(t, err)
		var wg sync.WaitGroup
		for _, c := range comms {
			wg.Add(1)
			go func(c *LocalCommunicator) {
				defer wg.Done()
				_, err := c.AllReduceFloat64(1.0, Op(99))
				assert.Error(t, err)
			}(c)
		}
		wg.Wait()
	})

	t.Run("barrier releases all ranks", func(t *testing.T) {
		comms, err := NewLocalGroup(3)
		require.NoError(t, err)
		var wg sync.WaitGroup
		for _, c := range comms {
			wg.Add(1)
			go func(c *LocalCommunicator) {
				defer wg.Done()
				assert.NoError(t, c.Barrier(context.Background()))
			}(c)
		}
		wg.Wait()
	})
}

func TestOpString(t *testing.T) {
	assert.Equal(t, "SUM", SUM.String())
	assert.Equal(t, "MIN", MIN.String())
	assert.Equal(t, "MAX", MAX.String())
}
