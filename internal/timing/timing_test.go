package timing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradkit/gradkit/internal/engine"
	"github.com/gradkit/gradkit/internal/observability/logging"
	"github.com/gradkit/gradkit/internal/testkit"
)

// timedIterator yields a fixed number of batches and advances the manual
// clock by loadTime on every Next call.
type timedIterator struct {
	clock      *ManualClock
	loadTime   time.Duration
	numBatches int
	pos        int
}

func (it *timedIterator) Next() bool {
	it.clock.Advance(it.loadTime)
	if it.pos >= it.numBatches {
		return false
	}
	it.pos++
	return true
}

func (it *timedIterator) Batch() engine.Batch {
	return engine.Batch{"input": []float64{float64(it.pos)}}
}

func (it *timedIterator) Err() error {
	return nil
}

func TestManualClock(t *testing.T) {
	start := time.Unix(0, 0)
	clock := NewManualClock(start)
	assert.Equal(t, start, clock.Now())
	clock.Advance(3 * time.Second)
	assert.Equal(t, start.Add(3*time.Second), clock.Now())
}

func TestLogDuration(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	done := LogDuration(logging.NewNoopLogger(), clock, "block")
	clock.Advance(time.Second)
	done()
}

func TestBatchLoadingTimer(t *testing.T) {
	t.Run("no batches yields empty stats", func(t *testing.T) {
		clock := NewManualClock(time.Unix(0, 0))
		timer := NewBatchLoadingTimer(&timedIterator{clock: clock, loadTime: time.Millisecond}, clock)
		assert.Empty(t, timer.GetStats())
	})

	t.Run("exhausted empty iterator still yields empty stats", func(t *testing.T) {
		clock := NewManualClock(time.Unix(0, 0))
		timer := NewBatchLoadingTimer(&timedIterator{clock: clock, loadTime: time.Millisecond}, clock)
		assert.False(t, timer.Next())
		assert.Empty(t, timer.GetStats())
	})

	t.Run("measures loading time per batch", func(t *testing.T) {
		clock := NewManualClock(time.Unix(0, 0))
		it := &timedIterator{clock: clock, loadTime: 10 * time.Millisecond, numBatches: 4}
		timer := NewBatchLoadingTimer(it, clock)

		count := 0
		for timer.Next() {
			count++
			// consumer work outside of loading
			clock.Advance(40 * time.Millisecond)
		}
		require.Equal(t, 4, count)
		require.NoError(t, timer.Err())

		stats := timer.GetStats()
		assert.InDelta(t, 10.0, stats[StatBatchLoadTimeAvgMs], 1e-9)
		assert.InDelta(t, 10.0, stats[StatBatchLoadTimeMinMs], 1e-9)
		assert.InDelta(t, 10.0, stats[StatBatchLoadTimeMaxMs], 1e-9)
		assert.InDelta(t, 10.0, stats[StatBatchLoadTimeMedianMs], 1e-9)
		assert.InDelta(t, 0.0, stats[StatBatchLoadTimeStddevMs], 1e-9)
		assert.Equal(t, 4.0, stats[StatNumBatches])

		// 4 loads of 10ms + 4 work phases of 40ms + final 10ms probe
		assert.InDelta(t, 0.21, stats[StatEpochTimeSec], 1e-9)
		assert.InDelta(t, 210.0/4, stats[StatIterTimeAvgMs], 1e-9)
		assert.InDelta(t, 100*40.0/210.0, stats[StatBatchLoadTimePct], 1e-9)
	})

	t.Run("log stats records prefixed metrics", func(t *testing.T) {
		clock := NewManualClock(time.Unix(0, 0))
		it := &timedIterator{clock: clock, loadTime: time.Millisecond, numBatches: 2}
		timer := NewBatchLoadingTimer(it, clock)
		for timer.Next() {
		}

		eng := testkit.NewFakeEngine(1)
		eng.SetEpoch(0)
		timer.LogStats(eng, "train/")
		assert.True(t, eng.HasHistory("train/"+StatNumBatches))
		assert.True(t, eng.HasHistory("train/"+StatBatchLoadTimeAvgMs))
	})

	t.Run("log stats is a no-op without batches", func(t *testing.T) {
		clock := NewManualClock(time.Unix(0, 0))
		timer := NewBatchLoadingTimer(&timedIterator{clock: clock}, clock)
		eng := testkit.NewFakeEngine(1)
		timer.LogStats(eng, "train/")
		assert.False(t, eng.HasHistory("train/"+StatNumBatches))
	})
}
