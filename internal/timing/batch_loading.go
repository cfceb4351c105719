package timing

import (
	"time"

	"github.com/gradkit/gradkit/internal/engine"
	"github.com/gradkit/gradkit/internal/meters"
)

// Stat keys reported by BatchLoadingTimer.GetStats.
const (
	StatBatchLoadTimeAvgMs    = "batch_load_time_avg_ms"
	StatBatchLoadTimeMaxMs    = "batch_load_time_max_ms"
	StatBatchLoadTimeMedianMs = "batch_load_time_median_ms"
	StatBatchLoadTimeMinMs    = "batch_load_time_min_ms"
	StatBatchLoadTimePct      = "batch_load_time_pct"
	StatBatchLoadTimeStddevMs = "batch_load_time_stddev_ms"
	StatIterTimeAvgMs         = "iter_time_avg_ms"
	StatEpochTimeSec          = "epoch_time_sec"
	StatNumBatches            = "num_batches"
)

// BatchLoadingTimer wraps a batch iterator and measures the time spent
// inside Next, i.e. the time the consumer waits for data. Per-batch times
// go to a bounded ScalarMeter so long epochs keep constant memory for the
// order statistics while averages still cover every batch.
type BatchLoadingTimer struct {
	inner engine.BatchIterator
	clock Clock
	meter *meters.ScalarMeter

	started    bool
	finished   bool
	epochStart time.Time
	epochEnd   time.Time
	numBatches int
}

// NewBatchLoadingTimer wraps iterator with the default meter window
func NewBatchLoadingTimer(iterator engine.BatchIterator, clock Clock) *BatchLoadingTimer {
	meter, _ := meters.NewScalarMeter(meters.DefaultScalarMeterSize)
	return &BatchLoadingTimer{inner: iterator, clock: clock, meter: meter}
}

// Next advances the wrapped iterator, recording the time the call took
func (t *BatchLoadingTimer) Next() bool {
	start := t.clock.Now()
	if !t.started {
		t.started = true
		t.epochStart = start
	}
	ok := t.inner.Next()
	end := t.clock.Now()
	if ok {
		t.numBatches++
		t.meter.Update(float64(end.Sub(start)) / float64(time.Millisecond))
	} else {
		t.finished = true
		t.epochEnd = end
	}
	return ok
}

// Batch returns the current batch of the wrapped iterator
func (t *BatchLoadingTimer) Batch() engine.Batch {
	return t.inner.Batch()
}

// Err returns the first error of the wrapped iterator
func (t *BatchLoadingTimer) Err() error {
	return t.inner.Err()
}

// NumBatches returns the number of batches loaded so far
func (t *BatchLoadingTimer) NumBatches() int {
	return t.numBatches
}

func (t *BatchLoadingTimer) epochTime() time.Duration {
	if !t.started {
		return 0
	}
	end := t.epochEnd
	if !t.finished {
		end = t.clock.Now()
	}
	return end.Sub(t.epochStart)
}

// GetStats summarizes the measured loading times. It returns an empty
// map when no batch was loaded.
func (t *BatchLoadingTimer) GetStats() map[string]float64 {
	if t.numBatches == 0 {
		return map[string]float64{}
	}
	avg, _ := t.meter.Average()
	min, _ := t.meter.Min()
	max, _ := t.meter.Max()
	median, _ := t.meter.Median()
	stddev, _ := t.meter.Std()

	epochMs := float64(t.epochTime()) / float64(time.Millisecond)
	pct := 0.0
	if epochMs > 0 {
		pct = 100 * t.meter.Total() / epochMs
	}
	return map[string]float64{
		StatBatchLoadTimeAvgMs:    avg,
		StatBatchLoadTimeMaxMs:    max,
		StatBatchLoadTimeMedianMs: median,
		StatBatchLoadTimeMinMs:    min,
		StatBatchLoadTimePct:      pct,
		StatBatchLoadTimeStddevMs: stddev,
		StatIterTimeAvgMs:         epochMs / float64(t.numBatches),
		StatEpochTimeSec:          epochMs / 1000,
		StatNumBatches:            float64(t.numBatches),
	}
}

// LogStats records the stats as engine metrics under prefix, indexed by
// the engine's current epoch. It is a no-op when no batch was loaded.
func (t *BatchLoadingTimer) LogStats(eng engine.Engine, prefix string) {
	stats := t.GetStats()
	if len(stats) == 0 {
		return
	}
	metrics := make(map[string]float64, len(stats))
	for key, value := range stats {
		metrics[prefix+key] = value
	}
	eng.LogMetrics(metrics, engine.EpochStep(eng.Epoch()))
}
