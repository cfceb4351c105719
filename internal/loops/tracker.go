// Package loops implements the training and evaluation passes: batch
// iteration, metric tracking, gradient clipping, loss scaling, and the
// observer/profiler hooks around them. Loops drive one pass over the data;
// the engine owns the counters, events, and histories they touch.
package loops

import (
	"math"
	"sort"

	"github.com/gradkit/gradkit/internal/engine"
	"github.com/gradkit/gradkit/internal/meters"
)

// ScalarMetricTracker accumulates the scalar outputs of a pass, one
// average meter per output key. Non-finite values are dropped so a
// diverged batch does not poison the epoch averages.
type ScalarMetricTracker struct {
	meters map[string]*meters.AverageMeter
}

// NewScalarMetricTracker creates an empty tracker
func NewScalarMetricTracker() *ScalarMetricTracker {
	return &ScalarMetricTracker{meters: make(map[string]*meters.AverageMeter)}
}

// Update folds one model output into the tracked averages
func (t *ScalarMetricTracker) Update(output engine.Output) {
	for key, value := range output {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			continue
		}
		m, ok := t.meters[key]
		if !ok {
			m = meters.NewAverageMeter()
			t.meters[key] = m
		}
		m.Update(value, 1)
	}
}

// Averages returns the tracked averages. Keys without a finite value
// are absent.
func (t *ScalarMetricTracker) Averages() map[string]float64 {
	out := make(map[string]float64, len(t.meters))
	for key, m := range t.meters {
		avg, err := m.Average()
		if err != nil {
			continue
		}
		out[key] = avg
	}
	return out
}

// Keys returns the tracked keys in sorted order
func (t *ScalarMetricTracker) Keys() []string {
	keys := make([]string, 0, len(t.meters))
	for key := range t.meters {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// LogAverages records the averages as engine metrics under prefix,
// indexed by the engine's current epoch
func (t *ScalarMetricTracker) LogAverages(eng engine.Engine, prefix string) {
	averages := t.Averages()
	if len(averages) == 0 {
		return
	}
	metrics := make(map[string]float64, len(averages))
	for key, value := range averages {
		metrics[prefix+key] = value
	}
	eng.LogMetrics(metrics, engine.EpochStep(eng.Epoch()))
}

// Reset clears all tracked meters
func (t *ScalarMetricTracker) Reset() {
	t.meters = make(map[string]*meters.AverageMeter)
}
