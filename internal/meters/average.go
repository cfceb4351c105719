// Package meters implements streaming numeric aggregators with explicit
// space/precision trade-offs. All meters share the same surface: Update,
// Reset, read accessors that fail with EmptyMeterError on an empty meter,
// Merge/MergeInPlace for local shard combination, AllReduce for blocking
// cross-worker combination, and StateDict/LoadStateDict for exact
// checkpoint round-trips.
package meters

import (
	"fmt"

	"github.com/gradkit/gradkit/internal/distributed"
	"github.com/gradkit/gradkit/internal/statedict"
)

// AverageMeter computes and stores the average of a stream of float values
// in constant space.
type AverageMeter struct {
	total float64
	count int
}

// NewAverageMeter creates an empty AverageMeter
func NewAverageMeter() *AverageMeter {
	return &AverageMeter{}
}

// NewAverageMeterFrom creates an AverageMeter with an initial total and count
func NewAverageMeterFrom(total float64, count int) *AverageMeter {
	return &AverageMeter{total: total, count: count}
}

// String returns a compact description of the meter
func (m *AverageMeter) String() string {
	return fmt.Sprintf("AverageMeter(count=%d, total=%g)", m.count, m.total)
}

// Count returns the number of examples seen since the last reset
func (m *AverageMeter) Count() int {
	return m.count
}

// Total returns the sum of the values added since the last reset
func (m *AverageMeter) Total() float64 {
	return m.total
}

// Update adds a value to the meter. numExamples weights the value, which
// is mainly used to deal with mini-batches of different sizes.
func (m *AverageMeter) Update(value float64, numExamples int) {
	m.total += value * float64(numExamples)
	m.count += numExamples
}

// Average computes the average value. It returns an EmptyMeterError if
// the meter is empty.
func (m *AverageMeter) Average() (float64, error) {
	if m.count == 0 {
		return 0, &EmptyMeterError{Meter: "average meter"}
	}
	return m.total / float64(m.count), nil
}

// Sum returns the sum of all values. It returns an EmptyMeterError if the
// meter is empty.
func (m *AverageMeter) Sum() (float64, error) {
	if m.count == 0 {
		return 0, &EmptyMeterError{Meter: "average meter"}
	}
	return m.total, nil
}

// Reset clears the meter
func (m *AverageMeter) Reset() {
	m.total = 0
	m.count = 0
}

// Clone creates a copy of the meter
func (m *AverageMeter) Clone() *AverageMeter {
	return &AverageMeter{total: m.total, count: m.count}
}

// Equal reports whether two meters hold the same state
func (m *AverageMeter) Equal(other *AverageMeter) bool {
	if other == nil {
		return false
	}
	return m.total == other.total && m.count == other.count
}

// Merge combines the meter with others into a new meter. The combination
// is commutative and associative.
func (m *AverageMeter) Merge(others ...*AverageMeter) *AverageMeter {
	merged := m.Clone()
	merged.MergeInPlace(others...)
	return merged
}

// MergeInPlace combines other meters into this one
func (m *AverageMeter) MergeInPlace(others ...*AverageMeter) {
	for _, other := range others {
		m.total += other.total
		m.count += other.count
	}
}

// AllReduce combines the meter values across all workers and returns the
// reduced meter. Totals and counts are summed. Every worker must call it
// the same number of times in the same order, or the collective deadlocks.
func (m *AverageMeter) AllReduce(comm distributed.Communicator) (*AverageMeter, error) {
	total, err := comm.AllReduceFloat64(m.total, distributed.SUM)
	if err != nil {
		return nil, err
	}
	count, err := comm.AllReduceInt(m.count, distributed.SUM)
	if err != nil {
		return nil, err
	}
	return &AverageMeter{total: total, count: count}, nil
}

// StateDict returns the meter state as a flat mapping
func (m *AverageMeter) StateDict() map[string]any {
	return map[string]any{"count": m.count, "total": m.total}
}

// LoadStateDict restores the meter from a state mapping
func (m *AverageMeter) LoadStateDict(state map[string]any) error {
	count, err := statedict.Int(state, "count")
	if err != nil {
		return err
	}
	total, err := statedict.Float64(state, "total")
	if err != nil {
		return err
	}
	m.count = count
	m.total = total
	return nil
}
