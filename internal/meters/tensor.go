package meters

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/gradkit/gradkit/internal/distributed"
	"github.com/gradkit/gradkit/internal/statedict"
)

// MeanTensorMeter computes the mean of batches of values in constant
// space, keeping only a running total and element count. Safe for
// unbounded streams; no order statistics.
type MeanTensorMeter struct {
	count int
	total float64
}

// NewMeanTensorMeter creates an empty MeanTensorMeter
func NewMeanTensorMeter() *MeanTensorMeter {
	return &MeanTensorMeter{}
}

// String returns a compact description of the meter
func (m *MeanTensorMeter) String() string {
	return fmt.Sprintf("MeanTensorMeter(count=%d, total=%g)", m.count, m.total)
}

// Count returns the number of elements seen since the last reset
func (m *MeanTensorMeter) Count() int {
	return m.count
}

// Total returns the sum of the elements seen since the last reset
func (m *MeanTensorMeter) Total() float64 {
	return m.total
}

// Update folds all elements of the batch into the meter
func (m *MeanTensorMeter) Update(values []float64) {
	m.count += len(values)
	m.total += floats.Sum(values)
}

// Mean computes the mean of all elements. It returns an EmptyMeterError
// if the meter is empty.
func (m *MeanTensorMeter) Mean() (float64, error) {
	if m.count == 0 {
		return 0, &EmptyMeterError{Meter: "mean tensor meter"}
	}
	return m.total / float64(m.count), nil
}

// Average is an alias of Mean
func (m *MeanTensorMeter) Average() (float64, error) {
	return m.Mean()
}

// Sum returns the sum of all elements. It returns an EmptyMeterError if
// the meter is empty.
func (m *MeanTensorMeter) Sum() (float64, error) {
	if m.count == 0 {
		return 0, &EmptyMeterError{Meter: "mean tensor meter"}
	}
	return m.total, nil
}

// Reset clears the meter
func (m *MeanTensorMeter) Reset() {
	m.count = 0
	m.total = 0
}

// Clone creates a copy of the meter
func (m *MeanTensorMeter) Clone() *MeanTensorMeter {
	return &MeanTensorMeter{count: m.count, total: m.total}
}

// Equal reports whether two meters hold the same state
func (m *MeanTensorMeter) Equal(other *MeanTensorMeter) bool {
	if other == nil {
		return false
	}
	return m.count == other.count && m.total == other.total
}

// Merge combines the meter with others into a new meter
func (m *MeanTensorMeter) Merge(others ...*MeanTensorMeter) *MeanTensorMeter {
	merged := m.Clone()
	merged.MergeInPlace(others...)
	return merged
}

// MergeInPlace combines other meters into this one
func (m *MeanTensorMeter) MergeInPlace(others ...*MeanTensorMeter) {
	for _, other := range others {
		m.count += other.count
		m.total += other.total
	}
}

// AllReduce combines the meter across all workers by summing counts and
// totals. Must be called uniformly by every worker.
func (m *MeanTensorMeter) AllReduce(comm distributed.Communicator) (*MeanTensorMeter, error) {
	count, err := comm.AllReduceInt(m.count, distributed.SUM)
	if err != nil {
		return nil, err
	}
	total, err := comm.AllReduceFloat64(m.total, distributed.SUM)
	if err != nil {
		return nil, err
	}
	return &MeanTensorMeter{count: count, total: total}, nil
}

// StateDict returns the meter state as a flat mapping
func (m *MeanTensorMeter) StateDict() map[string]any {
	return map[string]any{"count": m.count, "total": m.total}
}

// LoadStateDict restores the meter from a state mapping
func (m *MeanTensorMeter) LoadStateDict(state map[string]any) error {
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

// ExtremaTensorMeter tracks the minimum and maximum of batches of values
// in constant space.
type ExtremaTensorMeter struct {
	count    int
	minValue float64
	maxValue float64
}

// NewExtremaTensorMeter creates an empty ExtremaTensorMeter
func NewExtremaTensorMeter() *ExtremaTensorMeter {
	return &ExtremaTensorMeter{minValue: math.Inf(1), maxValue: math.Inf(-1)}
}

// String returns a compact description of the meter
func (m *ExtremaTensorMeter) String() string {
	return fmt.Sprintf("ExtremaTensorMeter(count=%d, min=%g, max=%g)", m.count, m.minValue, m.maxValue)
}

// Count returns the number of elements seen since the last reset
func (m *ExtremaTensorMeter) Count() int {
	return m.count
}

// Update folds all elements of the batch into the meter
func (m *ExtremaTensorMeter) Update(values []float64) {
	if len(values) == 0 {
		return
	}
	m.count += len(values)
	m.minValue = math.Min(m.minValue, floats.Min(values))
	m.maxValue = math.Max(m.maxValue, floats.Max(values))
}

// Min returns the smallest element seen. It returns an EmptyMeterError if
// the meter is empty.
func (m *ExtremaTensorMeter) Min() (float64, error) {
	if m.count == 0 {
		return 0, &EmptyMeterError{Meter: "extrema tensor meter"}
	}
	return m.minValue, nil
}

// Max returns the largest element seen. It returns an EmptyMeterError if
// the meter is empty.
func (m *ExtremaTensorMeter) Max() (float64, error) {
	if m.count == 0 {
		return 0, &EmptyMeterError{Meter: "extrema tensor meter"}
	}
	return m.maxValue, nil
}

// Reset clears the meter
func (m *ExtremaTensorMeter) Reset() {
	m.count = 0
	m.minValue = math.Inf(1)
	m.maxValue = math.Inf(-1)
}

// Clone creates a copy of the meter
func (m *ExtremaTensorMeter) Clone() *ExtremaTensorMeter {
	return &ExtremaTensorMeter{count: m.count, minValue: m.minValue, maxValue: m.maxValue}
}

// Equal reports whether two meters hold the same state
func (m *ExtremaTensorMeter) Equal(other *ExtremaTensorMeter) bool {
	if other == nil {
		return false
	}
	return m.count == other.count && m.minValue == other.minValue && m.maxValue == other.maxValue
}

// Merge combines the meter with others into a new meter
func (m *ExtremaTensorMeter) Merge(others ...*ExtremaTensorMeter) *ExtremaTensorMeter {
	merged := m.Clone()
	merged.MergeInPlace(others...)
	return merged
}

// MergeInPlace combines other meters into this one
func (m *ExtremaTensorMeter) MergeInPlace(others ...*ExtremaTensorMeter) {
	for _, other := range others {
		if other.count == 0 {
			continue
		}
		m.count += other.count
		m.minValue = math.Min(m.minValue, other.minValue)
		m.maxValue = math.Max(m.maxValue, other.maxValue)
	}
}

// AllReduce combines the meter across all workers: counts are summed,
// extrema are reduced with min/max. Must be called uniformly by every
// worker.
func (m *ExtremaTensorMeter) AllReduce(comm distributed.Communicator) (*ExtremaTensorMeter, error) {
	count, err := comm.AllReduceInt(m.count, distributed.SUM)
	if err != nil {
		return nil, err
	}
	minValue, err := comm.AllReduceFloat64(m.minValue, distributed.MIN)
	if err != nil {
		return nil, err
	}
	maxValue, err := comm.AllReduceFloat64(m.maxValue, distributed.MAX)
	if err != nil {
		return nil, err
	}
	return &ExtremaTensorMeter{count: count, minValue: minValue, maxValue: maxValue}, nil
}

// StateDict returns the meter state as a flat mapping. The extrema keys
// are omitted while the meter is empty because their initial values are
// not representable in JSON.
func (m *ExtremaTensorMeter) StateDict() map[string]any {
	state := map[string]any{"count": m.count}
	if m.count > 0 {
		state["min_value"] = m.minValue
		state["max_value"] = m.maxValue
	}
	return state
}

// LoadStateDict restores the meter from a state mapping
func (m *ExtremaTensorMeter) LoadStateDict(state map[string]any) error {
	count, err := statedict.Int(state, "count")
	if err != nil {
		return err
	}
	minValue := math.Inf(1)
	maxValue := math.Inf(-1)
	if count > 0 {
		if minValue, err = statedict.Float64(state, "min_value"); err != nil {
			return err
		}
		if maxValue, err = statedict.Float64(state, "max_value"); err != nil {
			return err
		}
	}
	m.count = count
	m.minValue = minValue
	m.maxValue = maxValue
	return nil
}

// TensorMeter tracks the sum, mean, minimum, and maximum of batches of
// values in constant space.
type TensorMeter struct {
	count    int
	total    float64
	minValue float64
	maxValue float64
}

// NewTensorMeter creates an empty TensorMeter
func NewTensorMeter() *TensorMeter {
	return &TensorMeter{minValue: math.Inf(1), maxValue: math.Inf(-1)}
}

// String returns a compact description of the meter
func (m *TensorMeter) String() string {
	return fmt.Sprintf("TensorMeter(count=%d, total=%g, min=%g, max=%g)",
		m.count, m.total, m.minValue, m.maxValue)
}

// Count returns the number of elements seen since the last reset
func (m *TensorMeter) Count() int {
	return m.count
}

// Total returns the sum of the elements seen since the last reset
func (m *TensorMeter) Total() float64 {
	return m.total
}

// Update folds all elements of the batch into the meter
func (m *TensorMeter) Update(values []float64) {
	if len(values) == 0 {
		return
	}
	m.count += len(values)
	m.total += floats.Sum(values)
	m.minValue = math.Min(m.minValue, floats.Min(values))
	m.maxValue = math.Max(m.maxValue, floats.Max(values))
}

// Mean computes the mean of all elements. It returns an EmptyMeterError
// if the meter is empty.
func (m *TensorMeter) Mean() (float64, error) {
	if m.count == 0 {
		return 0, &EmptyMeterError{Meter: "tensor meter"}
	}
	return m.total / float64(m.count), nil
}

// Average is an alias of Mean
func (m *TensorMeter) Average() (float64, error) {
	return m.Mean()
}

// Sum returns the sum of all elements. It returns an EmptyMeterError if
// the meter is empty.
func (m *TensorMeter) Sum() (float64, error) {
	if m.count == 0 {
		return 0, &EmptyMeterError{Meter: "tensor meter"}
	}
	return m.total, nil
}

// Min returns the smallest element seen. It returns an EmptyMeterError
// if the meter is empty.
func (m *TensorMeter) Min() (float64, error) {
	if m.count == 0 {
		return 0, &EmptyMeterError{Meter: "tensor meter"}
	}
	return m.minValue, nil
}

// Max returns the largest element seen. It returns an EmptyMeterError if
// the meter is empty.
func (m *TensorMeter) Max() (float64, error) {
	if m.count == 0 {
		return 0, &EmptyMeterError{Meter: "tensor meter"}
	}
	return m.maxValue, nil
}

// Reset clears the meter
func (m *TensorMeter) Reset() {
	m.count = 0
	m.total = 0
	m.minValue = math.Inf(1)
	m.maxValue = math.Inf(-1)
}

// Clone creates a copy of the meter
func (m *TensorMeter) Clone() *TensorMeter {
	return &TensorMeter{count: m.count, total: m.total, minValue: m.minValue, maxValue: m.maxValue}
}

// Equal reports whether two meters hold the same state
func (m *TensorMeter) Equal(other *TensorMeter) bool {
	if other == nil {
		return false
	}
	return m.count == other.count && m.total == other.total &&
		m.minValue == other.minValue && m.maxValue == other.maxValue
}

// Merge combines the meter with others into a new meter
func (m *TensorMeter) Merge(others ...*TensorMeter) *TensorMeter {
	merged := m.Clone()
	merged.MergeInPlace(others...)
	return merged
}

// MergeInPlace combines other meters into this one
func (m *TensorMeter) MergeInPlace(others ...*TensorMeter) {
	for _, other := range others {
		if other.count == 0 {
			continue
		}
		m.count += other.count
		m.total += other.total
		m.minValue = math.Min(m.minValue, other.minValue)
		m.maxValue = math.Max(m.maxValue, other.maxValue)
	}
}

// AllReduce combines the meter across all workers: counts and totals are
// summed, extrema are reduced with min/max. Must be called uniformly by
// every worker.
func (m *TensorMeter) AllReduce(comm distributed.Communicator) (*TensorMeter, error) {
	count, err := comm.AllReduceInt(m.count, distributed.SUM)
	if err != nil {
		return nil, err
	}
	total, err := comm.AllReduceFloat64(m.total, distributed.SUM)
	if err != nil {
		return nil, err
	}
	minValue, err := comm.AllReduceFloat64(m.minValue, distributed.MIN)
	if err != nil {
		return nil, err
	}
	maxValue, err := comm.AllReduceFloat64(m.maxValue, distributed.MAX)
	if err != nil {
		return nil, err
	}
	return &TensorMeter{count: count, total: total, minValue: minValue, maxValue: maxValue}, nil
}

// StateDict returns the meter state as a flat mapping. The extrema keys
// are omitted while the meter is empty because their initial values are
// not representable in JSON.
func (m *TensorMeter) StateDict() map[string]any {
	state := map[string]any{"count": m.count, "total": m.total}
	if m.count > 0 {
		state["min_value"] = m.minValue
		state["max_value"] = m.maxValue
	}
	return state
}

// LoadStateDict restores the meter from a state mapping
func (m *TensorMeter) LoadStateDict(state map[string]any) error {
	count, err := statedict.Int(state, "count")
	if err != nil {
		return err
	}
	total, err := statedict.Float64(state, "total")
	if err != nil {
		return err
	}
	minValue := math.Inf(1)
	maxValue := math.Inf(-1)
	if count > 0 {
		if minValue, err = statedict.Float64(state, "min_value"); err != nil {
			return err
		}
		if maxValue, err = statedict.Float64(state, "max_value"); err != nil {
			return err
		}
	}
	m.count = count
	m.total = total
	m.minValue = minValue
	m.maxValue = maxValue
	return nil
}
