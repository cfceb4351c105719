package meters

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/gradkit/gradkit/internal/distributed"
	"github.com/gradkit/gradkit/internal/statedict"
	"github.com/gradkit/gradkit/pkg/errors"
)

// TensorMeter2 retains every observed value (flattened) to compute exact
// order statistics (median, quantiles, standard deviation) that the O(1)
// meters cannot provide. Space grows linearly with the total element
// count, so it is meant for bounded streams such as a single epoch.
type TensorMeter2 struct {
	values []float64
}

// NewTensorMeter2 creates an empty TensorMeter2
func NewTensorMeter2() *TensorMeter2 {
	return &TensorMeter2{}
}

// String returns a compact description of the meter
func (m *TensorMeter2) String() string {
	return fmt.Sprintf("TensorMeter2(count=%d)", len(m.values))
}

// Count returns the number of elements seen since the last reset
func (m *TensorMeter2) Count() int {
	return len(m.values)
}

// Update appends all elements of the batch to the meter
func (m *TensorMeter2) Update(values []float64) {
	m.values = append(m.values, values...)
}

// Mean computes the mean of all elements. It returns an EmptyMeterError
// if the meter is empty.
func (m *TensorMeter2) Mean() (float64, error) {
	if len(m.values) == 0 {
		return 0, &EmptyMeterError{Meter: "tensor meter"}
	}
	return stat.Mean(m.values, nil), nil
}

// Average is an alias of Mean
func (m *TensorMeter2) Average() (float64, error) {
	return m.Mean()
}

// Sum returns the sum of all elements. It returns an EmptyMeterError if
// the meter is empty.
func (m *TensorMeter2) Sum() (float64, error) {
	if len(m.values) == 0 {
		return 0, &EmptyMeterError{Meter: "tensor meter"}
	}
	return floats.Sum(m.values), nil
}

// Min returns the smallest element. It returns an EmptyMeterError if the
// meter is empty.
func (m *TensorMeter2) Min() (float64, error) {
	if len(m.values) == 0 {
		return 0, &EmptyMeterError{Meter: "tensor meter"}
	}
	return floats.Min(m.values), nil
}

// Max returns the largest element. It returns an EmptyMeterError if the
// meter is empty.
func (m *TensorMeter2) Max() (float64, error) {
	if len(m.values) == 0 {
		return 0, &EmptyMeterError{Meter: "tensor meter"}
	}
	return floats.Max(m.values), nil
}

// Median computes the median of all elements. It returns an
// EmptyMeterError if the meter is empty.
func (m *TensorMeter2) Median() (float64, error) {
	return m.Quantile(0.5)
}

// Quantile computes the q-quantile with linear interpolation, q in [0, 1].
// It returns an EmptyMeterError if the meter is empty.
func (m *TensorMeter2) Quantile(q float64) (float64, error) {
	if q < 0 || q > 1 || math.IsNaN(q) {
		return 0, errors.ValidationErrorf("quantile must be in [0, 1] (received: %g)", q)
	}
	if len(m.values) == 0 {
		return 0, &EmptyMeterError{Meter: "tensor meter"}
	}
	sorted := make([]float64, len(m.values))
	copy(sorted, m.values)
	sort.Float64s(sorted)
	return stat.Quantile(q, stat.LinInterp, sorted, nil), nil
}

// Quantiles computes several quantiles at once, each in [0, 1]
func (m *TensorMeter2) Quantiles(qs []float64) ([]float64, error) {
	for _, q := range qs {
		if q < 0 || q > 1 || math.IsNaN(q) {
			return nil, errors.ValidationErrorf("quantile must be in [0, 1] (received: %g)", q)
		}
	}
	if len(m.values) == 0 {
		return nil, &EmptyMeterError{Meter: "tensor meter"}
	}
	sorted := make([]float64, len(m.values))
	copy(sorted, m.values)
	sort.Float64s(sorted)
	out := make([]float64, len(qs))
	for i, q := range qs {
		out[i] = stat.Quantile(q, stat.LinInterp, sorted, nil)
	}
	return out, nil
}

// Std computes the sample standard deviation of all elements. It returns
// an EmptyMeterError if the meter is empty.
func (m *TensorMeter2) Std() (float64, error) {
	if len(m.values) == 0 {
		return 0, &EmptyMeterError{Meter: "tensor meter"}
	}
	return stat.StdDev(m.values, nil), nil
}

// Values returns a copy of all retained elements in insertion order
func (m *TensorMeter2) Values() []float64 {
	out := make([]float64, len(m.values))
	copy(out, m.values)
	return out
}

// Reset discards all stored values
func (m *TensorMeter2) Reset() {
	m.values = nil
}

// Clone creates a copy of the meter
func (m *TensorMeter2) Clone() *TensorMeter2 {
	return &TensorMeter2{values: m.Values()}
}

// Equal reports whether two meters hold the same values in the same order
func (m *TensorMeter2) Equal(other *TensorMeter2) bool {
	if other == nil || len(m.values) != len(other.values) {
		return false
	}
	for i, v := range m.values {
		if other.values[i] != v {
			return false
		}
	}
	return true
}

// Merge combines the meter with others into a new meter
func (m *TensorMeter2) Merge(others ...*TensorMeter2) *TensorMeter2 {
	merged := m.Clone()
	merged.MergeInPlace(others...)
	return merged
}

// MergeInPlace combines other meters into this one
func (m *TensorMeter2) MergeInPlace(others ...*TensorMeter2) {
	for _, other := range others {
		m.values = append(m.values, other.values...)
	}
}

// AllReduce gathers the raw values of every worker, concatenated in rank
// order. The traffic and memory are proportional to the total element
// count across all workers. Must be called uniformly by every worker.
func (m *TensorMeter2) AllReduce(comm distributed.Communicator) (*TensorMeter2, error) {
	gathered, err := comm.AllGatherFloat64s(m.values)
	if err != nil {
		return nil, err
	}
	return &TensorMeter2{values: gathered}, nil
}

// StateDict returns the meter state as a flat mapping
func (m *TensorMeter2) StateDict() map[string]any {
	return map[string]any{"values": m.Values()}
}

// LoadStateDict restores the meter from a state mapping
func (m *TensorMeter2) LoadStateDict(state map[string]any) error {
	values, err := statedict.Float64Slice(state, "values")
	if err != nil {
		return err
	}
	m.values = values
	return nil
}
