package meters

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/gradkit/gradkit/internal/statedict"
	"github.com/gradkit/gradkit/pkg/errors"
)

// DefaultScalarMeterSize is the default recent-window size of ScalarMeter.
const DefaultScalarMeterSize = 100

// ScalarMeter tracks the count, sum, and extrema of a scalar stream in
// constant space, plus a bounded window of the most recent values used to
// estimate the median and standard deviation. Memory is O(window), not
// O(stream).
type ScalarMeter struct {
	count    int
	total    float64
	minValue float64
	maxValue float64
	window   *window
}

// NewScalarMeter creates a ScalarMeter keeping maxSize recent values
func NewScalarMeter(maxSize int) (*ScalarMeter, error) {
	if maxSize <= 0 {
		return nil, errors.ValidationErrorf("max size must be greater than 0 (received: %d)", maxSize)
	}
	return &ScalarMeter{
		minValue: math.Inf(1),
		maxValue: math.Inf(-1),
		window:   newWindow(maxSize),
	}, nil
}

// String returns a compact description of the meter
func (m *ScalarMeter) String() string {
	return fmt.Sprintf("ScalarMeter(count=%d, total=%g, max_size=%d)", m.count, m.total, m.window.maxSize)
}

// Count returns the number of values seen since the last reset
func (m *ScalarMeter) Count() int {
	return m.count
}

// Total returns the sum of the values seen since the last reset
func (m *ScalarMeter) Total() float64 {
	return m.total
}

// Update adds a value to the meter
func (m *ScalarMeter) Update(value float64) {
	m.count++
	m.total += value
	m.minValue = math.Min(m.minValue, value)
	m.maxValue = math.Max(m.maxValue, value)
	m.window.push(value)
}

// Average computes the average over all values seen. It returns an
// EmptyMeterError if the meter is empty.
func (m *ScalarMeter) Average() (float64, error) {
	if m.count == 0 {
		return 0, &EmptyMeterError{Meter: "scalar meter"}
	}
	return m.total / float64(m.count), nil
}

// Min returns the smallest value seen. It returns an EmptyMeterError if
// the meter is empty.
func (m *ScalarMeter) Min() (float64, error) {
	if m.count == 0 {
		return 0, &EmptyMeterError{Meter: "scalar meter"}
	}
	return m.minValue, nil
}

// Max returns the largest value seen. It returns an EmptyMeterError if
// the meter is empty.
func (m *ScalarMeter) Max() (float64, error) {
	if m.count == 0 {
		return 0, &EmptyMeterError{Meter: "scalar meter"}
	}
	return m.maxValue, nil
}

// Median estimates the median from the recent window. It returns an
// EmptyMeterError if the meter is empty.
func (m *ScalarMeter) Median() (float64, error) {
	if m.count == 0 {
		return 0, &EmptyMeterError{Meter: "scalar meter"}
	}
	sorted := m.window.snapshot()
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.LinInterp, sorted, nil), nil
}

// Std estimates the sample standard deviation from the recent window. It
// returns an EmptyMeterError if the meter is empty.
func (m *ScalarMeter) Std() (float64, error) {
	if m.count == 0 {
		return 0, &EmptyMeterError{Meter: "scalar meter"}
	}
	if m.window.len() < 2 {
		return 0, nil
	}
	return stat.StdDev(m.window.values, nil), nil
}

// Reset clears the meter
func (m *ScalarMeter) Reset() {
	m.count = 0
	m.total = 0
	m.minValue = math.Inf(1)
	m.maxValue = math.Inf(-1)
	m.window.clear()
}

// Clone creates a copy of the meter
func (m *ScalarMeter) Clone() *ScalarMeter {
	clone := &ScalarMeter{
		count:    m.count,
		total:    m.total,
		minValue: m.minValue,
		maxValue: m.maxValue,
		window:   newWindow(m.window.maxSize),
	}
	clone.window.replace(m.window.values)
	return clone
}

// Equal reports whether two meters hold the same state
func (m *ScalarMeter) Equal(other *ScalarMeter) bool {
	if other == nil || m.count != other.count || m.total != other.total ||
		m.window.maxSize != other.window.maxSize || m.window.len() != other.window.len() {
		return false
	}
	if m.count > 0 && (m.minValue != other.minValue || m.maxValue != other.maxValue) {
		return false
	}
	for i, v := range m.window.values {
		if other.window.values[i] != v {
			return false
		}
	}
	return true
}

// StateDict returns the meter state as a flat mapping. The extrema keys
// are omitted while the meter is empty because their initial values are
// not representable in JSON.
func (m *ScalarMeter) StateDict() map[string]any {
	state := map[string]any{
		"count":    m.count,
		"total":    m.total,
		"values":   m.window.snapshot(),
		"max_size": m.window.maxSize,
	}
	if m.count > 0 {
		state["min_value"] = m.minValue
		state["max_value"] = m.maxValue
	}
	return state
}

// LoadStateDict restores the meter from a state mapping
func (m *ScalarMeter) LoadStateDict(state map[string]any) error {
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
	maxSize, err := statedict.Int(state, "max_size")
	if err != nil {
		return err
	}
	if maxSize <= 0 {
		return errors.ValidationErrorf("max size must be greater than 0 (received: %d)", maxSize)
	}
	values, err := statedict.Float64Slice(state, "values")
	if err != nil {
		return err
	}
	m.count = count
	m.total = total
	m.minValue = minValue
	m.maxValue = maxValue
	m.window = newWindow(maxSize)
	m.window.replace(values)
	return nil
}
