package meters

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/gradkit/gradkit/internal/statedict"
	"github.com/gradkit/gradkit/pkg/errors"
)

// DefaultWindowSize is the default window of the MovingAverage meter.
const DefaultWindowSize = 20

// MovingAverage stores the last windowSize raw values and computes their
// arithmetic mean.
type MovingAverage struct {
	window *window
}

// NewMovingAverage creates a MovingAverage with the given window size
func NewMovingAverage(windowSize int) (*MovingAverage, error) {
	if windowSize <= 0 {
		return nil, errors.ValidationErrorf("window size must be greater than 0 (received: %d)", windowSize)
	}
	return &MovingAverage{window: newWindow(windowSize)}, nil
}

// String returns a compact description of the meter
func (m *MovingAverage) String() string {
	return fmt.Sprintf("MovingAverage(window_size=%d)", m.window.maxSize)
}

// WindowSize returns the maximum window size
func (m *MovingAverage) WindowSize() int {
	return m.window.maxSize
}

// Values returns a copy of the current window, oldest first
func (m *MovingAverage) Values() []float64 {
	return m.window.snapshot()
}

// Update appends a value, evicting the oldest one when the window is full
func (m *MovingAverage) Update(value float64) {
	m.window.push(value)
}

// SmoothedAverage computes the arithmetic mean of the current window. It
// returns an EmptyMeterError if the window is empty.
func (m *MovingAverage) SmoothedAverage() (float64, error) {
	if m.window.len() == 0 {
		return 0, &EmptyMeterError{Meter: "moving average meter"}
	}
	return stat.Mean(m.window.values, nil), nil
}

// Reset clears the window
func (m *MovingAverage) Reset() {
	m.window.clear()
}

// Clone creates a copy of the meter
func (m *MovingAverage) Clone() *MovingAverage {
	clone := &MovingAverage{window: newWindow(m.window.maxSize)}
	clone.window.replace(m.window.values)
	return clone
}

// Equal reports whether two meters hold the same state
func (m *MovingAverage) Equal(other *MovingAverage) bool {
	if other == nil || m.window.maxSize != other.window.maxSize ||
		m.window.len() != other.window.len() {
		return false
	}
	for i, v := range m.window.values {
		if other.window.values[i] != v {
			return false
		}
	}
	return true
}

// StateDict returns the meter state as a flat mapping
func (m *MovingAverage) StateDict() map[string]any {
	return map[string]any{
		"values":      m.window.snapshot(),
		"window_size": m.window.maxSize,
	}
}

// LoadStateDict restores the meter from a state mapping
func (m *MovingAverage) LoadStateDict(state map[string]any) error {
	windowSize, err := statedict.Int(state, "window_size")
	if err != nil {
		return err
	}
	if windowSize <= 0 {
		return errors.ValidationErrorf("window size must be greater than 0 (received: %d)", windowSize)
	}
	values, err := statedict.Float64Slice(state, "values")
	if err != nil {
		return err
	}
	m.window = newWindow(windowSize)
	m.window.replace(values)
	return nil
}

// DefaultAlpha is the default smoothing factor of ExponentialMovingAverage.
const DefaultAlpha = 0.98

// ExponentialMovingAverage computes an exponentially smoothed average in
// constant space: smoothed = alpha*smoothed + (1-alpha)*value.
type ExponentialMovingAverage struct {
	alpha           float64
	count           int
	smoothedAverage float64
}

// NewExponentialMovingAverage creates a meter with the given smoothing
// factor, 0 < alpha < 1.
func NewExponentialMovingAverage(alpha float64) (*ExponentialMovingAverage, error) {
	if alpha <= 0 || alpha >= 1 {
		return nil, errors.ValidationErrorf("alpha must be in (0, 1) (received: %g)", alpha)
	}
	return &ExponentialMovingAverage{alpha: alpha}, nil
}

// String returns a compact description of the meter
func (m *ExponentialMovingAverage) String() string {
	return fmt.Sprintf("ExponentialMovingAverage(alpha=%g, count=%d, smoothed_average=%g)",
		m.alpha, m.count, m.smoothedAverage)
}

// Count returns the number of values seen since the last reset
func (m *ExponentialMovingAverage) Count() int {
	return m.count
}

// Update folds a value into the smoothed average
func (m *ExponentialMovingAverage) Update(value float64) {
	m.smoothedAverage = m.alpha*m.smoothedAverage + (1-m.alpha)*value
	m.count++
}

// SmoothedAverage returns the smoothed average. It returns an
// EmptyMeterError if no value was added yet.
func (m *ExponentialMovingAverage) SmoothedAverage() (float64, error) {
	if m.count == 0 {
		return 0, &EmptyMeterError{Meter: "exponential moving average meter"}
	}
	return m.smoothedAverage, nil
}

// Reset clears the meter, keeping the smoothing factor
func (m *ExponentialMovingAverage) Reset() {
	m.count = 0
	m.smoothedAverage = 0
}

// Clone creates a copy of the meter
func (m *ExponentialMovingAverage) Clone() *ExponentialMovingAverage {
	return &ExponentialMovingAverage{
		alpha:           m.alpha,
		count:           m.count,
		smoothedAverage: m.smoothedAverage,
	}
}

// Equal reports whether two meters hold the same state
func (m *ExponentialMovingAverage) Equal(other *ExponentialMovingAverage) bool {
	if other == nil {
		return false
	}
	return m.alpha == other.alpha && m.count == other.count &&
		m.smoothedAverage == other.smoothedAverage
}

// StateDict returns the meter state as a flat mapping
func (m *ExponentialMovingAverage) StateDict() map[string]any {
	return map[string]any{
		"alpha":            m.alpha,
		"count":            m.count,
		"smoothed_average": m.smoothedAverage,
	}
}

// LoadStateDict restores the meter from a state mapping
func (m *ExponentialMovingAverage) LoadStateDict(state map[string]any) error {
	alpha, err := statedict.Float64(state, "alpha")
	if err != nil {
		return err
	}
	count, err := statedict.Int(state, "count")
	if err != nil {
		return err
	}
	smoothed, err := statedict.Float64(state, "smoothed_average")
	if err != nil {
		return err
	}
	m.alpha = alpha
	m.count = count
	m.smoothedAverage = smoothed
	return nil
}
