package histories

import (
	"fmt"

	"github.com/gradkit/gradkit/internal/statedict"
)

// ScalarHistory is a comparator-backed history of scalar values. On top
// of the bounded recent window it tracks the best value seen so far; the
// comparator's tie-break (new wins) decides which of two equal-quality
// values is retained.
type ScalarHistory struct {
	window     *GenericHistory
	comparator Comparator
	bestValue  float64
	improved   bool
}

// NewScalarHistory creates a comparator-backed history
func NewScalarHistory(name string, comparator Comparator, maxSize int) (*ScalarHistory, error) {
	window, err := NewGenericHistory(name, maxSize)
	if err != nil {
		return nil, err
	}
	return &ScalarHistory{
		window:     window,
		comparator: comparator,
		bestValue:  comparator.InitialBestValue(),
	}, nil
}

// NewMinScalarHistory creates a history where lower values are better
// (e.g. a loss), with the default window size
func NewMinScalarHistory(name string) *ScalarHistory {
	h, _ := NewScalarHistory(name, MinScalarComparator{}, DefaultMaxSize)
	return h
}

// NewMaxScalarHistory creates a history where higher values are better
// (e.g. an accuracy), with the default window size
func NewMaxScalarHistory(name string) *ScalarHistory {
	h, _ := NewScalarHistory(name, MaxScalarComparator{}, DefaultMaxSize)
	return h
}

// String returns a compact description of the history
func (h *ScalarHistory) String() string {
	return fmt.Sprintf("ScalarHistory(name=%s, max_size=%d, size=%d)",
		h.window.name, h.window.maxSize, len(h.window.entries))
}

// Name returns the name of the history
func (h *ScalarHistory) Name() string {
	return h.window.Name()
}

// MaxSize returns the maximum number of retained entries
func (h *ScalarHistory) MaxSize() int {
	return h.window.MaxSize()
}

// AddValue appends a (step, value) pair and updates the best value
func (h *ScalarHistory) AddValue(value float64, step int) {
	h.window.AddValue(value, step)
	if h.comparator.IsBetter(h.bestValue, value) {
		h.bestValue = value
		h.improved = true
	} else {
		h.improved = false
	}
}

// GetLastValue returns the most recently added value. It returns an
// EmptyHistoryError when nothing has been added.
func (h *ScalarHistory) GetLastValue() (float64, error) {
	return h.window.GetLastValue()
}

// GetBestValue returns the best value seen so far. It returns an
// EmptyHistoryError when nothing has been added.
func (h *ScalarHistory) GetBestValue() (float64, error) {
	if h.window.IsEmpty() {
		return 0, &EmptyHistoryError{History: h.window.name}
	}
	return h.bestValue, nil
}

// HasImproved reports whether the last added value was the best so far.
// It returns an EmptyHistoryError when nothing has been added.
func (h *ScalarHistory) HasImproved() (bool, error) {
	if h.window.IsEmpty() {
		return false, &EmptyHistoryError{History: h.window.name}
	}
	return h.improved, nil
}

// RecentHistory returns a copy of the retained entries, oldest first
func (h *ScalarHistory) RecentHistory() []Entry {
	return h.window.RecentHistory()
}

// IsComparable reports whether the history tracks a best value; always
// true for ScalarHistory
func (h *ScalarHistory) IsComparable() bool {
	return true
}

// IsEmpty reports whether no value was added yet
func (h *ScalarHistory) IsEmpty() bool {
	return h.window.IsEmpty()
}

// Comparator returns the scoring policy of the history
func (h *ScalarHistory) Comparator() Comparator {
	return h.comparator
}

// Equal reports whether two histories hold the same state and policy
func (h *ScalarHistory) Equal(other *ScalarHistory) bool {
	if other == nil || !h.comparator.Equal(other.comparator) {
		return false
	}
	if h.bestValue != other.bestValue || h.improved != other.improved {
		return false
	}
	return h.window.Equal(other.window)
}

// StateDict returns the retained window plus the best-value state. The
// best-value key is omitted while the history is empty because the
// comparator's initial value is not representable in JSON.
func (h *ScalarHistory) StateDict() map[string]any {
	state := h.window.StateDict()
	if !h.window.IsEmpty() {
		state["best_value"] = h.bestValue
	}
	state["improved"] = h.improved
	return state
}

// LoadStateDict restores the history from a state mapping
func (h *ScalarHistory) LoadStateDict(state map[string]any) error {
	if err := h.window.LoadStateDict(state); err != nil {
		return err
	}
	bestValue := h.comparator.InitialBestValue()
	if !h.window.IsEmpty() {
		var err error
		if bestValue, err = statedict.Float64(state, "best_value"); err != nil {
			return err
		}
	}
	improved := false
	if raw, ok := state["improved"]; ok {
		if b, ok := raw.(bool); ok {
			improved = b
		}
	}
	h.bestValue = bestValue
	h.improved = improved
	return nil
}
