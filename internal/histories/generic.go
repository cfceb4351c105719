package histories

import (
	"fmt"

	"github.com/gradkit/gradkit/internal/statedict"
	"github.com/gradkit/gradkit/pkg/errors"
)

// DefaultMaxSize is the default bounded window of a history.
const DefaultMaxSize = 10

// Entry is one (step, value) pair of a history.
type Entry struct {
	Step  int
	Value float64
}

// GenericHistory keeps the most recent values added to the history in a
// bounded FIFO window; the oldest entry is evicted once full. It does not
// track a best value because no ordering policy is attached; see
// ScalarHistory for a comparator-backed variant.
type GenericHistory struct {
	name    string
	maxSize int
	entries []Entry
}

// NewGenericHistory creates a history retaining the maxSize most recent
// entries. maxSize must be greater than 0.
func NewGenericHistory(name string, maxSize int) (*GenericHistory, error) {
	if maxSize <= 0 {
		return nil, errors.ValidationErrorf("history size must be greater than 0 (received: %d)", maxSize)
	}
	return &GenericHistory{name: name, maxSize: maxSize}, nil
}

// String returns a compact description of the history
func (h *GenericHistory) String() string {
	return fmt.Sprintf("GenericHistory(name=%s, max_size=%d, size=%d)", h.name, h.maxSize, len(h.entries))
}

// Name returns the name of the history
func (h *GenericHistory) Name() string {
	return h.name
}

// MaxSize returns the maximum number of retained entries
func (h *GenericHistory) MaxSize() int {
	return h.maxSize
}

// AddValue appends a (step, value) pair, evicting the oldest entry when
// the window is full
func (h *GenericHistory) AddValue(value float64, step int) {
	if len(h.entries) == h.maxSize {
		copy(h.entries, h.entries[1:])
		h.entries[len(h.entries)-1] = Entry{Step: step, Value: value}
		return
	}
	h.entries = append(h.entries, Entry{Step: step, Value: value})
}

// GetLastValue returns the most recently added value. It returns an
// EmptyHistoryError when nothing has been added.
func (h *GenericHistory) GetLastValue() (float64, error) {
	if len(h.entries) == 0 {
		return 0, &EmptyHistoryError{History: h.name}
	}
	return h.entries[len(h.entries)-1].Value, nil
}

// RecentHistory returns a copy of the retained entries, oldest first
func (h *GenericHistory) RecentHistory() []Entry {
	out := make([]Entry, len(h.entries))
	copy(out, h.entries)
	return out
}

// IsComparable reports whether the history tracks a best value; always
// false for GenericHistory
func (h *GenericHistory) IsComparable() bool {
	return false
}

// IsEmpty reports whether no value was added yet
func (h *GenericHistory) IsEmpty() bool {
	return len(h.entries) == 0
}

// Equal reports whether two histories hold the same state
func (h *GenericHistory) Equal(other *GenericHistory) bool {
	if other == nil || h.name != other.name || h.maxSize != other.maxSize ||
		len(h.entries) != len(other.entries) {
		return false
	}
	for i, e := range h.entries {
		if other.entries[i] != e {
			return false
		}
	}
	return true
}

// StateDict returns the retained window, including step annotations
func (h *GenericHistory) StateDict() map[string]any {
	steps := make([]float64, len(h.entries))
	values := make([]float64, len(h.entries))
	for i, e := range h.entries {
		steps[i] = float64(e.Step)
		values[i] = e.Value
	}
	return map[string]any{"steps": steps, "values": values}
}

// LoadStateDict restores the retained window from a state mapping
func (h *GenericHistory) LoadStateDict(state map[string]any) error {
	steps, err := statedict.Float64Slice(state, "steps")
	if err != nil {
		return err
	}
	values, err := statedict.Float64Slice(state, "values")
	if err != nil {
		return err
	}
	if len(steps) != len(values) {
		return errors.ValidationErrorf("state steps/values length mismatch (%d vs %d)", len(steps), len(values))
	}
	h.entries = h.entries[:0]
	for i := range values {
		h.AddValue(values[i], int(steps[i]))
	}
	return nil
}
