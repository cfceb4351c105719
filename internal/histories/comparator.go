// Package histories implements named, steppable traces of scalar values.
// A GenericHistory keeps a bounded recent window without a notion of
// "best"; a ScalarHistory additionally tracks the best value seen through
// a Comparator policy.
package histories

import "math"

// Comparator answers "is value B better than value A" for a scoring
// policy. It is used as: if IsBetter(old, new) { old = new }.
type Comparator interface {
	// InitialBestValue returns the value no real observation can be
	// worse than, so the first observation always wins
	InitialBestValue() float64

	// IsBetter reports whether newValue is at least as good as oldValue.
	// Ties favor the newer value.
	IsBetter(oldValue, newValue float64) bool

	// Equal reports whether two comparators implement the same policy
	Equal(other Comparator) bool
}

// MaxScalarComparator scores higher values as better.
type MaxScalarComparator struct{}

// InitialBestValue returns -Inf
func (MaxScalarComparator) InitialBestValue() float64 {
	return math.Inf(-1)
}

// IsBetter reports whether newValue >= oldValue
func (MaxScalarComparator) IsBetter(oldValue, newValue float64) bool {
	return oldValue <= newValue
}

// Equal reports whether other is also a MaxScalarComparator
func (MaxScalarComparator) Equal(other Comparator) bool {
	_, ok := other.(MaxScalarComparator)
	return ok
}

// MinScalarComparator scores lower values as better.
type MinScalarComparator struct{}

// InitialBestValue returns +Inf
func (MinScalarComparator) InitialBestValue() float64 {
	return math.Inf(1)
}

// IsBetter reports whether newValue <= oldValue
func (MinScalarComparator) IsBetter(oldValue, newValue float64) bool {
	return newValue <= oldValue
}

// Equal reports whether other is also a MinScalarComparator
func (MinScalarComparator) Equal(other Comparator) bool {
	_, ok := other.(MinScalarComparator)
	return ok
}
