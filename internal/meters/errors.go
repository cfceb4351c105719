package meters

import (
	stderrors "errors"
	"fmt"
)

// EmptyMeterError is returned when a read accessor is called on a meter
// that has received no value since its creation or last reset. Callers
// can avoid it by checking Count first.
type EmptyMeterError struct {
	Meter string
}

// Error implements the error interface
func (e *EmptyMeterError) Error() string {
	return fmt.Sprintf("the %s is empty", e.Meter)
}

// IsEmptyMeter reports whether err is an EmptyMeterError
func IsEmptyMeter(err error) bool {
	var emptyErr *EmptyMeterError
	return stderrors.As(err, &emptyErr)
}
