package histories

import (
	stderrors "errors"
	"fmt"
)

// EmptyHistoryError is returned when a value is requested from a history
// that has received no value yet. Callers can avoid it by checking
// IsEmpty first.
type EmptyHistoryError struct {
	History string
}

// Error implements the error interface
func (e *EmptyHistoryError) Error() string {
	return fmt.Sprintf("history %q is empty", e.History)
}

// IsEmptyHistory reports whether err is an EmptyHistoryError
func IsEmptyHistory(err error) bool {
	var emptyErr *EmptyHistoryError
	return stderrors.As(err, &emptyErr)
}
