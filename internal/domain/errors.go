package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

// DataError marks a malformed snapshot (crossed book, empty side,
// non-monotonic timestamp). Per the configured policy the tick is either
// skipped or the run aborted; account state is never touched by it.
type DataError struct {
	msg string
}

// NewDataError builds a DataError with a formatted description.
func NewDataError(format string, args ...interface{}) *DataError {
	return &DataError{msg: fmt.Sprintf(format, args...)}
}

func (e *DataError) Error() string {
	return e.msg
}

// IsDataError reports whether err is (or wraps) a DataError.
func IsDataError(err error) bool {
	var de *DataError
	return errors.As(err, &de)
}
