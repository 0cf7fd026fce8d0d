package query

import "errors"

// ValidationError rejects a malformed request before any store call is made.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ErrComparisonNotSupported marks a base query that no comparison can be
// derived for. It is not a failure; callers omit comparison data and proceed.
var ErrComparisonNotSupported = errors.New("comparison not supported for this query")
