package config

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError reports invalid user input: an unknown plugin name, a bad
// option value or a conflicting disk layout. Valid lists the accepted
// choices, if there is a fixed set of them.
type ValidationError struct {
	Field   string
	Value   string
	Message string
	Valid   []string
}

func (e *ValidationError) Error() string {
	var b strings.Builder

	switch {
	case e.Message != "":
		fmt.Fprintf(&b, "invalid %s %q: %s", e.Field, e.Value, e.Message)
	default:
		fmt.Fprintf(&b, "invalid %s %q", e.Field, e.Value)
	}

	if len(e.Valid) > 0 {
		fmt.Fprintf(&b, ". Valid %ss: %s", e.Field, strings.Join(e.Valid, " "))
	}

	return b.String()
}

// NewValidationError returns a ValidationError with a formatted message.
func NewValidationError(field, value, format string, args ...any) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf(format, args...),
	}
}

// IsValidation reports whether err is or wraps a *ValidationError.
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
