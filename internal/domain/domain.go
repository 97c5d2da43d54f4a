// Package domain holds what the screen services share: input validation
// errors. Each service lives in its own subpackage and talks to the backend
// only through an apiclient.Dispatcher.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalid marks input rejected before anything is sent to the backend.
var ErrInvalid = errors.New("invalid input")

// Invalidf returns a validation error wrapping ErrInvalid.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// IsInvalid reports whether err is a validation error.
func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalid)
}

// DateLayout is the backend's calendar date format.
const DateLayout = "2006-01-02"

// ParseDate parses a calendar date, naming field in the error.
func ParseDate(field, value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, Invalidf("%s must be a date (YYYY-MM-DD), got %q", field, value)
	}
	return t, nil
}
