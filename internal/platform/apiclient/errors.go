package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrRefreshFailed matches every error produced by a failed refresh cycle.
	ErrRefreshFailed = errors.New("token refresh failed")
	// ErrNoRefreshToken is returned by a refresh attempt without a stored refresh token.
	ErrNoRefreshToken = errors.New("no refresh token")
)

// RefreshError is the terminal error shared by the triggering request and
// every request queued behind the same refresh cycle.
type RefreshError struct {
	Err error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("%s: %v", ErrRefreshFailed, e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }

func (e *RefreshError) Is(target error) bool { return target == ErrRefreshFailed }

// BusinessError is a call the backend processed and rejected. MessageKey is an
// i18n key the UI translates into a toast; it is never retried.
type BusinessError struct {
	HTTPStatus int
	StatusCode int
	MessageKey string
}

func (e *BusinessError) Error() string {
	return fmt.Sprintf("backend rejected request: %s (status %d)", e.MessageKey, e.StatusCode)
}

// HTTPError is a non-2xx response that carried no usable envelope.
type HTTPError struct {
	Status int
	Body   []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d", e.Status)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Status
	}
	var be *BusinessError
	if errors.As(err, &be) {
		return be.HTTPStatus
	}
	return 0
}

// IsUnauthorized reports whether err is a 401 that survived the refresh flow.
func IsUnauthorized(err error) bool {
	return StatusOf(err) == http.StatusUnauthorized
}

// MessageKeyOf returns the business message key carried by err, or "".
func MessageKeyOf(err error) string {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.MessageKey
	}
	return ""
}
