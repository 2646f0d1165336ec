package portal

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core"
)

// SessionExpiredNotice is shown to the user whenever a session is dropped because its token was rejected.
const SessionExpiredNotice = "Session expired. Please login again."

var (
	ErrSessionExpired = errors.New("session expired")
	ErrNotFound       = errors.New("not found")
	ErrUnauthorized   = errors.New("permission denied")
	ErrBusy           = errors.New("a submission is already in progress")
	ErrNoSession      = errors.New("not logged in")

	// ErrStaleResponse is returned to the caller of a fetch whose selection changed before it completed.
	// The result was discarded.
	ErrStaleResponse = errors.New("response discarded: selection changed")

	// errUnauthenticated is the kind of a 401 response. It never leaves the package: login turns it into
	// an *AuthError, every other call expires the session.
	errUnauthenticated = errors.New("not authenticated")
)

// AuthError is returned by a failed login: bad credentials, deactivated account or network error.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	return "authentication failed: " + e.Reason
}

func (e *AuthError) Unwrap() error { return e.Err }

// TransportError is a network failure or a response the client cannot make sense of (5xx, bad payload).
// In-memory edits are preserved when one is returned.
type TransportError struct {
	Method     string
	Path       string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: unexpected status %d: %v", e.Method, e.Path, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// apiError is a 401, 403 or 404 response. Its Cause is the matching sentinel so that errors.Cause(err)
// can be compared with ErrNotFound & co, while Error returns what the server said.
type apiError struct {
	status  int
	message string
	kind    error
}

func (e *apiError) Error() string {
	if e.message == "" {
		return e.kind.Error()
	}
	return e.message
}

func (e *apiError) Cause() error  { return e.kind }
func (e *apiError) Unwrap() error { return e.kind }

func isUnauthenticated(err error) bool {
	return errors.Cause(err) == errUnauthenticated
}

// requiredField builds the local validation error of a missing input.
func requiredField(field string) error {
	return core.NewValidationError(nil, core.FieldError{Field: field, Error: "this field is required"})
}

// messageFor returns the text to put in the message slot for err.
// Failures without a meaningful server message fall back to fallback.
func messageFor(err error, fallback string) string {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Reason
	}
	if core.IsValidationError(err) {
		return err.Error()
	}
	switch errors.Cause(err) {
	case ErrSessionExpired:
		return SessionExpiredNotice
	case ErrBusy, ErrNoSession:
		return err.Error()
	}
	var apiErr *apiError
	if errors.As(err, &apiErr) && apiErr.message != "" {
		return apiErr.message
	}
	return fallback
}
