package request

import (
	"errors"
	"fmt"
)

// ErrInFlight is returned when a manager already has an outstanding request.
// The ledger is never touched on this path.
var ErrInFlight = errors.New("another request is already in flight")

// ValidationError reports bad input (empty prompt, out-of-range count,
// unknown aspect ratio, insufficient token balance). No I/O was attempted.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

// NewValidationError creates a ValidationError with the given reason.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// TransportError reports a network failure, a non-2xx HTTP status or a
// client-side timeout while talking to a remote model endpoint.
type TransportError struct {
	Endpoint string
	Status   int
	Err      error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("request to %s failed with status %d", e.Endpoint, e.Status)
	}
	return fmt.Sprintf("request to %s failed: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DecodeError reports a well-formed HTTP response that lacked the expected
// image or text payload. Treated like a TransportError for ledger purposes.
type DecodeError struct {
	Endpoint string
	Reason   string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("response from %s could not be decoded: %s", e.Endpoint, e.Reason)
}

// FallbackExhaustedError reports that the local visual-effect fallback failed
// after the remote call already failed. Terminal, there is no further fallback.
type FallbackExhaustedError struct {
	RemoteErr   error
	FallbackErr error
}

func (e *FallbackExhaustedError) Error() string {
	return fmt.Sprintf("remote edit failed (%v) and local fallback failed (%v)", e.RemoteErr, e.FallbackErr)
}

func (e *FallbackExhaustedError) Unwrap() error {
	return e.RemoteErr
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}
