package backend

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks arguments rejected locally before any network call.
	ErrValidation = errors.New("validation failed")
	// ErrNetwork marks calls that never got a response: dial failures, timeouts, open breaker.
	ErrNetwork = errors.New("backend unreachable")
)

// RemoteError is a normalised error response from the backend.
type RemoteError struct {
	Message          string
	StatusCode       int
	RetryAfter       string            // raw Retry-After header, set on 429
	ValidationErrors map[string]string // field -> message, set on 400 from task endpoints
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
}

// NetworkError wraps the transport failure. errors.Is(err, ErrNetwork) holds for it.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrNetwork, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

// StatusOf returns the backend status carried by err, or 0.
func StatusOf(err error) int {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.StatusCode
	}
	return 0
}
