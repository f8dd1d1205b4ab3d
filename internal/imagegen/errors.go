package imagegen

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyPrompt is returned when nothing is left to draw after token stripping
	ErrEmptyPrompt = errors.New("imagegen: empty prompt")
	// ErrJobFailed is returned when the backend reports the job as failed
	ErrJobFailed = errors.New("imagegen: job failed")
	// ErrJobTimedOut is returned when the job is not ready before the deadline
	ErrJobTimedOut = errors.New("imagegen: job timed out")
)

// TransientError wraps a backend failure the caller may report to the user.
// Callers must not retry it more than once.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("imagegen %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err came from the rendering backend
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// APIError represents an error response from the rendering backend
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("render backend error (status %d): %s", e.StatusCode, e.Message)
}
