package roles

import (
	"errors"
	"fmt"
)

// ErrValidation is wrapped by every ValidationError.
var ErrValidation = errors.New("invalid role request")

// ValidationError rejects a request before any mutation.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// RemoteSyncError is a failed remote membership call. It is reported in Result and logged,
// never returned.
type RemoteSyncError struct {
	Op    string // add, remove, list
	Group string
	Err   error
}

func (e RemoteSyncError) Error() string {
	if e.Group == "" {
		return fmt.Sprintf("remote %s failed: %v", e.Op, e.Err)
	}

	return fmt.Sprintf("remote %s %s failed: %v", e.Op, e.Group, e.Err)
}

func (e RemoteSyncError) Unwrap() error {
	return e.Err
}
