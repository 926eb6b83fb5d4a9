package domain

import "errors"

var (
	// ErrValidation is returned for a malformed pagination spec, request body or upload row
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned for unknown jobs, artifacts or sessions
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized is returned when the caller identity is missing or invalid
	ErrUnauthorized = errors.New("unauthorized")

	// ErrConflict is returned when a resource is not in a state that allows the operation
	ErrConflict = errors.New("conflict")

	// ErrNotReady is returned when a download url is requested before the export completed
	ErrNotReady = errors.New("export not ready")

	// ErrTokenExpired is returned when a download token is well formed but past its expiry
	ErrTokenExpired = errors.New("download token expired")

	// ErrShuttingDown is returned when work is submitted after shutdown started
	ErrShuttingDown = errors.New("service is shutting down")
)

// TransientError wraps storage, query and file failures
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient error: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps err as a TransientError, nil stays nil
func NewTransientError(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err wraps a TransientError
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}
