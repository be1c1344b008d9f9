package types

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates that a runtime, endpoint or version does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates that a resource with the same name exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrAccessDenied indicates the caller lacks permission for the call.
	ErrAccessDenied = errors.New("access denied")

	// ErrValidation indicates the control plane rejected the request shape.
	ErrValidation = errors.New("validation failed")

	// ErrReservedEndpoint is returned when deleting the DEFAULT endpoint.
	ErrReservedEndpoint = errors.New("endpoint is reserved")

	// ErrEndpointsRemain is returned when deleting a runtime that still has
	// non-reserved endpoints.
	ErrEndpointsRemain = errors.New("runtime still has endpoints")

	// ErrVersionSkew is returned when an update did not advance the version
	// by exactly one.
	ErrVersionSkew = errors.New("unexpected runtime version")

	// ErrPrecondition indicates a local or remote prerequisite is missing.
	ErrPrecondition = errors.New("precondition failed")
)

// APIError is a failed control plane or storage call. It carries the
// provider's error code and wraps one of the sentinels above when the code
// is recognised.
type APIError struct {
	Op      string
	Code    string
	Message string
	Err     error
}

// Error returns the error message.
func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, e.Message)
}

// Unwrap exposes the sentinel for errors.Is.
func (e *APIError) Unwrap() error {
	return e.Err
}

// ValidationError represents an error in user supplied input.
type ValidationError struct {
	Message string
}

// Error returns the error message.
func (e *ValidationError) Error() string {
	return e.Message
}

// Unwrap makes every ValidationError match ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError creates a new ValidationError with the given message.
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{
		Message: fmt.Sprintf(format, args...),
	}
}

// IsValidationError checks if an error is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// WrapValidationError wraps an error with additional context.
func WrapValidationError(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}

	message := fmt.Sprintf(format, args...)
	var ve *ValidationError
	if errors.As(err, &ve) {
		return &ValidationError{
			Message: fmt.Sprintf("%s: %s", message, ve.Message),
		}
	}

	return &ValidationError{
		Message: fmt.Sprintf("%s: %v", message, err),
	}
}

// PreconditionError reports a missing prerequisite such as a bucket, role
// or source file.
type PreconditionError struct {
	What   string
	Detail string
}

// Error returns the error message.
func (e *PreconditionError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("precondition failed: %s", e.What)
	}
	return fmt.Sprintf("precondition failed: %s: %s", e.What, e.Detail)
}

// Unwrap makes every PreconditionError match ErrPrecondition.
func (e *PreconditionError) Unwrap() error {
	return ErrPrecondition
}
