package errors

import (
	"errors"
	"fmt"
)

// Common error types for categorization and handling

var (
	// ErrNotFound indicates a requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates invalid user input
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates access to a resource owned by another user
	ErrUnauthorized = errors.New("unauthorized")

	// ErrAlreadyExists indicates a uniqueness conflict
	ErrAlreadyExists = errors.New("already exists")

	// ErrServiceUnavailable indicates a required service is unavailable
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrDatabaseOperation indicates a database operation failed
	ErrDatabaseOperation = errors.New("database operation failed")

	// ErrLLMCommunication indicates LLM communication failed
	ErrLLMCommunication = errors.New("llm communication failed")

	// ErrDataLoss indicates an upload integrity check failed (size or checksum mismatch)
	ErrDataLoss = errors.New("data integrity check failed")

	// ErrRetryExhausted indicates an operation failed after all retry attempts
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrCancelled indicates a job was cancelled by the user
	ErrCancelled = errors.New("cancelled")
)

// RPC-level error categories surfaced at the transport boundary.
const (
	CategoryNotFound          = "NOT_FOUND"
	CategoryPermissionDenied  = "PERMISSION_DENIED"
	CategoryInvalidArgument   = "INVALID_ARGUMENT"
	CategoryDeadlineExceeded  = "DEADLINE_EXCEEDED"
	CategoryResourceExhausted = "RESOURCE_EXHAUSTED"
	CategoryAlreadyExists     = "ALREADY_EXISTS"
	CategoryUnavailable       = "UNAVAILABLE"
	CategoryInternal          = "INTERNAL"
	CategoryDataLoss          = "DATA_LOSS"
)

// WrapError wraps an error with context message
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// WrapErrorf wraps an error with formatted context message
func WrapErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// IsNotFound checks if error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidInput checks if error is an invalid input error
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsUnauthorized checks if error is an ownership violation
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsServiceUnavailable checks if error is a service unavailable error
func IsServiceUnavailable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable)
}

// IsDataLoss checks if error is an integrity failure
func IsDataLoss(err error) bool {
	return errors.Is(err, ErrDataLoss)
}

// Category maps an error to its coarse RPC category. The mapping is done
// once at the transport edge; components below it raise sentinel errors.
func Category(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return CategoryNotFound
	case errors.Is(err, ErrUnauthorized):
		return CategoryPermissionDenied
	case errors.Is(err, ErrInvalidInput):
		return CategoryInvalidArgument
	case errors.Is(err, ErrAlreadyExists):
		return CategoryAlreadyExists
	case errors.Is(err, ErrDataLoss):
		return CategoryDataLoss
	case errors.Is(err, ErrRetryExhausted), errors.Is(err, ErrServiceUnavailable):
		return CategoryUnavailable
	case errors.Is(err, ErrCancelled):
		return CategoryDeadlineExceeded
	default:
		return CategoryInternal
	}
}
