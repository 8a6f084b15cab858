package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError is implemented by errors that map to an HTTP status code
type HTTPError interface {
	error
	StatusCode() int
}

// Sentinel errors, matched with errors.Is against the typed errors below
var (
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("not found")
	ErrInvariant        = errors.New("invariant violation")
	ErrPermissionDenied = errors.New("permission denied")
)

type (
	// ValidationError reports malformed input such as a grant that sets both
	// or neither of its target fields.
	ValidationError struct {
		Message string
		Err     error
	}

	// NotFoundError reports a reference to an unknown grant, folder or document.
	// Key replaces ID for resources addressed by an external reference.
	NotFoundError struct {
		Resource string
		ID       int64
		Key      string
	}

	// InvariantViolation reports a mutation that would break a structural
	// rule, e.g. a folder becoming its own ancestor.
	InvariantViolation struct {
		Message string
	}

	// PermissionDenied reports an authorization failure on a mutating operation
	PermissionDenied struct {
		Message string
	}
)

func (e *ValidationError) Error() string { return e.Message }

func (e *NotFoundError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s not found: %s", e.Resource, e.Key)
	}
	return fmt.Sprintf("%s not found: %d", e.Resource, e.ID)
}

func (e *InvariantViolation) Error() string { return e.Message }
func (e *PermissionDenied) Error() string   { return e.Message }

func (e *ValidationError) StatusCode() int    { return http.StatusBadRequest }
func (e *NotFoundError) StatusCode() int      { return http.StatusNotFound }
func (e *InvariantViolation) StatusCode() int { return http.StatusConflict }
func (e *PermissionDenied) StatusCode() int   { return http.StatusForbidden }

func (e *ValidationError) Is(target error) bool    { return target == ErrValidation }
func (e *NotFoundError) Is(target error) bool      { return target == ErrNotFound }
func (e *InvariantViolation) Is(target error) bool { return target == ErrInvariant }
func (e *PermissionDenied) Is(target error) bool   { return target == ErrPermissionDenied }

// Unwrap exposes the underlying validator error, if any
func (e *ValidationError) Unwrap() error { return e.Err }

// NewValidationError creates a ValidationError with a formatted message
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// NewNotFoundError creates a NotFoundError for the given resource kind
func NewNotFoundError(resource string, id int64) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// NewNotFoundKey creates a NotFoundError for a resource looked up by key
func NewNotFoundKey(resource, key string) *NotFoundError {
	return &NotFoundError{Resource: resource, Key: key}
}

// NewInvariantViolation creates an InvariantViolation with a formatted message
func NewInvariantViolation(format string, args ...interface{}) *InvariantViolation {
	return &InvariantViolation{Message: fmt.Sprintf(format, args...)}
}

// NewPermissionDenied creates a PermissionDenied with a formatted message
func NewPermissionDenied(format string, args ...interface{}) *PermissionDenied {
	return &PermissionDenied{Message: fmt.Sprintf(format, args...)}
}

// StatusCode returns the HTTP status for err, or 500 when err carries none
func StatusCode(err error) int {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode()
	}
	return http.StatusInternalServerError
}
