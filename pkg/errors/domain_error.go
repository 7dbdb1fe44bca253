package custom_error

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("resource not found")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrConflict          = errors.New("concurrent modification")
)

// ValidationError is returned before any state change when the input is unusable.
type ValidationError struct {
	Message  string `json:"message"`
	Property string `json:"property,omitempty"`
}

func NewValidationError(property, format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...), Property: property}
}

func (e *ValidationError) Error() string {
	if e.Property == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Property, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

type NotFoundError struct {
	Resource string
	ID       any
}

func NewNotFoundError(resource string, id any) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// InvalidTransitionError leaves the resource untouched.
type InvalidTransitionError struct {
	Resource string
	ID       any
	Action   string
	From     string
	To       string
}

func (e *InvalidTransitionError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("cannot %s %s %v while it is %s", e.Action, e.Resource, e.ID, e.From)
	}
	return fmt.Sprintf("%s %v cannot move from %s to %s", e.Resource, e.ID, e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// ConflictError means another writer changed the row after it was read; the caller must
// re-fetch and retry.
type ConflictError struct {
	Resource string
	ID       any
}

func NewConflictError(resource string, id any) *ConflictError {
	return &ConflictError{Resource: resource, ID: id}
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %v was modified concurrently, refresh and retry", e.Resource, e.ID)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Code is the machine readable error code returned next to the message.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "internal_error"
	}
}
