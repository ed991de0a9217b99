package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrNotFound indicates that a requested entity was not found.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates that an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates that the input data is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidTransition indicates that an action is not available from the current status.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrUnauthorizedTransition indicates that the actor may not perform the action on the current status.
	ErrUnauthorizedTransition = errors.New("unauthorized transition")

	// ErrConflict indicates that a record changed since the caller last read it.
	ErrConflict = errors.New("conflict")

	// ErrUnauthorized indicates that the request lacks valid authentication.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates that the request is not allowed for the authenticated user.
	ErrForbidden = errors.New("forbidden")

	// ErrRateLimited indicates that the request was rate limited.
	ErrRateLimited = errors.New("rate limited")
)

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NotFoundError provides details about a not found entity.
type NotFoundError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// AlreadyExistsError provides details about a duplicate entity.
type AlreadyExistsError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Entity, e.ID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *AlreadyExistsError) Unwrap() error {
	return ErrAlreadyExists
}

// InvalidTransitionError reports an action that no actor may perform from the current status.
type InvalidTransitionError struct {
	From   Status
	Action Action
}

// Error implements the error interface.
func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("action %s is not available from status %s", e.Action, e.From)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// UnauthorizedTransitionError reports an action that exists for the current status
// but not for the acting role or identity.
type UnauthorizedTransitionError struct {
	Role   Role
	From   Status
	Action Action
}

// Error implements the error interface.
func (e *UnauthorizedTransitionError) Error() string {
	return fmt.Sprintf("role %s may not %s a paper in status %s", e.Role, e.Action, e.From)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *UnauthorizedTransitionError) Unwrap() error {
	return ErrUnauthorizedTransition
}

// ConflictError reports an optimistic concurrency failure.
type ConflictError struct {
	Entity   string
	ID       string
	Expected int64
	Actual   int64
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s was modified: expected version %d, found %d", e.Entity, e.ID, e.Expected, e.Actual)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{
		Entity: entity,
		ID:     id,
	}
}

// NewAlreadyExistsError creates a new AlreadyExistsError.
func NewAlreadyExistsError(entity, id string) *AlreadyExistsError {
	return &AlreadyExistsError{
		Entity: entity,
		ID:     id,
	}
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewInvalidTransitionError creates a new InvalidTransitionError.
func NewInvalidTransitionError(from Status, action Action) *InvalidTransitionError {
	return &InvalidTransitionError{
		From:   from,
		Action: action,
	}
}

// NewUnauthorizedTransitionError creates a new UnauthorizedTransitionError.
func NewUnauthorizedTransitionError(role Role, from Status, action Action) *UnauthorizedTransitionError {
	return &UnauthorizedTransitionError{
		Role:   role,
		From:   from,
		Action: action,
	}
}

// NewConflictError creates a new ConflictError.
func NewConflictError(entity, id string, expected, actual int64) *ConflictError {
	return &ConflictError{
		Entity:   entity,
		ID:       id,
		Expected: expected,
		Actual:   actual,
	}
}
