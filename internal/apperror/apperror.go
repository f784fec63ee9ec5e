// Package apperror defines the domain error taxonomy shared by the service
// and handler layers. Services return these; handlers map them to HTTP.
//
// Callers test for a category with errors.Is against the sentinels, so a
// wrapped error keeps its status:
//
//	fmt.Errorf("updating ooo: %w", apperror.Forbidden("You can only modify your own OOO records"))
//
// still becomes a 403. Anything that isn't an *AppError is an internal error.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("Validation Error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// AppError carries the client-facing message. Message is sent to the caller
// as-is, so it must never contain SQL, file paths or tokens.
type AppError struct {
	Err     error  // category sentinel
	Message string // shown to the client
	Field   string // request field at fault, if any
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound reports a missing resource. Reimbursements owned by someone else
// come back as NotFound too, so their ids can't be guessed at.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

// ValidationFailed reports bad input on field (400).
func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Conflict is what the store returns when a UNIQUE constraint (email,
// google_id) rejects an insert.
func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden is for a known caller acting outside their rights: another
// user's OOO record, or an email outside the allowed domain.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized is for a caller who must sign in again. Handlers attach the
// login URL to the 401.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}
