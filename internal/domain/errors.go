package domain

import (
	"errors"
	"fmt"
)

// ErrorCode classifies failures surfaced by the decision core
type ErrorCode string

const (
	CodeValidation    ErrorCode = "VALIDATION_FAILED"
	CodeNotFound      ErrorCode = "NOT_FOUND"
	CodeAlreadyExists ErrorCode = "ALREADY_EXISTS"
	CodeConflict      ErrorCode = "CONFLICT"
	CodeDatabase      ErrorCode = "DATABASE_ERROR"
)

// Error is the single error type returned across package boundaries.
// Callers branch on Code; Err keeps the underlying cause for logging.
type Error struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail attaches a key/value pair to the error details
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// NewValidationError reports input rejected before any state mutation
func NewValidationError(message string) *Error {
	return &Error{Code: CodeValidation, Message: message}
}

// NewNotFoundError reports an unknown identifier
func NewNotFoundError(resource, id string) *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Details: map[string]any{"resource": resource, "id": id},
	}
}

// NewAlreadyExistsError reports a duplicate append-only record
func NewAlreadyExistsError(resource, id string) *Error {
	return &Error{
		Code:    CodeAlreadyExists,
		Message: fmt.Sprintf("%s already exists", resource),
		Details: map[string]any{"resource": resource, "id": id},
	}
}

// NewConflictError reports a lost compare-and-swap race
func NewConflictError(message string) *Error {
	return &Error{Code: CodeConflict, Message: message}
}

// NewDatabaseError wraps a storage failure on a write path
func NewDatabaseError(op string, err error) *Error {
	return &Error{Code: CodeDatabase, Message: fmt.Sprintf("failed to %s", op), Err: err}
}

// CodeOf returns the code of the first *Error in the chain, or "" if none
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func IsValidation(err error) bool    { return CodeOf(err) == CodeValidation }
func IsNotFound(err error) bool      { return CodeOf(err) == CodeNotFound }
func IsAlreadyExists(err error) bool { return CodeOf(err) == CodeAlreadyExists }
func IsConflict(err error) bool      { return CodeOf(err) == CodeConflict }
