package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrDenied        = errors.New("access denied")
	ErrNotOwner      = errors.New("not owner")
	ErrUserNotFound  = errors.New("user not found")
	ErrShareNotFound = errors.New("share not found")
	ErrReadOnly      = errors.New("read only")
	ErrValidation    = errors.New("validation error")
	ErrStoreFailure  = errors.New("store failure")
)

type AppError struct {
	Err     error  // sentinel, matched with errors.Is
	Message string // shown to the user
	Field   string // optional form field
	Cause   error  // underlying failure, logged but never shown
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Is lets errors.Is match both the sentinel and the cause chain.
func (e *AppError) Is(target error) bool {
	return e.Err == target
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

// Denied is rendered exactly like NotFound by the HTTP layer; the message
// never reaches the client.
func Denied(resource, id string) *AppError {
	return &AppError{
		Err:     ErrDenied,
		Message: fmt.Sprintf("%s %s is not accessible", resource, id),
	}
}

func NotOwner(action string) *AppError {
	return &AppError{
		Err:     ErrNotOwner,
		Message: fmt.Sprintf("only the document owner can %s", action),
	}
}

func UserNotFound() *AppError {
	return &AppError{
		Err:     ErrUserNotFound,
		Message: "User not found",
		Field:   "username",
	}
}

// ShareNotFound is returned to the owner, who can see the document, so it is
// not hidden.
func ShareNotFound() *AppError {
	return &AppError{
		Err:     ErrShareNotFound,
		Message: "Share not found",
	}
}

func ReadOnly(id string) *AppError {
	return &AppError{
		Err:     ErrReadOnly,
		Message: fmt.Sprintf("document %s is read-only for you", id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// StoreFailure wraps an external store error. op names the failed operation.
func StoreFailure(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrStoreFailure,
		Message: op + " failed",
		Cause:   cause,
	}
}

// IsHidden reports whether err must be answered as a plain not-found.
func IsHidden(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrDenied)
}
