// Package apperr defines the error taxonomy shared by the intake services:
// not-found, validation, dependency and storage failures, each carrying the
// HTTP status it maps to.
package apperr

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"syscall"
)

var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation error")
	ErrDependency   = errors.New("dependency failure")
	ErrStorage      = errors.New("storage failure")
	ErrInternal     = errors.New("internal error")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	HTTPStatus int               `json:"-"`
	Details    map[string]string `json:"details,omitempty"`
	Violations []string          `json:"violations,omitempty"`
}

func (e *AppError) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a not found error
func NotFound(resource string, id string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		Code:       "NOT_FOUND",
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]string{"resource": resource, "id": id},
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthorized,
		Message:    message,
		Code:       "UNAUTHORIZED",
		HTTPStatus: http.StatusUnauthorized,
	}
}

func Forbidden(message string) *AppError {
	return &AppError{
		Err:        ErrForbidden,
		Message:    message,
		Code:       "FORBIDDEN",
		HTTPStatus: http.StatusForbidden,
	}
}

func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Message:    message,
		Code:       "BAD_REQUEST",
		HTTPStatus: http.StatusBadRequest,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Message:    message,
		Code:       "CONFLICT",
		HTTPStatus: http.StatusConflict,
	}
}

// PayloadTooLarge rejects a request body over limit bytes.
func PayloadTooLarge(limit int64) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Message:    fmt.Sprintf("request body exceeds maximum allowed size of %d bytes", limit),
		Code:       "PAYLOAD_TOO_LARGE",
		HTTPStatus: http.StatusRequestEntityTooLarge,
	}
}

// Validation creates a validation error listing every violated rule, in the
// order the rules were checked.
func Validation(message string, violations []string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Message:    message,
		Code:       "VALIDATION_ERROR",
		HTTPStatus: http.StatusBadRequest,
		Violations: violations,
	}
}

// Dependency wraps a failure of an external collaborator such as the audio
// codec or the report renderer.
func Dependency(component string, err error) *AppError {
	return &AppError{
		Err:        errors.Join(ErrDependency, err),
		Message:    fmt.Sprintf("%s failed", component),
		Code:       "DEPENDENCY_FAILURE",
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]string{"component": component},
	}
}

// Storage maps a file-system error to a user-facing message specific to its
// cause.
func Storage(err error) *AppError {
	msg := "storage failure"
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, fs.ErrNotExist):
		msg = "file not found"
		status = http.StatusNotFound
	case errors.Is(err, fs.ErrPermission):
		msg = "permission denied"
	case errors.Is(err, syscall.EMFILE), errors.Is(err, syscall.ENFILE):
		msg = "too many open files"
		status = http.StatusServiceUnavailable
	}
	return &AppError{
		Err:        errors.Join(ErrStorage, err),
		Message:    msg,
		Code:       "STORAGE_FAILURE",
		HTTPStatus: status,
	}
}

func Internal(err error) *AppError {
	return &AppError{
		Err:        err,
		Message:    "internal server error",
		Code:       "INTERNAL_ERROR",
		HTTPStatus: http.StatusInternalServerError,
	}
}

// As extracts an *AppError from err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsNotFound reports whether err is, or wraps, a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
