package models

import (
	"errors"
	"fmt"
)

// Error codes used across the application.
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeNotFound     = "NOT_FOUND"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeRemoteWrite  = "REMOTE_WRITE_FAILED"
	CodeInternal     = "INTERNAL_ERROR"
)

// ErrorResponse is the standardized API error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// AppError is the application error type. Code classifies the failure;
// callers branch with IsValidationError / IsRemoteWriteError rather than on
// message text.
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewValidationError reports input rejected before any network call.
func NewValidationError(message string) *AppError {
	return &AppError{Code: CodeValidation, Message: message}
}

// NewNotFoundError reports a missing resource.
func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s %v not found", resource, id),
	}
}

// NewUnauthorizedError reports a failed authentication or ownership check.
func NewUnauthorizedError(message string) *AppError {
	return &AppError{Code: CodeUnauthorized, Message: message}
}

// NewForbiddenError reports a denied action by an authenticated user.
func NewForbiddenError(message string) *AppError {
	return &AppError{Code: CodeForbidden, Message: message}
}

// NewRemoteWriteError wraps a failed authoritative write. The optimistic
// patch it covered has been rolled back by the time callers see this.
func NewRemoteWriteError(err error) *AppError {
	return &AppError{Code: CodeRemoteWrite, Message: "mutation failed", Err: err}
}

// NewInternalError wraps an unexpected failure.
func NewInternalError(err error) *AppError {
	return &AppError{Code: CodeInternal, Message: "internal error", Err: err}
}

func hasCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsValidationError reports whether err is a validation failure.
func IsValidationError(err error) bool { return hasCode(err, CodeValidation) }

// IsNotFoundError reports whether err is a missing-resource failure.
func IsNotFoundError(err error) bool { return hasCode(err, CodeNotFound) }

// IsRemoteWriteError reports whether err is a failed remote write.
func IsRemoteWriteError(err error) bool { return hasCode(err, CodeRemoteWrite) }
