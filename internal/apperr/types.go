package apperr

import (
	"errors"
	"fmt"
)

// Code categorizes an operation failure at a component boundary.
type Code string

const (
	// Draft and input errors
	CodeValidationFailed Code = "VALIDATION_FAILED"

	// Send-path errors
	CodeDuplicateSuppressed Code = "DUPLICATE_SUPPRESSED"
	CodePersistenceFailure  Code = "PERSISTENCE_FAILURE"

	// Capture/upload errors
	CodePermissionDenied Code = "PERMISSION_DENIED"
	CodeCaptureFailed    Code = "CAPTURE_FAILED"
	CodeUploadFailed     Code = "UPLOAD_FAILED"

	// Access errors
	CodeNotFound         Code = "NOT_FOUND"
	CodeNotPermitted     Code = "NOT_PERMITTED"
	CodeChatLocked       Code = "CHAT_LOCKED"
	CodeInvalidConfig    Code = "INVALID_CONFIG"
	CodeStoreUnavailable Code = "STORE_UNAVAILABLE"

	CodeInternal Code = "INTERNAL_ERROR"
)

// AppError is a structured operation failure. Every lifecycle, capture and
// store error crossing a component boundary is one of these; nothing in the
// messaging core panics across the API surface.
type AppError struct {
	Code        Code   `json:"code"`
	Message     string `json:"message"`
	Cause       error  `json:"-"`
	Retryable   bool   `json:"retryable"`
	UserMessage string `json:"user_message,omitempty"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithUserMessage sets a user-facing message shown in toasts/prompts.
func (e *AppError) WithUserMessage(msg string) *AppError {
	e.UserMessage = msg
	return e
}

// New creates a new AppError
func New(code Code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap wraps an existing error with a code and message
func Wrap(err error, code Code, message string) *AppError {
	return &AppError{Code: code, Message: message, Cause: err}
}

// WrapRetryable wraps an error and marks the operation worth re-trying by the
// user (never automatically).
func WrapRetryable(err error, code Code, message string) *AppError {
	return &AppError{Code: code, Message: message, Cause: err, Retryable: true}
}

// GetCode extracts the code from any error in the chain.
func GetCode(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return GetCode(err) == code
}

// GetUserMessage extracts a user-facing message, falling back to a generic one.
func GetUserMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.UserMessage != "" {
		return appErr.UserMessage
	}
	return "Something went wrong, please try again"
}
