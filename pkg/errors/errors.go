package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents application-specific error codes
type ErrorCode string

const (
	// Caller errors
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeInvalidState ErrorCode = "INVALID_STATE"
	ErrCodeMissingField ErrorCode = "MISSING_FIELD"

	// Identity errors
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// Policy errors
	ErrCodeForbidden ErrorCode = "FORBIDDEN"

	// Not found errors
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// Uniqueness errors
	ErrCodeAlreadyExists ErrorCode = "ALREADY_EXISTS"
	ErrCodeAlreadyMember ErrorCode = "ALREADY_MEMBER"

	// Capacity errors
	ErrCodeCapacityExceeded ErrorCode = "CAPACITY_EXCEEDED"
	ErrCodePayloadTooLarge  ErrorCode = "PAYLOAD_TOO_LARGE"

	// Internal errors
	ErrCodeInternal       ErrorCode = "INTERNAL_ERROR"
	ErrCodeStorage        ErrorCode = "STORAGE_FAILURE"
	ErrCodeServiceUnavail ErrorCode = "SERVICE_UNAVAILABLE"
)

// AppError represents a structured application error with code, message, and HTTP status
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	StatusCode int       `json:"-"`
	Details    any       `json:"details,omitempty"`
	Err        error     `json:"-"`
}

// Error implements the error interface, returning a formatted error message
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the given code and message
// The status code defaults to 500 Internal Server Error
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

// NewWithStatus creates a new AppError with a specific HTTP status code
func NewWithStatus(code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WrapWithStatus wraps an existing error with an AppError and specific status code
func WrapWithStatus(code ErrorCode, message string, statusCode int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// WithDetails adds additional details to an AppError
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

func InvalidInputError(message string) *AppError {
	return NewWithStatus(ErrCodeInvalidInput, message, http.StatusBadRequest)
}

func InvalidStateError(message string) *AppError {
	return NewWithStatus(ErrCodeInvalidState, message, http.StatusBadRequest)
}

func MissingFieldError(field string) *AppError {
	return NewWithStatus(ErrCodeMissingField, fmt.Sprintf("Missing required field: %s", field), http.StatusBadRequest)
}

func UnauthorizedError(message string) *AppError {
	return NewWithStatus(ErrCodeUnauthorized, message, http.StatusUnauthorized)
}

func ForbiddenError(message string) *AppError {
	return NewWithStatus(ErrCodeForbidden, message, http.StatusForbidden)
}

func NotFoundError(resource string) *AppError {
	return NewWithStatus(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func AlreadyExistsError(message string) *AppError {
	return NewWithStatus(ErrCodeAlreadyExists, message, http.StatusConflict)
}

func UsernameExistsError() *AppError {
	return AlreadyExistsError("Username already taken")
}

func AlreadyMemberError() *AppError {
	return NewWithStatus(ErrCodeAlreadyMember, "User is already a member", http.StatusConflict)
}

// GroupFullError is returned when a group has reached its member limit
func GroupFullError(limit int) *AppError {
	return NewWithStatus(ErrCodeCapacityExceeded, fmt.Sprintf("Group is full (limit %d)", limit), http.StatusConflict)
}

// PayloadTooLargeError is returned when an upload exceeds the size ceiling
func PayloadTooLargeError(maxBytes int64) *AppError {
	return NewWithStatus(ErrCodePayloadTooLarge, fmt.Sprintf("File too large (max %d bytes)", maxBytes), http.StatusRequestEntityTooLarge)
}

func InternalError(message string) *AppError {
	return NewWithStatus(ErrCodeInternal, message, http.StatusInternalServerError)
}

// StorageFailure wraps a persistence or blob-store failure as an opaque 500
func StorageFailure(err error) *AppError {
	return WrapWithStatus(ErrCodeStorage, "Storage failure", http.StatusInternalServerError, err)
}

func ServiceUnavailableError(message string) *AppError {
	return NewWithStatus(ErrCodeServiceUnavail, message, http.StatusServiceUnavailable)
}

// IsCapacityExceeded reports whether err is either capacity kind (group full or payload too large)
func IsCapacityExceeded(err error) bool {
	return IsCode(err, ErrCodeCapacityExceeded) || IsCode(err, ErrCodePayloadTooLarge)
}

// IsAppError checks if an error chain contains an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// IsCode reports whether err carries an AppError with the given code
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// GetAppError extracts AppError from an error, wrapping non-AppErrors as InternalError
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return WrapWithStatus(ErrCodeInternal, "Internal server error", http.StatusInternalServerError, err)
}
