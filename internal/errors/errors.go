package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Authentication errors
	ErrCodeUnauthenticated    = "UNAUTHENTICATED"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"

	// Validation errors (raised before any network call)
	ErrCodeValidation = "VALIDATION_ERROR"

	// Transport errors
	ErrCodeNetwork = "NETWORK_ERROR"
	ErrCodeServer  = "SERVER_ERROR"
	ErrCodeChannel = "CHANNEL_ERROR"
)

// APIError is the typed failure returned across the client boundary.
type APIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Status  int         `json:"status,omitempty"`
	Details interface{} `json:"details,omitempty"`

	cause error
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.cause != nil && e.Message == "" {
		return e.cause.Error()
	}
	return e.Message
}

// Unwrap exposes the underlying transport or validation cause.
func (e *APIError) Unwrap() error {
	return e.cause
}

// Is matches any APIError carrying the same code, so the predefined
// errors below work as errors.Is targets.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewAPIError creates a new APIError
func NewAPIError(code, message string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
	}
}

// NewAPIErrorWithDetails creates a new APIError with details
func NewAPIErrorWithDetails(code, message string, details interface{}) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// Predefined errors
var (
	ErrUnauthenticated    = NewAPIError(ErrCodeUnauthenticated, "Authentication required")
	ErrInvalidCredentials = NewAPIError(ErrCodeInvalidCredentials, "Invalid email or password")
	ErrValidation         = NewAPIError(ErrCodeValidation, "Invalid input")
	ErrNetwork            = NewAPIError(ErrCodeNetwork, "Network error")
	ErrServer             = NewAPIError(ErrCodeServer, "Server error")
	ErrChannel            = NewAPIError(ErrCodeChannel, "Realtime channel error")
)

// Unauthenticated reports a missing or rejected credential.
func Unauthenticated(message string) *APIError {
	if message == "" {
		message = "Authentication required"
	}
	return NewAPIError(ErrCodeUnauthenticated, message)
}

// InvalidCredentials reports a failed login. cause may be nil.
func InvalidCredentials(message string, cause error) *APIError {
	if message == "" {
		message = "Invalid email or password"
	}
	return &APIError{Code: ErrCodeInvalidCredentials, Message: message, cause: cause}
}

// Validation wraps a client-side input violation.
func Validation(cause error) *APIError {
	return &APIError{Code: ErrCodeValidation, Message: cause.Error(), cause: cause}
}

// Network reports a transport failure, or a non-2xx response without a message.
func Network(status int, cause error) *APIError {
	message := "Network error"
	if status != 0 {
		message = fmt.Sprintf("Request failed with status %d", status)
	}
	if cause != nil {
		message = fmt.Sprintf("%s: %v", message, cause)
	}
	return &APIError{Code: ErrCodeNetwork, Message: message, Status: status, cause: cause}
}

// Server reports a non-2xx response whose body carried a message. The message
// is kept verbatim for display.
func Server(status int, message string) *APIError {
	return &APIError{Code: ErrCodeServer, Message: message, Status: status}
}

// Channel reports a realtime connect/reconnect failure. It is never fatal.
func Channel(cause error) *APIError {
	return &APIError{Code: ErrCodeChannel, Message: fmt.Sprintf("realtime channel: %v", cause), cause: cause}
}

// Code returns the APIError code carried by err, or "" if there is none.
func Code(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsRejection reports whether the server answered and refused the request
// (as opposed to the request never completing).
func IsRejection(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Code == ErrCodeServer || apiErr.Code == ErrCodeUnauthenticated {
		return true
	}
	return apiErr.Code == ErrCodeNetwork && apiErr.Status >= http.StatusBadRequest && apiErr.Status < http.StatusInternalServerError
}
