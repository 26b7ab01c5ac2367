package talkline

import (
	"errors"
	"fmt"
)

// ErrorCode represents a categorized error type.
type ErrorCode int

const (
	// Protocol errors (from server error responses)
	ErrorUnknown ErrorCode = iota
	ErrorUnsupportedVersion
	ErrorUnauthorized
	ErrorInvalidMessage
	ErrorBadRequest
	ErrorUnknownUser
	ErrorRateLimited
	ErrorInternalServer

	// Client-side errors
	ErrorConnection
	ErrorDisconnected
	ErrorTimeout
	ErrorNotConnected
	ErrorSerialization
	ErrorFetch
	ErrorValidation
)

// String returns the string representation of an ErrorCode.
func (e ErrorCode) String() string {
	switch e {
	case ErrorUnknown:
		return "unknown"
	case ErrorUnsupportedVersion:
		return "unsupported_version"
	case ErrorUnauthorized:
		return "unauthorized"
	case ErrorInvalidMessage:
		return "invalid_message"
	case ErrorBadRequest:
		return "bad_request"
	case ErrorUnknownUser:
		return "unknown_user"
	case ErrorRateLimited:
		return "rate_limited"
	case ErrorInternalServer:
		return "internal_error"
	case ErrorConnection:
		return "connection_error"
	case ErrorDisconnected:
		return "disconnected"
	case ErrorTimeout:
		return "timeout"
	case ErrorNotConnected:
		return "not_connected"
	case ErrorSerialization:
		return "serialization_error"
	case ErrorFetch:
		return "fetch_error"
	case ErrorValidation:
		return "validation_error"
	default:
		return fmt.Sprintf("unknown_code_%d", e)
	}
}

// ParseErrorCode converts a protocol error code string to ErrorCode.
func ParseErrorCode(code string) ErrorCode {
	switch code {
	case "unsupported_version":
		return ErrorUnsupportedVersion
	case "unauthorized":
		return ErrorUnauthorized
	case "invalid_message":
		return ErrorInvalidMessage
	case "bad_request":
		return ErrorBadRequest
	case "unknown_user":
		return ErrorUnknownUser
	case "rate_limited":
		return ErrorRateLimited
	case "internal_error":
		return ErrorInternalServer
	default:
		return ErrorUnknown
	}
}

// TalklineError is a structured error with code and context.
type TalklineError struct {
	Code    ErrorCode
	Message string
	Wrapped error
}

// Error implements the error interface.
func (e *TalklineError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s (wrapped: %v)", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for errors.Unwrap support.
func (e *TalklineError) Unwrap() error {
	return e.Wrapped
}

// Is implements errors.Is interface for error comparison.
func (e *TalklineError) Is(target error) bool {
	t, ok := target.(*TalklineError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError creates a new TalklineError with the given code and message.
func NewError(code ErrorCode, message string) *TalklineError {
	return &TalklineError{
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error with a TalklineError.
func WrapError(code ErrorCode, message string, err error) *TalklineError {
	return &TalklineError{
		Code:    code,
		Message: message,
		Wrapped: err,
	}
}

// FromProtocolError converts a protocol Error to TalklineError.
func FromProtocolError(e *Error) *TalklineError {
	if e == nil {
		return nil
	}
	return &TalklineError{
		Code:    ParseErrorCode(e.Code),
		Message: e.Msg,
	}
}

// CodeOf extracts the ErrorCode from err, or ErrorUnknown.
func CodeOf(err error) ErrorCode {
	var te *TalklineError
	if errors.As(err, &te) {
		return te.Code
	}
	return ErrorUnknown
}

// IsConnectionError checks if an error is a connection-related error.
func IsConnectionError(err error) bool {
	switch CodeOf(err) {
	case ErrorConnection, ErrorDisconnected, ErrorTimeout, ErrorNotConnected:
		return true
	default:
		return false
	}
}

// IsFetchError reports whether err came from a history-store operation.
func IsFetchError(err error) bool {
	return CodeOf(err) == ErrorFetch
}

// IsValidationError reports whether err was rejected locally before
// reaching the network.
func IsValidationError(err error) bool {
	return CodeOf(err) == ErrorValidation
}
