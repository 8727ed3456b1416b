package graft

import "fmt"

// =====================================
// Error Handling
// =====================================

// ErrorType classifies graft-specific errors.
type ErrorType string

const (
	// ErrorTypePrecondition marks a violated call precondition, such as an
	// update without an id field or a dependant cascade on an unpersisted
	// node. Fatal; the current call aborts with no partial recovery.
	ErrorTypePrecondition ErrorType = "precondition"

	// ErrorTypeConfiguration marks an invalid relation model, detected when
	// the model is built, never during traversal.
	ErrorTypeConfiguration ErrorType = "configuration"

	ErrorTypeUnsupported   ErrorType = "unsupported"
	ErrorTypeConnection    ErrorType = "connection"
	ErrorTypeDatabase      ErrorType = "database"
	ErrorTypeSerialization ErrorType = "serialization"
	ErrorTypeInternal      ErrorType = "internal"
)

// Error represents a graft-specific error. Errors raised by external
// accessors are never wrapped in an Error; the engines propagate them
// unchanged.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Code    string
}

// Error implements the error interface.
func (e Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e Error) Unwrap() error {
	return e.Cause
}

// Is checks if the error is of a specific type.
func (e Error) Is(target error) bool {
	if targetErr, ok := target.(Error); ok {
		return e.Type == targetErr.Type
	}
	return false
}

// NewError creates a new Error.
func NewError(errorType ErrorType, message string) Error {
	return Error{
		Type:    errorType,
		Message: message,
	}
}

// NewErrorWithCause creates a new Error with a cause.
func NewErrorWithCause(errorType ErrorType, message string, cause error) Error {
	return Error{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// IsPrecondition checks if an error is a precondition violation.
func IsPrecondition(err error) bool {
	return IsErrorType(err, ErrorTypePrecondition)
}

// IsConfiguration checks if an error is a configuration error.
func IsConfiguration(err error) bool {
	return IsErrorType(err, ErrorTypeConfiguration)
}

// IsConnection checks if an error is a connection error.
func IsConnection(err error) bool {
	return IsErrorType(err, ErrorTypeConnection)
}

// IsErrorType checks if an error is of a specific type.
func IsErrorType(err error, errorType ErrorType) bool {
	if graftErr, ok := err.(Error); ok {
		return graftErr.Type == errorType
	}
	return false
}
