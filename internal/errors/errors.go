package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrTypeValidation      ErrorType = "validation"
	ErrTypeSchemaNotFound  ErrorType = "schema_not_found"
	ErrTypeUpstreamParse   ErrorType = "upstream_parse"
	ErrTypeUpstreamService ErrorType = "upstream_service"
	ErrTypeQueryEngine     ErrorType = "query_engine"
	ErrTypePlanParsing     ErrorType = "plan_parsing"
	ErrTypeTimeout         ErrorType = "timeout"
	ErrTypeNotFound        ErrorType = "not_found"
	ErrTypeConfig          ErrorType = "config"
	ErrTypeAuth            ErrorType = "auth"
	ErrTypeFileSystem      ErrorType = "filesystem"
	ErrTypeInternal        ErrorType = "internal"
)

// Error represents a structured error with type and optional suggestions
type Error struct {
	Type        ErrorType
	Message     string
	Cause       error
	Suggestions []string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}

	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithSuggestion adds a suggestion for resolving the error
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// New creates a new structured error
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
	}
}

// Newf creates a new structured error with formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with formatted message
func Wrapf(err error, errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// As is errors.As from the standard library
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Is is errors.Is from the standard library
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	var structErr *Error
	if errors.As(err, &structErr) {
		return structErr.Type == errType
	}

	return false
}

// GetType returns the error type if it's a structured error
func GetType(err error) ErrorType {
	var structErr *Error
	if errors.As(err, &structErr) {
		return structErr.Type
	}

	return ErrTypeInternal
}

// Message returns the message of the outermost structured error, or err.Error()
func Message(err error) string {
	var structErr *Error
	if errors.As(err, &structErr) {
		return structErr.Message
	}

	return err.Error()
}

// WrapDeadline wraps err as a timeout when the context deadline was hit,
// otherwise with the given fallback type.
func WrapDeadline(err error, fallback ErrorType, message string) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(err, ErrTypeTimeout, message+": deadline exceeded")
	}

	return Wrap(err, fallback, message)
}

// HTTPStatus maps an error to the HTTP status code the API responds with
func HTTPStatus(err error) int {
	switch GetType(err) {
	case ErrTypeValidation:
		return http.StatusBadRequest
	case ErrTypeAuth:
		return http.StatusUnauthorized
	case ErrTypeSchemaNotFound, ErrTypeNotFound:
		return http.StatusNotFound
	case ErrTypeUpstreamParse, ErrTypeUpstreamService, ErrTypeQueryEngine:
		return http.StatusBadGateway
	case ErrTypeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// NewConfigError creates a configuration error with suggestions
func NewConfigError(message, field string) *Error {
	err := New(ErrTypeConfig, message)
	if field != "" {
		err.Message = fmt.Sprintf("%s (field: %s)", message, field)
	}

	return err.
		WithSuggestion("Check your configuration file syntax").
		WithSuggestion("Run with --help to see valid configuration options")
}

// NewSchemaNotFound creates the error returned when a schema id cannot be resolved
func NewSchemaNotFound(id string) *Error {
	return Newf(ErrTypeSchemaNotFound, "schema not found: %s", id).
		WithSuggestion("Run 'segmentsql schema list' to see available schemas")
}
