package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrTypeDatabase   ErrorType = "database"
	ErrTypeValidation ErrorType = "validation"
	ErrTypeNotFound   ErrorType = "not_found"
	ErrTypeConfig     ErrorType = "config"
	ErrTypeFileSystem ErrorType = "filesystem"
	ErrTypeTimeout    ErrorType = "timeout"
	ErrTypeInternal   ErrorType = "internal"

	// Fatal conditions raised by the ingestion and catalog core
	ErrTypeNoTablesFound           ErrorType = "no_tables_found"
	ErrTypeUnsupportedDatabaseKind ErrorType = "unsupported_database_kind"
	ErrTypeUnsupportedValueKind    ErrorType = "unsupported_value_kind"
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

// NoTablesFound reports an empty catalog after ingestion.
func NoTablesFound() *Error {
	return New(ErrTypeNoTablesFound, "No tables found").
		WithSuggestion("Pass at least one file or database, or list sources under [[views]] or [[tables]]")
}

// UnsupportedDatabaseKind reports a source uri that names no known backend.
func UnsupportedDatabaseKind(uri string) *Error {
	return Newf(ErrTypeUnsupportedDatabaseKind, "database type not supported: %s", uri).
		WithSuggestion("Use a postgresql:// or sqlite:// uri, or a .db/.sqlite file")
}

// UnsupportedValueKind reports a result value that has no canonical text form.
func UnsupportedValueKind(column string, value interface{}) *Error {
	return Newf(ErrTypeUnsupportedValueKind, "column %q holds an unsupported value of kind %T", column, value)
}

// Human returns the message shown to API and CLI callers.
func Human(err error) string {
	if err == nil {
		return ""
	}

	var structErr *Error
	if errors.As(err, &structErr) && structErr.Cause != nil {
		return fmt.Sprintf("%s: %v", structErr.Message, structErr.Cause)
	} else if structErr != nil {
		return structErr.Message
	}

	return err.Error()
}

// Suggestions returns the suggestions of a structured error, if any
func Suggestions(err error) []string {
	var structErr *Error
	if errors.As(err, &structErr) {
		return structErr.Suggestions
	}

	return nil
}
