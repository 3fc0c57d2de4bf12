// Package errors provides structured error types for chime.
// Errors carry a stable code, a category, key/value context and
// remediation suggestions.
package errors

import (
	"fmt"
	"sort"
	"strings"
)

// Category classifies errors for consistent handling and display.
type Category string

const (
	CategoryConfig     Category = "config"     // Configuration loading/parsing errors
	CategoryProtocol   Category = "protocol"   // Framing and reassembly errors
	CategoryState      Category = "state"      // Oscillator state errors
	CategoryValidation Category = "validation" // Input validation errors
	CategoryNetwork    Category = "network"    // Telemetry server errors
	CategoryIO         Category = "io"         // File/IO and store errors
	CategoryInternal   Category = "internal"   // Internal/unexpected errors
)

// ChimeError is a structured error with context and suggestions.
// It implements the error interface and supports error wrapping.
type ChimeError struct {
	// Code is a unique identifier for this error type (e.g., "PROTOCOL_HEADER_OVERFLOW")
	Code string

	// Category classifies this error for consistent handling
	Category Category

	// Message is the primary error message describing what went wrong
	Message string

	// Context provides additional key-value details about the error
	Context map[string]string

	// Cause is the underlying error that triggered this error
	Cause error

	// Suggestions are actionable remediation steps for the user
	Suggestions []string
}

// Error implements the error interface.
func (e *ChimeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain inspection.
func (e *ChimeError) Unwrap() error {
	return e.Cause
}

// Is reports whether e matches target for errors.Is() checks.
// Two ChimeErrors match if they have the same Code.
func (e *ChimeError) Is(target error) bool {
	if t, ok := target.(*ChimeError); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a new ChimeError with the given code, category, and message.
func New(code string, category Category, message string) *ChimeError {
	return &ChimeError{
		Code:     code,
		Category: category,
		Message:  message,
		Context:  make(map[string]string),
	}
}

// Newf creates a new ChimeError with a formatted message.
func Newf(code string, category Category, format string, args ...interface{}) *ChimeError {
	return New(code, category, fmt.Sprintf(format, args...))
}

// WithContext adds a context key-value pair and returns the error for chaining.
func (e *ChimeError) WithContext(key, value string) *ChimeError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithContextf adds a context value rendered with fmt.Sprint.
func (e *ChimeError) WithContextf(key string, value interface{}) *ChimeError {
	return e.WithContext(key, fmt.Sprint(value))
}

// WithCause wraps an underlying error and returns the error for chaining.
func (e *ChimeError) WithCause(cause error) *ChimeError {
	e.Cause = cause
	return e
}

// WithSuggestion adds a remediation suggestion and returns the error for chaining.
func (e *ChimeError) WithSuggestion(suggestion string) *ChimeError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple remediation suggestions.
func (e *ChimeError) WithSuggestions(suggestions ...string) *ChimeError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// HasContext returns true if the error has context information.
func (e *ChimeError) HasContext() bool {
	return len(e.Context) > 0
}

// HasSuggestions returns true if the error has suggestions.
func (e *ChimeError) HasSuggestions() bool {
	return len(e.Suggestions) > 0
}

// ContextString returns the context entries as sorted key="value" pairs.
func (e *ChimeError) ContextString() string {
	if len(e.Context) == 0 {
		return ""
	}
	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", k, e.Context[k]))
	}
	return strings.Join(parts, ", ")
}

// Wrap wraps an existing error with a ChimeError.
func Wrap(err error, code string, category Category, message string) *ChimeError {
	return New(code, category, message).WithCause(err)
}

// AsChimeError attempts to convert an error to a ChimeError.
// Wrapped chains are searched, so a ChimeError behind fmt.Errorf("%w") is found.
func AsChimeError(err error) (*ChimeError, bool) {
	for err != nil {
		if ce, ok := err.(*ChimeError); ok {
			return ce, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}

// IsCategory checks if an error is a ChimeError with the given category.
func IsCategory(err error, category Category) bool {
	if ce, ok := AsChimeError(err); ok {
		return ce.Category == category
	}
	return false
}

// IsCode checks if an error is a ChimeError with the given code.
func IsCode(err error, code string) bool {
	if ce, ok := AsChimeError(err); ok {
		return ce.Code == code
	}
	return false
}

// -----------------------------------------------------------------------------
// Helper Constructors
// -----------------------------------------------------------------------------

// ConfigError creates a new configuration error.
func ConfigError(code, message string) *ChimeError {
	return New(code, CategoryConfig, message)
}

// ConfigErrorf creates a new configuration error with formatted message.
func ConfigErrorf(code, format string, args ...interface{}) *ChimeError {
	return New(code, CategoryConfig, fmt.Sprintf(format, args...))
}

// ProtocolError creates a new framing/reassembly error.
func ProtocolError(code, message string) *ChimeError {
	return New(code, CategoryProtocol, message)
}

// ProtocolErrorf creates a new protocol error with formatted message.
func ProtocolErrorf(code, format string, args ...interface{}) *ChimeError {
	return New(code, CategoryProtocol, fmt.Sprintf(format, args...))
}

// StateError creates a new oscillator state error.
func StateError(code, message string) *ChimeError {
	return New(code, CategoryState, message)
}

// ValidationError creates a new validation error.
func ValidationError(code, message string) *ChimeError {
	return New(code, CategoryValidation, message)
}

// ValidationErrorf creates a new validation error with formatted message.
func ValidationErrorf(code, format string, args ...interface{}) *ChimeError {
	return New(code, CategoryValidation, fmt.Sprintf(format, args...))
}

// IOError creates a new file/IO error.
func IOError(code, message string) *ChimeError {
	return New(code, CategoryIO, message)
}

// -----------------------------------------------------------------------------
// Wrapping Helpers
// -----------------------------------------------------------------------------

// WrapConfig wraps an error as a configuration error.
func WrapConfig(err error, code, message string) *ChimeError {
	return Wrap(err, code, CategoryConfig, message)
}

// WrapProtocol wraps an error as a protocol error.
func WrapProtocol(err error, code, message string) *ChimeError {
	return Wrap(err, code, CategoryProtocol, message)
}

// WrapIO wraps an error as an IO error.
func WrapIO(err error, code, message string) *ChimeError {
	return Wrap(err, code, CategoryIO, message)
}

// WrapNetwork wraps an error as a network error.
func WrapNetwork(err error, code, message string) *ChimeError {
	return Wrap(err, code, CategoryNetwork, message)
}

// WrapInternal wraps an error as an internal error.
func WrapInternal(err error, code, message string) *ChimeError {
	return Wrap(err, code, CategoryInternal, message)
}
