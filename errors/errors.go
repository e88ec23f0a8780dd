// Package errors provides standardized error handling for Sentinel components.
// It includes error classification, standard error variables, structured
// validation errors, and helper functions for consistent error wrapping
// across the system.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that may be retried
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or configuration
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that should stop processing
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions
var (
	// Component lifecycle errors
	ErrAlreadyStarted = errors.New("component already started")
	ErrNotStarted     = errors.New("component not started")
	ErrAlreadyStopped = errors.New("component already stopped")
	ErrShuttingDown   = errors.New("component is shutting down")

	// Rule management errors
	ErrRuleNotFound     = errors.New("rule not found")
	ErrTemplateNotFound = errors.New("template not found")
	ErrDuplicateRule    = errors.New("rule id already exists")

	// Connection and delivery errors
	ErrNoConnection         = errors.New("no connection available")
	ErrConnectionTimeout    = errors.New("connection timeout")
	ErrDeliveryTimeout      = errors.New("delivery timeout")
	ErrChannelNotConfigured = errors.New("channel not configured")

	// Data errors
	ErrInvalidData   = errors.New("invalid data format")
	ErrParsingFailed = errors.New("parsing failed")
	ErrKeyNotFound   = errors.New("key not found")
	ErrQueueFull     = errors.New("queue full")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// Violation describes a single failed validation check on a named field.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

// ValidationError carries every violation found while validating an input,
// so callers see the complete list in one pass. A rejected input is never
// partially applied.
type ValidationError struct {
	Subject    string      // what was being validated, e.g. a rule id
	Violations []Violation `json:"violations"`
}

// Error implements the error interface
func (ve *ValidationError) Error() string {
	msgs := make([]string, len(ve.Violations))
	for i, v := range ve.Violations {
		msgs[i] = v.String()
	}
	if ve.Subject != "" {
		return fmt.Sprintf("validation failed for %q: %s", ve.Subject, strings.Join(msgs, "; "))
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(msgs, "; "))
}

// Add records a violation and returns the error for chaining.
func (ve *ValidationError) Add(field, message string) *ValidationError {
	ve.Violations = append(ve.Violations, Violation{Field: field, Message: message})
	return ve
}

// HasViolations reports whether any violation was recorded.
func (ve *ValidationError) HasViolations() bool {
	return len(ve.Violations) > 0
}

// NewValidationError creates an empty ValidationError for the given subject.
func NewValidationError(subject string) *ValidationError {
	return &ValidationError{Subject: subject}
}

// IsValidation checks if an error is a ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// AsValidation extracts a ValidationError from the chain.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	ok := errors.As(err, &ve)
	return ve, ok
}

// NotFoundError identifies a lookup of an unknown rule or template id.
type NotFoundError struct {
	Kind string // "rule" or "template"
	ID   string
}

// Error implements the error interface
func (ne *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", ne.Kind, ne.ID)
}

// IsNotFound checks if an error is a NotFoundError
func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}

// IsTransient checks if an error is transient and should be retried
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}

	if errors.Is(err, ErrConnectionTimeout) ||
		errors.Is(err, ErrDeliveryTimeout) ||
		errors.Is(err, ErrNoConnection) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return true
	}

	// Common transient patterns from transport libraries
	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{"timeout", "connection", "temporary", "unavailable"} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// IsFatal checks if an error is fatal and should stop processing
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}

	return errors.Is(err, ErrInvalidConfig) || errors.Is(err, ErrMissingConfig)
}

// IsInvalid checks if an error is due to invalid input
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}

	return IsValidation(err) || IsNotFound(err) ||
		errors.Is(err, ErrInvalidData) || errors.Is(err, ErrParsingFailed)
}

// Classify returns the error class for an error
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorTransient
	}
	if IsFatal(err) {
		return ErrorFatal
	}
	if IsInvalid(err) {
		return ErrorInvalid
	}
	// Default to transient for unknown errors to allow retry
	return ErrorTransient
}

// newClassified creates a new classified error.
// Internal helper - use WrapTransient(), WrapFatal(), or WrapInvalid() instead.
func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorTransient, wrappedErr, component, method, wrappedErr.Error())
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorFatal, wrappedErr, component, method, wrappedErr.Error())
}

// WrapInvalid wraps an error as invalid with context
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorInvalid, wrappedErr, component, method, wrappedErr.Error())
}

// Is reports whether any error in err's chain matches target.
// Re-exported so callers do not need both this package and stdlib errors.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// New returns an error that formats as the given text.
func New(text string) error {
	return errors.New(text)
}
