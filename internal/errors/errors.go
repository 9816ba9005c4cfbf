// Package errors provides a lightweight structured error type (TaxoError)
// for category-based classification and retry semantics across the loader,
// the sync orchestrator and the CLI.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCategory represents the category of a TaxoError for classification
type ErrorCategory string

const (
	// User-facing configuration and input errors
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"

	// Remote source errors
	CategoryNetwork ErrorCategory = "network"
	CategoryServer  ErrorCategory = "server"
	CategoryParse   ErrorCategory = "parse"

	// Local persistence and runtime errors
	CategoryStorage  ErrorCategory = "storage"
	CategoryDaemon   ErrorCategory = "daemon"
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops execution
	SeverityError   ErrorSeverity = "error"   // Error, but not fatal
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
	SeverityInfo    ErrorSeverity = "info"    // Informational, no impact
)

// TaxoError is a structured error with category, retryability and context.
// Status carries the HTTP status for CategoryServer errors and is zero otherwise.
type TaxoError struct {
	Category  ErrorCategory `json:"category"`
	Severity  ErrorSeverity `json:"severity"`
	Message   string        `json:"message"`
	Cause     error         `json:"cause,omitempty"`
	Retryable bool          `json:"retryable"`
	Status    int           `json:"status,omitempty"`
	Context   ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for TaxoError
type ContextFields map[string]any

// Error implements the error interface
func (e *TaxoError) Error() string {
	msg := e.Message
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, msg, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, msg)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling
func (e *TaxoError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *TaxoError) WithContext(key string, value any) *TaxoError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// New creates a new TaxoError
func New(category ErrorCategory, severity ErrorSeverity, message string) *TaxoError {
	return &TaxoError{
		Category: category,
		Severity: severity,
		Message:  message,
	}
}

// Wrap creates a new TaxoError that wraps an existing error
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *TaxoError {
	return &TaxoError{
		Category: category,
		Severity: severity,
		Message:  message,
		Cause:    err,
	}
}

// WrapRetryable creates a new retryable TaxoError that wraps an existing error
func WrapRetryable(err error, category ErrorCategory, severity ErrorSeverity, message string) *TaxoError {
	return &TaxoError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Cause:     err,
		Retryable: true,
	}
}

// As extracts the first TaxoError in err's chain.
func As(err error) (*TaxoError, bool) {
	var te *TaxoError
	if stderrors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// IsCategory checks if an error belongs to a specific category
func IsCategory(err error, category ErrorCategory) bool {
	if te, ok := As(err); ok {
		return te.Category == category
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if te, ok := As(err); ok {
		return te.Retryable
	}
	return false
}

// GetCategory extracts the category from an error, or returns CategoryInternal if not a TaxoError
func GetCategory(err error) ErrorCategory {
	if te, ok := As(err); ok {
		return te.Category
	}
	return CategoryInternal
}

// StatusCode returns the HTTP status carried by a server error, or 0.
func StatusCode(err error) int {
	if te, ok := As(err); ok {
		return te.Status
	}
	return 0
}
