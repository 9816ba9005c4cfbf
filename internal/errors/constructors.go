package errors

// Convenience functions for common error patterns

// Config errors

func ConfigNotFound(path string) *TaxoError {
	return New(CategoryConfig, SeverityFatal, "configuration file not found").
		WithContext("path", path)
}

func ValidationFailed(field, reason string) *TaxoError {
	return New(CategoryValidation, SeverityFatal, "validation failed").
		WithContext("field", field).
		WithContext("reason", reason)
}

func UnknownTaxonomy(name string) *TaxoError {
	return New(CategoryValidation, SeverityWarning, "unknown taxonomy").
		WithContext("taxonomy", name)
}

// Remote source errors

// NetworkError reports an unreachable source or a timeout. Always retryable.
func NetworkError(url string, cause error) *TaxoError {
	return WrapRetryable(cause, CategoryNetwork, SeverityWarning, "network error").
		WithContext("url", url)
}

// ServerError reports a non-success HTTP status. Only 5xx is retryable.
func ServerError(url string, status int) *TaxoError {
	e := New(CategoryServer, SeverityWarning, "unexpected server response").
		WithContext("url", url)
	e.Status = status
	e.Retryable = status >= 500
	return e
}

// ParseError reports a malformed payload. It is a data-quality issue on the
// remote side, so retrying without a remote fix is pointless.
func ParseError(url string, cause error) *TaxoError {
	return Wrap(cause, CategoryParse, SeverityError, "malformed payload").
		WithContext("url", url)
}

// Storage errors

func StorageError(operation string, cause error) *TaxoError {
	return Wrap(cause, CategoryStorage, SeverityError, "storage operation failed").
		WithContext("operation", operation)
}

// Internal errors

func InternalError(message string, cause error) *TaxoError {
	return Wrap(cause, CategoryInternal, SeverityFatal, message)
}
