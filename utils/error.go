package utils

import (
	"errors"
	"fmt"
)

var ErrorRecordNotFound = errors.New("record not found")

// ErrorCategory labels a pipeline failure so callers can decide whether a
// retry or a fallback makes sense. Every terminal failure surfaced to the
// caller carries exactly one category.
type ErrorCategory string

const (
	ErrorCategoryMissingData      ErrorCategory = "MissingData"
	ErrorCategorySchemaMismatch   ErrorCategory = "SchemaMismatch"
	ErrorCategoryRemoteTimeout    ErrorCategory = "RemoteTimeout"
	ErrorCategoryRemoteValidation ErrorCategory = "RemoteValidation"
	ErrorCategoryRemoteNotFound   ErrorCategory = "RemoteNotFound"
	ErrorCategoryRemoteServer     ErrorCategory = "RemoteServer"
	ErrorCategoryEmptyArtifact    ErrorCategory = "EmptyArtifact"
)

// CategorizedError wraps an underlying error with its category and a
// human-readable message. Detail holds field-level information passed
// through verbatim from the provider (validation failures only).
type CategorizedError struct {
	Category ErrorCategory
	Message  string
	Detail   map[string]string
	Err      error
}

func (e *CategorizedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

func (e *CategorizedError) Unwrap() error {
	return e.Err
}

func NewCategorizedError(category ErrorCategory, message string, err error) *CategorizedError {
	return &CategorizedError{Category: category, Message: message, Err: err}
}

// CategoryOf extracts the category from err, or "" when err carries none.
func CategoryOf(err error) ErrorCategory {
	var ce *CategorizedError
	if errors.As(err, &ce) {
		return ce.Category
	}
	return ""
}

// IsRetryable reports whether a remote attempt with this category may be
// retried. Only timeout-class failures qualify; validation, not-found and
// server errors are terminal for the remote path.
func IsRetryable(category ErrorCategory) bool {
	return category == ErrorCategoryRemoteTimeout
}
