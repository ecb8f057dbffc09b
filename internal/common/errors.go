package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Error taxonomy of the extraction core. Transient provider conditions are
// absorbed inside the fallback client; only exhaustion conditions carry one
// of these sentinels out to the caller.
var (
	ErrDocumentUnavailable = errors.New("document unavailable")
	ErrExtractionFailed    = errors.New("extraction failed")
	ErrValidationRejected  = errors.New("validation rejected")
	ErrInvalidInput        = errors.New("invalid input")
)

// NewAppError builds a classified error with an optional cause.
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WrapError annotates err with a message, preserving the chain.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
