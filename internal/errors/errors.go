package errors

import (
	"errors"
	"fmt"
)

// CodeError is the structured error carried across package boundaries.
type CodeError struct {
	Code       string
	Message    string
	Category   Category
	Severity   Severity
	Details    map[string]string
	Cause      error
	Retryable  bool
	Suggestion string
}

func (e *CodeError) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *CodeError) Unwrap() error {
	return e.Cause
}

// Is matches another *CodeError by code so errors.Is works against sentinels.
func (e *CodeError) Is(target error) bool {
	var t *CodeError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// WithDetail attaches a key/value pair and returns e.
func (e *CodeError) WithDetail(key, value string) *CodeError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion attaches a user-facing hint and returns e.
func (e *CodeError) WithSuggestion(s string) *CodeError {
	e.Suggestion = s
	return e
}

// New builds a CodeError; category, severity and retryability derive from code.
func New(code, message string, cause error) *CodeError {
	return &CodeError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap turns err into a CodeError using err's message. Nil stays nil.
func Wrap(code string, err error) *CodeError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Code returns the code of the first CodeError in err's chain.
func Code(err error) string {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// IsRetryable reports whether err's chain holds a retryable CodeError.
func IsRetryable(err error) bool {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}

// IsFatal reports whether err's chain holds a fatal CodeError.
func IsFatal(err error) bool {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Severity == SeverityFatal
	}
	return false
}
