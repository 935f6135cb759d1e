package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for callers deciding whether to retry or correct input.
type Kind string

const (
	KindValidation Kind = "validation"
	KindBusiness   Kind = "business"
	KindIntegrity  Kind = "integrity"
	KindTransient  Kind = "transient"
	KindAccess     Kind = "access"
	KindInternal   Kind = "internal"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Kind    Kind   `json:"-"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors sharing the same code so clones compare equal to their sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Kind: kindForStatus(status)}
}

func newKind(kind Kind, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Kind: kind}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Kind: kindForStatus(status), Err: err}
}

// WrapAs wraps err keeping the code, status and kind of the provided sentinel.
func WrapAs(err error, sentinel *Error, message string) *Error {
	wrapped := Clone(sentinel, message)
	wrapped.Err = err
	return wrapped
}

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
	ErrFeatureDisabled    = New("FEATURE_DISABLED", http.StatusNotFound, "feature disabled")
)

// Admission errors.
var (
	ErrMissingValue     = newKind(KindValidation, "MISSING_VALUE", http.StatusBadRequest, "decided hours must be provided")
	ErrNegativeValue    = newKind(KindValidation, "NEGATIVE_VALUE", http.StatusBadRequest, "decided hours cannot be negative")
	ErrExceedsRequested = newKind(KindValidation, "EXCEEDS_REQUESTED", http.StatusBadRequest, "decided hours cannot exceed the requested hours")
	ErrAlreadyBlocked   = newKind(KindBusiness, "ALREADY_BLOCKED", http.StatusConflict, "activity is blocked because the category limit was reached")
	ErrQuotaExhausted   = newKind(KindBusiness, "QUOTA_EXHAUSTED", http.StatusConflict, "category limit already committed for this student")
	ErrQuotaMissing     = newKind(KindIntegrity, "QUOTA_NOT_CONFIGURED", http.StatusInternalServerError, "quota category not configured for the student's course and admission term")
	ErrLockTimeout      = newKind(KindTransient, "LOCK_TIMEOUT", http.StatusServiceUnavailable, "another decision is in progress for this category, retry")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// KindOf reports the classification of err; unknown errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Kind != "" {
		return e.Kind
	}
	return KindInternal
}

// IsValidation reports a caller-correctable input error.
func IsValidation(err error) bool {
	return KindOf(err) == KindValidation
}

// IsBusinessState reports a rule rejection the caller may retry once other
// activities are resolved.
func IsBusinessState(err error) bool {
	return KindOf(err) == KindBusiness
}

// IsRetryable reports whether the caller may retry the whole operation unchanged.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransient
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusBadRequest:
		return KindValidation
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAccess
	case status == http.StatusConflict || status == http.StatusPreconditionFailed:
		return KindBusiness
	case status == http.StatusServiceUnavailable:
		return KindTransient
	case status >= http.StatusInternalServerError:
		return KindInternal
	default:
		return KindBusiness
	}
}
