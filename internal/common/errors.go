package common

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors classifying every failure the core reports. Wrapped in an
// AppError they still satisfy errors.Is.
var (
	ErrNotFound               = errors.New("not found")
	ErrValidation             = errors.New("validation failed")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrDiscountNotApplicable  = errors.New("discount not applicable")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrInternalComputation    = errors.New("internal computation error")
)

// AppError represents an error with an attached code and HTTP status.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// WithDetails attaches structured details rendered in the error envelope.
func (e *AppError) WithDetails(details any) *AppError {
	if e == nil {
		return nil
	}
	e.Details = details
	return e
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// IsAppError checks whether the error is an AppError.
func IsAppError(err error) bool {
	var target *AppError
	return errors.As(err, &target)
}

// NotFound reports a missing product, variant, cart, address, order or rule.
func NotFound(what string) *AppError {
	return NewAppError("NOT_FOUND", what+" not found", http.StatusNotFound, ErrNotFound)
}

// Validation reports malformed input.
func Validation(message string) *AppError {
	return NewAppError("VALIDATION_ERROR", message, http.StatusUnprocessableEntity, ErrValidation)
}

// InsufficientStock reports a requested quantity above available stock.
func InsufficientStock(requested, available int32) *AppError {
	return NewAppError("INSUFFICIENT_STOCK", "insufficient stock", http.StatusConflict, ErrInsufficientStock).
		WithDetails(map[string]int32{"requested": requested, "available": available})
}

// DiscountNotApplicable wraps cause (scope, minimum spend, expiry) as a rejected code.
func DiscountNotApplicable(cause error) *AppError {
	message := "discount code not applicable"
	if cause != nil {
		message = cause.Error()
	}
	return NewAppError("DISCOUNT_NOT_APPLICABLE", message, http.StatusUnprocessableEntity, wrapSentinel(ErrDiscountNotApplicable, cause))
}

// InvalidTransition reports a state change outside the allowed table.
func InvalidTransition(from, to string) *AppError {
	return NewAppError("INVALID_STATE_TRANSITION", fmt.Sprintf("cannot transition from %s to %s", from, to), http.StatusConflict, ErrInvalidStateTransition)
}

// Internal wraps an unexpected failure.
func Internal(err error) *AppError {
	return NewAppError("INTERNAL", "internal error", http.StatusInternalServerError, wrapSentinel(ErrInternalComputation, err))
}

func wrapSentinel(sentinel, cause error) error {
	if cause == nil || errors.Is(cause, sentinel) {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, cause)
}

// WriteError renders err using the canonical error envelope. Errors that are
// not AppErrors are reported as 500 without leaking their text.
func WriteError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.HTTPStatus != 0 {
		message := appErr.Message
		if message == "" {
			message = http.StatusText(appErr.HTTPStatus)
		}
		JSONError(w, appErr.HTTPStatus, appErr.Code, message, appErr.Details)
		return
	}
	JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
}
