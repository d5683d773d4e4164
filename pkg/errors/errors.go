// Package errors defines the error taxonomy shared by the ledgers and the
// HTTP layer. Every failure a caller can act on is an *AppError carrying a
// stable code and the HTTP status it maps to; anything else is internal.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinels. AppErrors wrap one of these so callers can use errors.Is.
var (
	ErrNotFound          = errors.New("resource not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrPrecondition      = errors.New("precondition failed")
	ErrInternal          = errors.New("internal error")
)

// AppError is a classified error with an HTTP status mapping.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound reports a missing order, review or product.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// InvalidInput reports malformed arguments such as an empty order or a
// rating outside 1..5.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    "INVALID_INPUT",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// Unauthorized creates a 401 error.
func Unauthorized(message string) *AppError {
	return &AppError{
		Code:    "UNAUTHORIZED",
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     ErrUnauthorized,
	}
}

// Forbidden reports an actor touching an order or review it does not own.
func Forbidden(message string) *AppError {
	return &AppError{
		Code:    "FORBIDDEN",
		Message: message,
		Status:  http.StatusForbidden,
		Err:     ErrForbidden,
	}
}

// InsufficientStock reports a line item whose quantity exceeds what is on hand.
func InsufficientStock(productName string, available, requested int) *AppError {
	return &AppError{
		Code:    "INSUFFICIENT_STOCK",
		Message: fmt.Sprintf("insufficient stock for %s: available %d, requested %d", productName, available, requested),
		Status:  http.StatusBadRequest,
		Err:     ErrInsufficientStock,
	}
}

// Precondition reports a state-dependent rejection, e.g. reviewing an order
// that has not been delivered yet.
func Precondition(message string) *AppError {
	return &AppError{
		Code:    "PRECONDITION_FAILED",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrPrecondition,
	}
}

// Internal wraps an unexpected failure. The message is deliberately generic.
func Internal(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// Wrap adds context to err.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

var sentinelStatus = []struct {
	err    error
	status int
}{
	{ErrNotFound, http.StatusNotFound},
	{ErrInvalidInput, http.StatusBadRequest},
	{ErrInsufficientStock, http.StatusBadRequest},
	{ErrPrecondition, http.StatusBadRequest},
	{ErrUnauthorized, http.StatusUnauthorized},
	{ErrForbidden, http.StatusForbidden},
}

// HTTPStatus returns the HTTP status code for err. Unclassified errors are 500.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	for _, s := range sentinelStatus {
		if errors.Is(err, s.err) {
			return s.status
		}
	}
	return http.StatusInternalServerError
}

// IsNotFound reports whether err is, or wraps, ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
