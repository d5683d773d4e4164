package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelErrors_AreDistinct(t *testing.T) {
	sentinels := []error{
		ErrNotFound, ErrInvalidInput, ErrUnauthorized, ErrForbidden,
		ErrInsufficientStock, ErrPrecondition, ErrInternal,
	}

	for i := 0; i < len(sentinels); i++ {
		for j := i + 1; j < len(sentinels); j++ {
			assert.NotEqual(t, sentinels[i], sentinels[j])
		}
	}
}

func TestAppError_ErrorString(t *testing.T) {
	wrapped := &AppError{Code: "INTERNAL_ERROR", Message: "boom", Err: fmt.Errorf("conn reset")}
	assert.Equal(t, "INTERNAL_ERROR: boom: conn reset", wrapped.Error())

	bare := &AppError{Code: "NOT_FOUND", Message: "order not found"}
	assert.Equal(t, "NOT_FOUND: order not found", bare.Error())
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		code     string
		status   int
		sentinel error
	}{
		{"not found", NotFound("order", "o-1"), "NOT_FOUND", http.StatusNotFound, ErrNotFound},
		{"invalid input", InvalidInput("rating must be between 1 and 5"), "INVALID_INPUT", http.StatusBadRequest, ErrInvalidInput},
		{"unauthorized", Unauthorized("missing token"), "UNAUTHORIZED", http.StatusUnauthorized, ErrUnauthorized},
		{"forbidden", Forbidden("not your order"), "FORBIDDEN", http.StatusForbidden, ErrForbidden},
		{"insufficient stock", InsufficientStock("Mug", 1, 3), "INSUFFICIENT_STOCK", http.StatusBadRequest, ErrInsufficientStock},
		{"precondition", Precondition("order not delivered"), "PRECONDITION_FAILED", http.StatusBadRequest, ErrPrecondition},
		{"internal", Internal(ErrInternal), "INTERNAL_ERROR", http.StatusInternalServerError, ErrInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NotNil(t, tt.err)
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.Status)
			assert.True(t, errors.Is(tt.err, tt.sentinel))
		})
	}
}

func TestInsufficientStock_Message(t *testing.T) {
	err := InsufficientStock("Mug", 1, 3)
	assert.Contains(t, err.Message, "Mug")
	assert.Contains(t, err.Message, "available 1")
	assert.Contains(t, err.Message, "requested 3")
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error", Forbidden("x"), http.StatusForbidden},
		{"wrapped app error", fmt.Errorf("ctx: %w", NotFound("review", "r")), http.StatusNotFound},
		{"bare sentinel", ErrNotFound, http.StatusNotFound},
		{"wrapped sentinel", Wrap(ErrPrecondition, "submit"), http.StatusBadRequest},
		{"stock sentinel", ErrInsufficientStock, http.StatusBadRequest},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(NotFound("product", "p")))
	assert.True(t, IsNotFound(fmt.Errorf("get: %w", ErrNotFound)))
	assert.False(t, IsNotFound(InvalidInput("x")))
}
