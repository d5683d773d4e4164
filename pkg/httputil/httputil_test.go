package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/storefront/orderreview/pkg/errors"
	"github.com/storefront/orderreview/pkg/logger"
	"github.com/storefront/orderreview/pkg/validator"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) *ErrorResponse {
	t.Helper()
	var env ErrorEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	require.NotNil(t, env.Error)
	return env.Error
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]string{"message": "ok"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"message":"ok"}`, rec.Body.String())
}

func TestWriteError_AppErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", apperrors.NotFound("order", "o-1"), http.StatusNotFound, "NOT_FOUND"},
		{"forbidden", apperrors.Forbidden("not your review"), http.StatusForbidden, "FORBIDDEN"},
		{"precondition", apperrors.Precondition("order not delivered"), http.StatusBadRequest, "PRECONDITION_FAILED"},
		{"stock", apperrors.InsufficientStock("Mug", 0, 1), http.StatusBadRequest, "INSUFFICIENT_STOCK"},
		{"wrapped", fmt.Errorf("submit: %w", apperrors.InvalidInput("bad rating")), http.StatusBadRequest, "INVALID_INPUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			WriteError(rec, req, tt.err, testLogger())

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
		})
	}
}

func TestWriteError_BareSentinel(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	WriteError(rec, req, fmt.Errorf("lookup: %w", apperrors.ErrNotFound), testLogger())

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, rec).Code)
}

func TestWriteError_InternalIsGenericAndLogged(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewJSONHandler(&buf, nil))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/orders", nil)
	WriteError(rec, req, errors.New("pq: connection refused on 10.0.0.5"), l)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "INTERNAL_ERROR", body.Code)
	assert.NotContains(t, body.Message, "10.0.0.5")
	assert.Contains(t, buf.String(), "connection refused")
	assert.Contains(t, buf.String(), "/orders")
}

func TestWriteError_InternalAppErrorHidesCause(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	WriteError(rec, req, apperrors.Internal(errors.New("secret dsn")), testLogger())

	body := decodeError(t, rec)
	assert.Equal(t, "an internal error occurred", body.Message)
}

func TestWriteError_PrefersRequestLogger(t *testing.T) {
	var scoped, fallback bytes.Buffer
	ctx := logger.NewContext(context.Background(), slog.New(slog.NewJSONHandler(&scoped, nil)))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
	WriteError(rec, req, errors.New("boom"), slog.New(slog.NewJSONHandler(&fallback, nil)))

	assert.NotZero(t, scoped.Len())
	assert.Zero(t, fallback.Len())
}

func TestWriteError_IncludesRequestID(t *testing.T) {
	ctx := logger.WithCorrelationID(context.Background(), "corr-42")
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
	WriteError(rec, req, apperrors.NotFound("product", "p"), testLogger())

	assert.Equal(t, "corr-42", decodeError(t, rec).RequestID)
}

func TestWriteValidationError(t *testing.T) {
	type body struct {
		Rating int `validate:"gte=1,lte=5"`
	}
	err := validator.Validate(body{Rating: 7})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/reviews", nil)
	WriteValidationError(rec, req, err)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", resp.Code)
	assert.Contains(t, resp.Fields, "Rating")
}

func TestWriteValidationError_DecodeFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/reviews", nil)
	WriteValidationError(rec, req, errors.New("decode request body: unexpected EOF"))

	resp := decodeError(t, rec)
	assert.Equal(t, "INVALID_INPUT", resp.Code)
	assert.Empty(t, resp.Fields)
}

func TestParseUUID(t *testing.T) {
	rec := httptest.NewRecorder()
	id, ok := ParseUUID(rec, "6F1C2D4E-8A7B-4C3D-9E2F-1A2B3C4D5E6F")
	assert.True(t, ok)
	assert.Equal(t, "6f1c2d4e-8a7b-4c3d-9e2f-1a2b3c4d5e6f", id.String())

	rec = httptest.NewRecorder()
	_, ok = ParseUUID(rec, "not-a-uuid")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_PARAMETER", decodeError(t, rec).Code)
}
