// Package httputil writes JSON bodies and the shared error envelope.
package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	apperrors "github.com/storefront/orderreview/pkg/errors"
	"github.com/storefront/orderreview/pkg/logger"
	"github.com/storefront/orderreview/pkg/validator"
)

// ErrorEnvelope is the body of every non-2xx response.
type ErrorEnvelope struct {
	Error *ErrorResponse `json:"error"`
}

// ErrorResponse describes a failed request.
type ErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// WriteJSON writes v as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already out; an encode failure cannot be reported.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError classifies err and writes the matching status and envelope.
// Anything that is not a client error is logged with the request-scoped
// logger (or fallback) and reported as a generic 500.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	ctx := r.Context()
	requestID := logger.CorrelationIDFromContext(ctx)

	resp := &ErrorResponse{
		Code:      "INTERNAL_ERROR",
		Message:   "an internal error occurred",
		RequestID: requestID,
	}
	status := http.StatusInternalServerError

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		status = appErr.Status
		resp.Code = appErr.Code
		resp.Message = appErr.Message
	} else if s := apperrors.HTTPStatus(err); s != http.StatusInternalServerError {
		status = s
		resp.Code = strings.ToUpper(strings.ReplaceAll(http.StatusText(s), " ", "_"))
		resp.Message = err.Error()
	}

	if status >= http.StatusInternalServerError {
		l := logger.FromContext(ctx)
		if l == slog.Default() && fallback != nil {
			l = fallback
		}
		l.ErrorContext(ctx, "internal error",
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
		// never echo internal detail
		resp.Code = "INTERNAL_ERROR"
		resp.Message = "an internal error occurred"
	}

	WriteJSON(w, status, ErrorEnvelope{Error: resp})
}

// WriteValidationError writes a 400 with per-field messages when err comes
// from the validator, or a plain INVALID_INPUT otherwise (e.g. bad JSON).
func WriteValidationError(w http.ResponseWriter, r *http.Request, err error) {
	resp := &ErrorResponse{
		Code:      "INVALID_INPUT",
		Message:   err.Error(),
		RequestID: logger.CorrelationIDFromContext(r.Context()),
	}
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		resp.Code = "VALIDATION_ERROR"
		resp.Message = "request validation failed"
		resp.Fields = valErr.Fields()
	}
	WriteJSON(w, http.StatusBadRequest, ErrorEnvelope{Error: resp})
}

// ParseUUID parses param as a UUID. On failure it writes a 400 and returns
// false; the caller should return immediately.
func ParseUUID(w http.ResponseWriter, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(param)
	if err != nil {
		WriteJSON(w, http.StatusBadRequest, ErrorEnvelope{Error: &ErrorResponse{
			Code:    "INVALID_PARAMETER",
			Message: "invalid UUID: " + param,
		}})
		return uuid.Nil, false
	}
	return id, true
}
