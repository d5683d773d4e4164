package middleware

import (
	"log/slog"
	"net/http"

	"github.com/storefront/orderreview/pkg/logger"
)

// RequestLogger stores a logger enriched with correlation_id, user_id,
// trace_id and span_id in the request context. Mount it after
// RequestLogging, Tracing and Identity.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if actor := ActorIDFromContext(ctx); actor != "" {
				ctx = logger.WithActorID(ctx, actor)
			}
			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
