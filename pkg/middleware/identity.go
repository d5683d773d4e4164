package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/storefront/orderreview/pkg/errors"
	"github.com/storefront/orderreview/pkg/httputil"
)

// Headers set by the upstream gateway when it has already authenticated
// the caller.
const (
	UserIDHeader   = "X-User-ID"
	UserRoleHeader = "X-User-Role"
)

type identityKey struct{}

// Identity is the authenticated caller.
type Identity struct {
	UserID string
	Role   string
}

// Claims is the bearer token payload.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// TokenValidator turns a bearer token into claims.
type TokenValidator func(token string) (*Claims, error)

// HMACValidator validates HS256/384/512 tokens signed with secret.
func HMACValidator(secret string) TokenValidator {
	key := []byte(secret)
	return func(raw string) (*Claims, error) {
		token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return key, nil
		})
		if err != nil {
			return nil, fmt.Errorf("parse token: %w", err)
		}
		claims, ok := token.Claims.(*Claims)
		if !ok || !token.Valid {
			return nil, errors.New("invalid token claims")
		}
		if claims.UserID == "" {
			claims.UserID = claims.Subject
		}
		return claims, nil
	}
}

// ResolveIdentity attaches the caller identity to the request context.
// With a validator, identity comes only from an Authorization bearer token:
// the gateway headers are ignored and invalid tokens are rejected with 401.
// With a nil validator only the gateway headers are read.
func ResolveIdentity(validate TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id Identity
			switch authz := r.Header.Get("Authorization"); {
			case validate == nil:
				id = Identity{
					UserID: strings.TrimSpace(r.Header.Get(UserIDHeader)),
					Role:   strings.TrimSpace(r.Header.Get(UserRoleHeader)),
				}
			case authz != "":
				scheme, token, found := strings.Cut(authz, " ")
				if !found || !strings.EqualFold(scheme, "bearer") {
					httputil.WriteError(w, r, apperrors.Unauthorized("invalid authorization header format"), nil)
					return
				}
				claims, err := validate(strings.TrimSpace(token))
				if err != nil {
					httputil.WriteError(w, r, apperrors.Unauthorized("invalid or expired token"), nil)
					return
				}
				id = Identity{UserID: claims.UserID, Role: claims.Role}
			}

			ctx := r.Context()
			if id.UserID != "" {
				ctx = WithIdentity(ctx, id)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireActor rejects requests that carry no caller identity.
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ActorIDFromContext(r.Context()) == "" {
			httputil.WriteError(w, r, apperrors.Unauthorized("missing caller identity"), nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole rejects callers whose role is not in roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := allowed[RoleFromContext(r.Context())]; !ok {
				httputil.WriteError(w, r, apperrors.Forbidden("insufficient permissions"), nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// ActorIDFromContext returns the caller's user id, or "".
func ActorIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(identityKey{}).(Identity)
	return id.UserID
}

// RoleFromContext returns the caller's role, or "".
func RoleFromContext(ctx context.Context) string {
	id, _ := ctx.Value(identityKey{}).(Identity)
	return id.Role
}

// ContentTypeJSON rejects bodies that are not declared as JSON.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength != 0 && (r.Method == http.MethodPost || r.Method == http.MethodPut) {
			ct := r.Header.Get("Content-Type")
			if !strings.HasPrefix(strings.ToLower(ct), "application/json") {
				httputil.WriteJSON(w, http.StatusUnsupportedMediaType, httputil.ErrorEnvelope{Error: &httputil.ErrorResponse{
					Code:    "UNSUPPORTED_MEDIA_TYPE",
					Message: "Content-Type must be application/json",
				}})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
