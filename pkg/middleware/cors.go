package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig lists the origins allowed to call the API from a browser.
// A "*" entry allows any origin.
type CORSConfig struct {
	AllowedOrigins   []string
	AllowCredentials bool
	MaxAge           int
}

var (
	corsMethods = strings.Join([]string{
		http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
	}, ", ")
	corsHeaders = strings.Join([]string{
		"Accept", "Authorization", "Content-Type", CorrelationHeader, UserIDHeader, UserRoleHeader,
	}, ", ")
)

// CORS sets Access-Control headers and answers preflight requests with 204.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	wildcard := false
	origins := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			wildcard = true
		}
		origins[o] = struct{}{}
	}
	maxAge := cfg.MaxAge
	if maxAge == 0 {
		maxAge = 3600
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			origin := r.Header.Get("Origin")
			switch {
			case wildcard:
				h.Set("Access-Control-Allow-Origin", "*")
			case origin != "":
				if _, ok := origins[origin]; ok {
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			h.Set("Access-Control-Allow-Methods", corsMethods)
			h.Set("Access-Control-Allow-Headers", corsHeaders)
			h.Set("Access-Control-Expose-Headers", CorrelationHeader)
			h.Set("Access-Control-Max-Age", strconv.Itoa(maxAge))
			if cfg.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
