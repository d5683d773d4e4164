package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/storefront/orderreview/pkg/httputil"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client key.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewRateLimiter allows rps requests per second with the given burst per
// client. Idle clients are forgotten after ttl by Sweep.
func NewRateLimiter(rps float64, burst int, ttl time.Duration, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(rps),
		burst:    burst,
		ttl:      ttl,
		now:      time.Now,
		logger:   logger,
	}
}

func (l *RateLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = l.now()
	return v.limiter.AllowN(v.lastSeen, 1)
}

// Sweep drops visitors idle for longer than ttl.
func (l *RateLimiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for k, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.ttl {
			delete(l.visitors, k)
		}
	}
}

// Run sweeps every ttl until done is closed.
func (l *RateLimiter) Run(done <-chan struct{}) {
	ticker := time.NewTicker(l.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// Middleware answers 429 once a client exhausts its bucket. Clients are
// keyed by caller identity when known, else by IP.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := ActorIDFromContext(r.Context())
		if key == "" {
			key = clientIP(r)
		}
		if !l.allow(key) {
			l.logger.WarnContext(r.Context(), "rate limit exceeded",
				slog.String("client", key),
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("Retry-After", "1")
			httputil.WriteJSON(w, http.StatusTooManyRequests, httputil.ErrorEnvelope{Error: &httputil.ErrorResponse{
				Code:    "RATE_LIMITED",
				Message: "too many requests",
			}})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// socket address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}
	if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
		return ip.String()
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
