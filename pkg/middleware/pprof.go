package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/storefront/orderreview/pkg/errors"
	"github.com/storefront/orderreview/pkg/httputil"
)

// RegisterPprof mounts /debug/pprof behind a CIDR allowlist.
func RegisterPprof(r chi.Router, allowedCIDRs []string, logger *slog.Logger) {
	r.Group(func(r chi.Router) {
		r.Use(IPAllowlist(allowedCIDRs, logger))
		r.HandleFunc("/debug/pprof/*", pprof.Index)
		r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		r.HandleFunc("/debug/pprof/profile", pprof.Profile)
		r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		r.HandleFunc("/debug/pprof/trace", pprof.Trace)
	})
}

// IPAllowlist admits only remote addresses inside cidrs. Invalid entries
// are logged and ignored; an empty list denies everyone.
func IPAllowlist(cidrs []string, logger *slog.Logger) func(http.Handler) http.Handler {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, n, err := net.ParseCIDR(cidr)
		if err != nil {
			logger.Warn("invalid allowlist CIDR, skipping", slog.String("cidr", cidr), slog.String("error", err.Error()))
			continue
		}
		nets = append(nets, n)
	}

	contains := func(ip net.IP) bool {
		for _, n := range nets {
			if n.Contains(ip) {
				return true
			}
		}
		return false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}
			if ip := net.ParseIP(host); ip == nil || !contains(ip) {
				logger.Warn("access denied by IP allowlist", slog.String("ip", host), slog.String("path", r.URL.Path))
				httputil.WriteError(w, r, apperrors.Forbidden("access restricted by IP allowlist"), logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
