// Package health serves liveness and readiness checks.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/storefront/orderreview/pkg/httputil"
)

// Checker pings one dependency.
type Checker func(ctx context.Context) error

type Status string

const (
	StatusUp   Status = "up"
	StatusDown Status = "down"
)

// Response is the health check body.
type Response struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

type CheckResult struct {
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Handler aggregates named dependency checks.
type Handler struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	timeout  time.Duration
}

// NewHandler returns a Handler whose readiness check gives up after timeout.
func NewHandler(timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Handler{checkers: make(map[string]Checker), timeout: timeout}
}

// Register adds or replaces a named check.
func (h *Handler) Register(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = checker
}

// Names returns the registered check names, sorted.
func (h *Handler) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.checkers))
	for n := range h.checkers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// LivenessHandler always reports up while the process serves requests.
func (h *Handler) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, Response{Status: StatusUp, Timestamp: time.Now().UTC()})
	}
}

// ReadinessHandler runs all checks concurrently and answers 503 if any fails.
func (h *Handler) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := h.Check(r.Context())
		status := http.StatusOK
		if resp.Status == StatusDown {
			status = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, status, resp)
	}
}

// Check runs every registered checker and aggregates the result.
func (h *Handler) Check(ctx context.Context) Response {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	h.mu.RLock()
	checkers := make(map[string]Checker, len(h.checkers))
	for k, v := range h.checkers {
		checkers[k] = v
	}
	h.mu.RUnlock()

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		checks = make(map[string]CheckResult, len(checkers))
		status = StatusUp
	)
	for name, check := range checkers {
		wg.Add(1)
		go func(name string, check Checker) {
			defer wg.Done()
			res := CheckResult{Status: StatusUp}
			if err := check(ctx); err != nil {
				res = CheckResult{Status: StatusDown, Error: err.Error()}
			}
			mu.Lock()
			checks[name] = res
			if res.Status == StatusDown {
				status = StatusDown
			}
			mu.Unlock()
		}(name, check)
	}
	wg.Wait()

	return Response{Status: status, Timestamp: time.Now().UTC(), Checks: checks}
}
