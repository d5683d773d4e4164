// Package breaker wraps sony/gobreaker for calls to optional infrastructure
// such as the Redis product cache. While the breaker is open calls fail fast
// with ErrOpen instead of waiting on a dead backend.
package breaker

import (
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"
)

// ErrOpen is returned while the breaker rejects calls.
var ErrOpen = gobreaker.ErrOpenState

// Config holds the trip and recovery settings of a breaker.
type Config struct {
	// Name labels logs and metrics.
	Name string

	// MaxRequests is how many trial calls are let through while half-open.
	MaxRequests uint32

	// Interval clears the closed-state counts. Zero never clears them.
	Interval time.Duration

	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration

	// FailureRatio trips the breaker once MinRequests have been observed.
	FailureRatio float64
	MinRequests  uint32
}

// DefaultConfig returns the settings used for the product cache.
func DefaultConfig(name string) Config {
	return Config{
		Name:         name,
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

// Metrics exposes breaker state and rejections. A nil *Metrics is valid.
type Metrics struct {
	state    *prometheus.GaugeVec
	rejected *prometheus.CounterVec
}

// NewMetrics registers the breaker collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current state of the circuit breaker (0=closed, 1=half-open, 2=open)",
		}, []string{"name"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "circuit_breaker_rejected_total",
			Help: "Calls rejected without reaching the backend",
		}, []string{"name"}),
	}
	reg.MustRegister(m.state, m.rejected)
	return m
}

func (m *Metrics) setState(name string, s gobreaker.State) {
	if m == nil {
		return
	}
	m.state.WithLabelValues(name).Set(stateValue(s))
}

func (m *Metrics) reject(name string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(name).Inc()
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// Breaker guards calls to a single backend.
type Breaker struct {
	name    string
	cb      *gobreaker.CircuitBreaker[struct{}]
	metrics *Metrics
}

// New creates a closed breaker.
func New(cfg Config, metrics *Metrics, logger *slog.Logger) *Breaker {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			metrics.setState(name, to)
		},
	}

	metrics.setState(cfg.Name, gobreaker.StateClosed)
	return &Breaker{
		name:    cfg.Name,
		cb:      gobreaker.NewCircuitBreaker[struct{}](settings),
		metrics: metrics,
	}
}

// Do runs fn through the breaker. A nil Breaker just runs fn.
func (b *Breaker) Do(fn func() error) error {
	if b == nil {
		return fn()
	}
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		b.metrics.reject(b.name)
	}
	return err
}

// State reports the current breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
