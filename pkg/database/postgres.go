// Package database holds Postgres and Redis connection helpers, schema
// migrations, query tracing and pool metrics.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresConfig describes the connection and pool sizing.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string

	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	// Tracer, when set, observes every query issued through the pool.
	Tracer pgx.QueryTracer
}

// DSN returns the connection URL. Credentials are escaped.
func (c PostgresConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.DBName,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}
	return u.String()
}

const (
	retryAttempts       = 3
	retryBaseWait       = time.Second
	retryJitterFraction = 0.25
)

// backoff returns 1s, 2s, 4s... for attempt 0, 1, 2... with ±25% jitter.
func backoff(attempt int) time.Duration {
	base := retryBaseWait << max(attempt, 0)
	jitter := time.Duration(float64(base) * retryJitterFraction * (2*rand.Float64() - 1)) // #nosec G404 -- jitter only
	return base + jitter
}

// retry runs fn up to retryAttempts times, sleeping with backoff between
// attempts while retryable(err) holds. A nil retryable retries everything.
func retry(ctx context.Context, logger *slog.Logger, what string, retryable func(error) bool, fn func() error) error {
	var err error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
		if attempt == retryAttempts-1 {
			break
		}
		wait := backoff(attempt)
		if logger != nil {
			logger.WarnContext(ctx, what+" failed, retrying",
				slog.Int("attempt", attempt+1),
				slog.Int("max_attempts", retryAttempts),
				slog.Duration("backoff", wait),
				slog.String("error", err.Error()),
			)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: canceled during retry: %w", what, ctx.Err())
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("%s after %d attempts: %w", what, retryAttempts, err)
}

// NewPostgresPool opens and pings a pool, retrying transient failures.
func NewPostgresPool(ctx context.Context, cfg PostgresConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	if cfg.Tracer != nil {
		poolCfg.ConnConfig.Tracer = cfg.Tracer
	}

	var pool *pgxpool.Pool
	err = retry(ctx, logger, "connect to postgres", nil, func() error {
		p, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return err
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return err
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pool, nil
}
