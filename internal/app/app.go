package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/storefront/orderreview/internal/config"
	"github.com/storefront/orderreview/internal/event"
	handler "github.com/storefront/orderreview/internal/handler/http"
	"github.com/storefront/orderreview/internal/repository"
	"github.com/storefront/orderreview/internal/repository/memory"
	"github.com/storefront/orderreview/internal/repository/postgres"
	redisrepo "github.com/storefront/orderreview/internal/repository/redis"
	"github.com/storefront/orderreview/internal/service"
	"github.com/storefront/orderreview/migrations"
	"github.com/storefront/orderreview/pkg/breaker"
	"github.com/storefront/orderreview/pkg/database"
	"github.com/storefront/orderreview/pkg/health"
	pkgkafka "github.com/storefront/orderreview/pkg/kafka"
	"github.com/storefront/orderreview/pkg/middleware"
	"github.com/storefront/orderreview/pkg/tracing"
)

// App wires together all dependencies and runs the order/review service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	registry       *prometheus.Registry
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	fulfillment    *pkgkafka.Consumer
	dlq            *kafka.Writer
	rateLimiter    *middleware.RateLimiter
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
// Components created before a failure are released before returning.
func NewApp(cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			a.release()
		}
	}()

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Initialize OpenTelemetry tracing.
	a.tracerShutdown, err = tracing.Init(ctx, cfg.Tracing())
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	healthHandler := health.NewHandler(3 * time.Second)

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	healthHandler.Register("store", store.Ping)

	// Product cache and consumer idempotency share Redis when it is enabled.
	var (
		cache       service.ProductCache
		idempotency pkgkafka.IdempotencyStore = pkgkafka.NewMemoryIdempotencyStore(cfg.KafkaIdempotencyTTL)
	)
	if cfg.RedisEnabled {
		a.redis, err = database.NewRedisClient(ctx, cfg.Redis())
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info("connected to Redis", slog.String("addr", cfg.RedisAddr))
		breakerCfg := breaker.DefaultConfig("redis-product-cache")
		breakerCfg.Timeout = cfg.CacheBreakerTimeout
		cache = redisrepo.NewProductCache(a.redis, cfg.CacheTTL).
			WithInvalidationHold(cfg.CacheInvalidateHold).
			WithBreaker(breaker.New(breakerCfg, breaker.NewMetrics(a.registry), logger))
		idempotency = redisrepo.NewIdempotencyStore(a.redis, cfg.KafkaIdempotencyTTL)
		healthHandler.Register("redis", func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		})
	}

	var (
		publisher    event.Publisher
		kafkaMetrics *pkgkafka.Metrics
	)
	if cfg.KafkaEnabled {
		kafkaMetrics = pkgkafka.NewMetrics(a.registry)
		a.producer = pkgkafka.NewProducer(pkgkafka.ProducerConfig{Brokers: cfg.KafkaBrokers}, kafkaMetrics, logger)
		if err := pingKafkaWithRetry(ctx, a.producer, logger); err != nil {
			logger.Warn("kafka producer ping failed after retries, continuing in degraded mode",
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
		}
		publisher = a.producer
		healthHandler.Register("kafka", a.producer.Ping)
	}

	// Build the dependency graph.
	deps := service.Dependencies{
		Store:   store,
		Cache:   cache,
		Events:  event.NewProducer(publisher, logger),
		Metrics: service.NewMetrics(a.registry),
		Logger:  logger,
	}
	ratings := service.NewRatingAggregator(deps)
	svcs := handler.Services{
		Orders:   service.NewOrderService(deps, ratings),
		Reviews:  service.NewReviewService(deps, ratings),
		Products: service.NewProductService(deps),
		Ratings:  ratings,
	}

	if cfg.KafkaEnabled {
		a.dlq = pkgkafka.NewDLQWriter(cfg.KafkaBrokers)
		a.fulfillment = pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
			Brokers:  cfg.KafkaBrokers,
			GroupID:  cfg.KafkaGroupID,
			Topic:    event.TopicFulfillmentStatusChanged,
			MinBytes: 1,
			MaxBytes: 10e6,
		}, pkgkafka.IdempotentHandler(idempotency, event.FulfillmentHandler(svcs.Orders, logger), kafkaMetrics, logger),
			a.dlq, kafkaMetrics, logger)
	}

	routerCfg := handler.RouterConfig{
		ServiceName:    cfg.ServiceName,
		RequestTimeout: cfg.RequestTimeout,
		PprofCIDRs:     cfg.PprofCIDRs,
		CORS:           middleware.CORSConfig{AllowedOrigins: cfg.CORSOrigins, MaxAge: 300},
		HTTPMetrics:    middleware.NewHTTPMetrics(a.registry),
		Gatherer:       a.registry,
	}
	if cfg.JWTSecret != "" {
		routerCfg.Tokens = middleware.HMACValidator(cfg.JWTSecret)
	}
	if cfg.RateLimitRPS > 0 {
		a.rateLimiter = middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, 10*time.Minute, logger)
		routerCfg.RateLimiter = a.rateLimiter
	}

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler.NewRouter(svcs, healthHandler, logger, routerCfg),
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// openStore connects the configured storage driver.
func (a *App) openStore(ctx context.Context) (repository.Store, error) {
	if a.cfg.StorageDriver == config.DriverMemory {
		a.logger.Warn("using in-memory storage, data will not survive a restart")
		return memory.NewStore(), nil
	}

	pgCfg := a.cfg.Postgres()
	pgCfg.Tracer = database.NewQueryObserver(a.cfg.SlowQuery, a.logger)

	pool, err := database.NewPostgresPool(ctx, pgCfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	a.pool = pool
	a.logger.Info("connected to PostgreSQL",
		slog.String("host", pgCfg.Host),
		slog.Int("port", pgCfg.Port),
		slog.String("database", pgCfg.DBName),
	)

	if err := database.RegisterPoolMetrics(a.registry, pool, a.cfg.ServiceName); err != nil {
		return nil, fmt.Errorf("register pool metrics: %w", err)
	}
	if err := database.RunMigrations(ctx, pool, migrations.FS, a.logger); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	a.logger.Info("database migrations completed")

	return postgres.NewStore(pool), nil
}

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Run starts the HTTP server, the fulfillment consumer and the rate limiter
// sweeper, then blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	// Start HTTP server.
	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if a.fulfillment != nil {
		go func() {
			if err := a.fulfillment.Start(ctx); err != nil {
				errCh <- fmt.Errorf("fulfillment consumer: %w", err)
			}
		}()
	}

	if a.rateLimiter != nil {
		go a.rateLimiter.Run(ctx.Done())
	}

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.logger.Error("component failed, shutting down", slog.String("error", err.Error()))
		return errors.Join(err, a.Shutdown())
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in order: drain HTTP, flush
// spans, stop consuming, close the producer, then the stores.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	errs = append(errs, a.release())

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// release closes everything except the HTTP server. Nil components are
// skipped, so it is safe on a partially built App.
func (a *App) release() error {
	var errs []error
	closeWith := func(name string, fn func() error) {
		if err := fn(); err != nil {
			a.logger.Error(name+" close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		closeWith("tracer", func() error { return a.tracerShutdown(tracerCtx) })
	}
	if a.fulfillment != nil {
		closeWith("fulfillment consumer", a.fulfillment.Close)
	}
	if a.dlq != nil {
		closeWith("dlq writer", a.dlq.Close)
	}
	if a.producer != nil {
		closeWith("kafka producer", a.producer.Close)
	}
	if a.redis != nil {
		closeWith("redis", a.redis.Close)
	}
	if a.pool != nil {
		a.pool.Close()
	}
	return errors.Join(errs...)
}

// pingKafkaWithRetry pings the brokers up to three times, backing off
// 1s then 2s with ±25% jitter.
func pingKafkaWithRetry(ctx context.Context, producer *pkgkafka.Producer, logger *slog.Logger) error {
	const attempts = 3
	var lastErr error
	for attempt := range attempts {
		if lastErr = producer.Ping(ctx); lastErr == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}
		base := time.Duration(1<<attempt) * time.Second
		wait := base + time.Duration(float64(base)*0.25*(2*rand.Float64()-1)) // #nosec G404 -- jitter only
		logger.Warn("kafka producer ping failed, retrying",
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", wait),
			slog.String("error", lastErr.Error()),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("kafka ping: %w", ctx.Err())
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("kafka producer ping failed after %d attempts: %w", attempts, lastErr)
}
