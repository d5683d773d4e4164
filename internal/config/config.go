package config

import (
	"fmt"
	"slices"
	"time"

	pkgconfig "github.com/storefront/orderreview/pkg/config"
	"github.com/storefront/orderreview/pkg/database"
	"github.com/storefront/orderreview/pkg/tracing"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds all configuration for the order/review service.
type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"order-review-service"`
	Version     string `env:"SERVICE_VERSION" envDefault:"dev"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort        int           `env:"HTTP_PORT" envDefault:"8004"`
	RequestTimeout  time.Duration `env:"HTTP_REQUEST_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	CORSOrigins     []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	PprofCIDRs      []string      `env:"PPROF_ALLOWED_CIDRS" envSeparator:","`

	// Identity. Without a secret the gateway headers are trusted as-is.
	JWTSecret string `env:"JWT_SECRET"`

	// Write-route rate limiting per client IP. Zero disables it.
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"40"`

	// Storage
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"postgres"`

	// PostgreSQL
	PostgresHost     string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort     int           `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser     string        `env:"POSTGRES_USER" envDefault:"ecommerce"`
	PostgresPass     string        `env:"POSTGRES_PASSWORD" envDefault:"ecommerce_secret"`
	PostgresDB       string        `env:"ORDER_DB_NAME" envDefault:"order_db"`
	PostgresSSL      string        `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	PostgresMaxConns int32         `env:"POSTGRES_MAX_CONNS" envDefault:"20"`
	PostgresMinConns int32         `env:"POSTGRES_MIN_CONNS" envDefault:"2"`
	SlowQuery        time.Duration `env:"POSTGRES_SLOW_QUERY" envDefault:"200ms"`

	// Redis product cache
	RedisEnabled        bool          `env:"REDIS_ENABLED" envDefault:"false"`
	RedisAddr           string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword       string        `env:"REDIS_PASSWORD"`
	RedisDB             int           `env:"REDIS_DB" envDefault:"0"`
	CacheTTL            time.Duration `env:"PRODUCT_CACHE_TTL" envDefault:"5m"`
	CacheBreakerTimeout time.Duration `env:"CACHE_BREAKER_TIMEOUT" envDefault:"30s"`
	CacheInvalidateHold time.Duration `env:"PRODUCT_CACHE_INVALIDATION_HOLD" envDefault:"5s"`

	// Kafka
	KafkaEnabled        bool          `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers        []string      `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaGroupID        string        `env:"KAFKA_GROUP_ID" envDefault:"order-review-service"`
	KafkaIdempotencyTTL time.Duration `env:"KAFKA_IDEMPOTENCY_TTL" envDefault:"24h"`

	// OpenTelemetry
	OTelEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTelSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load order-review config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if !slices.Contains([]string{DriverPostgres, DriverMemory}, c.StorageDriver) {
		return fmt.Errorf("invalid storage driver %q: want %s or %s", c.StorageDriver, DriverPostgres, DriverMemory)
	}
	if c.StorageDriver == DriverPostgres && (c.PostgresPort < 1 || c.PostgresPort > 65535) {
		return fmt.Errorf("invalid PostgreSQL port: %d", c.PostgresPort)
	}
	if c.PostgresMinConns > c.PostgresMaxConns {
		return fmt.Errorf("POSTGRES_MIN_CONNS (%d) exceeds POSTGRES_MAX_CONNS (%d)", c.PostgresMinConns, c.PostgresMaxConns)
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when Kafka is enabled")
	}
	if c.RedisEnabled && c.CacheTTL <= 0 {
		return fmt.Errorf("invalid product cache TTL: %s", c.CacheTTL)
	}
	if c.RedisEnabled && c.CacheBreakerTimeout <= 0 {
		return fmt.Errorf("invalid cache breaker timeout: %s", c.CacheBreakerTimeout)
	}
	if c.CacheInvalidateHold < 0 {
		return fmt.Errorf("invalid cache invalidation hold: %s", c.CacheInvalidateHold)
	}
	if c.OTelSampleRate < 0 || c.OTelSampleRate > 1 {
		return fmt.Errorf("invalid OTel sample rate: %v", c.OTelSampleRate)
	}
	return nil
}

// Postgres returns the pool settings.
func (c *Config) Postgres() database.PostgresConfig {
	return database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		MaxConns:        c.PostgresMaxConns,
		MinConns:        c.PostgresMinConns,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// Redis returns the cache connection settings.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

// Tracing returns the trace export settings.
func (c *Config) Tracing() tracing.Config {
	return tracing.Config{
		ServiceName:    c.ServiceName,
		ServiceVersion: c.Version,
		Environment:    c.Environment,
		OTLPEndpoint:   c.OTelEndpoint,
		SampleRate:     c.OTelSampleRate,
		Enabled:        c.OTelEnabled,
	}
}
