package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/storefront/orderreview/internal/app"
	"github.com/storefront/orderreview/internal/config"
	"github.com/storefront/orderreview/pkg/logger"
)

func main() {
	// Load configuration from environment variables.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log := logger.New(cfg.ServiceName, cfg.LogLevel)
	slog.SetDefault(log)
	log.Info("starting order-review service",
		slog.String("environment", cfg.Environment),
		slog.String("storage_driver", cfg.StorageDriver),
		slog.Int("http_port", cfg.HTTPPort),
		slog.Bool("kafka_enabled", cfg.KafkaEnabled),
		slog.Bool("redis_enabled", cfg.RedisEnabled),
	)

	application, err := app.NewApp(cfg, log)
	if err != nil {
		log.Error("failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Create a context that is canceled on SIGINT or SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := application.Run(ctx); err != nil {
		log.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log.Info("order-review service stopped")
}
