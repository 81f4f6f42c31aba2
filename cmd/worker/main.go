package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/utafrali/SouvenirShop/internal/app"
	"github.com/utafrali/SouvenirShop/internal/config"
	"github.com/utafrali/SouvenirShop/pkg/logger"
)

const serviceName = "souvenir-worker"

func main() {
	// Load configuration from environment variables.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log := logger.New(serviceName, cfg.LogLevel)
	log.Info("starting souvenir worker",
		slog.String("environment", cfg.Environment),
		slog.String("catalog_store", cfg.CatalogStore),
		slog.String("cart_store", cfg.CartStore),
		slog.Int("http_port", cfg.HTTPPort),
	)

	// Create a context that is canceled on SIGINT or SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	application, err := app.New(ctx, cfg, log, serviceName)
	if err != nil {
		log.Error("failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	worker, err := app.NewWorker(application)
	if err != nil {
		_ = application.Close()
		log.Error("failed to initialize worker", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Run the worker. This blocks until shutdown.
	if err := worker.Run(ctx); err != nil {
		log.Error("worker error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log.Info("souvenir worker stopped")
}
