// Command purge deletes every out-of-stock souvenir and removes it from all
// carts. It exits 2 when the souvenirs were deleted but the cart cascade
// failed; the published event lets the worker finish the cascade.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/utafrali/SouvenirShop/internal/app"
	"github.com/utafrali/SouvenirShop/internal/config"
	apperrors "github.com/utafrali/SouvenirShop/pkg/errors"
	"github.com/utafrali/SouvenirShop/pkg/logger"
)

const serviceName = "souvenir-purge"

const (
	exitOK = iota
	exitFailure
	exitPartial
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		return exitFailure
	}

	log := logger.New(serviceName, cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	application, err := app.New(ctx, cfg, log, serviceName)
	if err != nil {
		log.Error("failed to initialize application", slog.String("error", err.Error()))
		return exitFailure
	}
	defer func() {
		if err := application.Close(); err != nil {
			log.Error("shutdown error", slog.String("error", err.Error()))
		}
	}()

	result, err := application.Maintenance.PurgeOutOfStock(ctx)
	if result != nil {
		_ = json.NewEncoder(os.Stdout).Encode(result)
	}
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, apperrors.ErrPartialFailure):
		log.Error("purge partially failed", slog.String("error", err.Error()))
		return exitPartial
	default:
		log.Error("purge failed", slog.String("error", err.Error()))
		return exitFailure
	}
}
