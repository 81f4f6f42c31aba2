package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/utafrali/SouvenirShop/internal/event"
	pkgkafka "github.com/utafrali/SouvenirShop/pkg/kafka"
)

// Worker consumer settings.
const (
	ReconcilerGroupID    = "souvenir-cart-reconciler"
	idempotencyKeyPrefix = "souvenir:processed:"
)

// Worker finishes failed purge cascades from souvenir.purged events and,
// when scheduled, runs the out-of-stock purge periodically.
type Worker struct {
	app        *App
	consumer   *pkgkafka.Consumer
	httpServer *http.Server
	interval   time.Duration
}

// NewWorker builds the reconciliation consumer. Kafka must be enabled.
func NewWorker(a *App) (*Worker, error) {
	if !a.cfg.KafkaEnabled {
		return nil, errors.New("worker requires KAFKA_ENABLED")
	}

	var store pkgkafka.IdempotencyStore
	if client := a.RedisClient(); client != nil {
		store = pkgkafka.NewRedisIdempotencyStore(client, idempotencyKeyPrefix, a.cfg.EventDedupTTL())
	} else {
		store = pkgkafka.NewMemoryIdempotencyStore(a.cfg.EventDedupTTL())
	}

	consumer := event.NewConsumer(a.Maintenance, a.logger)
	kc := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers:   a.cfg.KafkaBrokers,
		GroupID:   ReconcilerGroupID,
		Topic:     event.TopicSouvenirsPurged,
		MinBytes:  1,
		MaxBytes:  10e6,
		EnableDLQ: true,
	}, pkgkafka.IdempotentHandler(store, consumer.HandleSouvenirsPurged, a.logger), a.logger)

	return &Worker{
		app:        a,
		consumer:   kc,
		httpServer: a.OpsServer(),
		interval:   a.cfg.PurgeInterval(),
	}, nil
}

// Run starts the ops server, the consumer and the purge schedule, then
// blocks until the context is canceled or a component fails.
func (w *Worker) Run(ctx context.Context) error {
	errCh := make(chan error, 2)
	logger := w.app.logger

	go func() {
		logger.Info("starting HTTP server", slog.String("addr", w.httpServer.Addr))
		if err := w.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	go func() {
		if err := w.consumer.Start(ctx); err != nil {
			errCh <- fmt.Errorf("souvenir purged consumer: %w", err)
		}
	}()

	if w.interval > 0 {
		go w.runScheduledPurge(ctx)
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case runErr = <-errCh:
	}

	return errors.Join(runErr, w.shutdown())
}

// runScheduledPurge periodically purges out-of-stock souvenirs. A partial
// failure is left to the consumer: the published event carries
// cascade_complete=false.
func (w *Worker) runScheduledPurge(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := w.app.Maintenance.PurgeOutOfStock(ctx)
			if err != nil {
				w.app.logger.Error("scheduled purge error", slog.String("error", err.Error()))
				continue
			}
			if result.DeletedCount > 0 {
				w.app.logger.Info("scheduled purge completed",
					slog.Int("deleted_count", result.DeletedCount),
					slog.Int("carts_updated", result.CartsUpdated),
				)
			}
		}
	}
}

// shutdown stops the components in order: HTTP server, consumer, then the
// shared connections.
func (w *Worker) shutdown() error {
	logger := w.app.logger
	logger.Info("shutting down worker...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := w.httpServer.Shutdown(httpCtx); err != nil {
		logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if err := w.consumer.Close(); err != nil {
		logger.Error("consumer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if err := w.app.Close(); err != nil {
		errs = append(errs, err)
	}

	logger.Info("worker shutdown complete")
	return errors.Join(errs...)
}
