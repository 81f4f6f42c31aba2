package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	pkgkafka "github.com/utafrali/SouvenirShop/pkg/kafka"
)

// CartReconciler defines the interface required by the event consumer.
type CartReconciler interface {
	ReconcileCarts(ctx context.Context, ids []string) (int, error)
}

// Consumer processes catalog events that need follow-up work.
type Consumer struct {
	logger     *slog.Logger
	reconciler CartReconciler
}

// NewConsumer creates a new event consumer.
func NewConsumer(reconciler CartReconciler, logger *slog.Logger) *Consumer {
	return &Consumer{
		reconciler: reconciler,
		logger:     logger,
	}
}

// HandleSouvenirsPurged finishes the cart cascade of a purge whose cascade
// failed. Events for purges that completed their cascade are acknowledged
// without touching the cart store.
func (c *Consumer) HandleSouvenirsPurged(ctx context.Context, event *pkgkafka.Event) error {
	var data SouvenirsPurgedData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("unmarshal souvenir.purged data: %w", err)
	}

	if data.CascadeComplete || len(data.DeletedIDs) == 0 {
		c.logger.DebugContext(ctx, "purge cascade already complete",
			slog.String("event_id", event.EventID),
			slog.Int("deleted_count", len(data.DeletedIDs)),
		)
		return nil
	}

	c.logger.InfoContext(ctx, "processing souvenir.purged event with incomplete cascade",
		slog.String("event_id", event.EventID),
		slog.Int("deleted_count", len(data.DeletedIDs)),
	)

	updated, err := c.reconciler.ReconcileCarts(ctx, data.DeletedIDs)
	if err != nil {
		return fmt.Errorf("reconcile carts for %d purged souvenirs: %w", len(data.DeletedIDs), err)
	}

	c.logger.InfoContext(ctx, "carts reconciled after purge",
		slog.Int("deleted_count", len(data.DeletedIDs)),
		slog.Int("carts_updated", updated),
	)
	return nil
}
