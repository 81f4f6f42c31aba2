package service

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/utafrali/SouvenirShop/internal/repository"
	apperrors "github.com/utafrali/SouvenirShop/pkg/errors"
)

const (
	engineMaintenance = "maintenance"

	// PhaseCartCascade names the purge step that removes deleted souvenirs
	// from carts.
	PhaseCartCascade = "cart_cascade"
)

// PurgeResult reports what PurgeOutOfStock removed.
type PurgeResult struct {
	DeletedCount int      `json:"deleted_count"`
	DeletedIDs   []string `json:"deleted_ids"`
	CartsUpdated int      `json:"carts_updated"`
}

// MaintenanceService runs bulk catalog cleanup.
type MaintenanceService struct {
	souvenirs repository.SouvenirRepository
	carts     repository.CartRepository
	publisher EventPublisher
	logger    *slog.Logger
}

// NewMaintenanceService creates a new maintenance service.
func NewMaintenanceService(
	souvenirs repository.SouvenirRepository,
	carts repository.CartRepository,
	publisher EventPublisher,
	logger *slog.Logger,
) *MaintenanceService {
	return &MaintenanceService{
		souvenirs: souvenirs,
		carts:     carts,
		publisher: publisher,
		logger:    logger,
	}
}

// PurgeOutOfStock deletes every souvenir with amount 0 and then removes the
// deleted souvenirs from every cart.
//
// If the deletion fails nothing was deleted and the store error is returned.
// If the cart cascade fails the souvenirs stay deleted: the result is still
// returned together with a PartialFailure error for phase cart_cascade, and
// ReconcileCarts can finish the cascade later.
func (s *MaintenanceService) PurgeOutOfStock(ctx context.Context) (_ *PurgeResult, err error) {
	ctx, op := begin(ctx, engineMaintenance, "purge_out_of_stock")
	defer func() { op.end(err) }()

	ids, err := s.souvenirs.DeleteOutOfStock(ctx)
	if err != nil {
		return nil, classify("delete out-of-stock souvenirs", err)
	}

	result := &PurgeResult{
		DeletedCount: len(ids),
		DeletedIDs:   ids,
	}
	PurgedSouvenirsTotal.Add(float64(len(ids)))

	if len(ids) == 0 {
		s.logger.InfoContext(ctx, "no out-of-stock souvenirs to purge")
		return result, nil
	}

	updated, cascadeErr := s.carts.RemoveSouvenirs(ctx, ids)
	result.CartsUpdated = updated
	CartsCascadedTotal.Add(float64(updated))

	if pubErr := s.publisher.PublishSouvenirsPurged(ctx, ids, updated, cascadeErr == nil); pubErr != nil {
		logPublishFailure(ctx, s.logger, "souvenir.purged", pubErr)
	}

	if cascadeErr != nil {
		s.logger.ErrorContext(ctx, "souvenirs deleted but cart cascade failed",
			slog.Int("deleted_count", result.DeletedCount),
			slog.Int("carts_updated", updated),
			slog.String("error", cascadeErr.Error()),
		)
		return result, apperrors.PartialFailure(PhaseCartCascade, classify("remove souvenirs from carts", cascadeErr))
	}

	s.logger.InfoContext(ctx, "purged out-of-stock souvenirs",
		slog.Int("deleted_count", result.DeletedCount),
		slog.Int("carts_updated", result.CartsUpdated),
	)
	return result, nil
}

// ReconcileCarts removes the given souvenirs from every cart. It is the
// compensating pass for a purge whose cart cascade failed, and is safe to run
// any number of times.
func (s *MaintenanceService) ReconcileCarts(ctx context.Context, ids []string) (_ int, err error) {
	ctx, op := begin(ctx, engineMaintenance, "reconcile_carts", attribute.Int("souvenir_count", len(ids)))
	defer func() { op.end(err) }()

	if len(ids) == 0 {
		return 0, nil
	}

	updated, err := s.carts.RemoveSouvenirs(ctx, ids)
	CartsCascadedTotal.Add(float64(updated))
	if err != nil {
		return updated, classify("remove souvenirs from carts", err)
	}

	if updated > 0 {
		if pubErr := s.publisher.PublishCartItemsRemoved(ctx, ids, updated); pubErr != nil {
			logPublishFailure(ctx, s.logger, "cart.items_removed", pubErr)
		}
	}

	s.logger.InfoContext(ctx, "reconciled carts",
		slog.Int("souvenir_count", len(ids)),
		slog.Int("carts_updated", updated),
	)
	return updated, nil
}
