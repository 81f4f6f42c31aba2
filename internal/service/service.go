// Package service implements the catalog engines: queries, ratings, cart
// pricing and maintenance. Engines hold no mutable state of their own; every
// operation is a sequence of store calls.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/SouvenirShop/internal/domain"
	"github.com/utafrali/SouvenirShop/pkg/database"
	apperrors "github.com/utafrali/SouvenirShop/pkg/errors"
	"github.com/utafrali/SouvenirShop/pkg/logger"
	"github.com/utafrali/SouvenirShop/pkg/tracing"
	"github.com/utafrali/SouvenirShop/pkg/validator"
)

const tracerName = "github.com/utafrali/SouvenirShop/internal/service"

// EventPublisher publishes domain events. Publishing is best-effort: engines
// log a failed publish and still return their result.
type EventPublisher interface {
	PublishSouvenirReviewed(ctx context.Context, s *domain.Souvenir, review domain.Review) error
	PublishSouvenirsPurged(ctx context.Context, ids []string, cartsUpdated int, cascadeComplete bool) error
	PublishCartItemsRemoved(ctx context.Context, ids []string, cartsUpdated int) error
}

// classify maps a store error onto the error kinds callers can rely on.
// Errors that already carry a kind pass through; timeouts and connection
// failures become Unavailable; anything else is wrapped with operation.
func classify(operation string, err error) error {
	switch {
	case err == nil:
		return nil
	case apperrors.IsKnown(err):
		return err
	case database.IsUnavailable(err):
		return apperrors.Unavailable(operation, err)
	default:
		return fmt.Errorf("%s: %w", operation, err)
	}
}

// invalid converts a validator error into an InvalidInput error.
func invalid(err error) error {
	var ve *validator.ValidationError
	if errors.As(err, &ve) {
		return apperrors.InvalidInput(ve.Error())
	}
	return apperrors.InvalidInput(err.Error())
}

// operation is the per-call bookkeeping shared by every engine method: a
// span, a logger scoped to the operation, and the duration/result metrics.
type operation struct {
	engine string
	name   string
	start  time.Time
	span   trace.Span
}

func begin(ctx context.Context, engine, name string, attrs ...attribute.KeyValue) (context.Context, *operation) {
	ctx = logger.WithOperation(ctx, engine+"."+name)
	ctx, span := tracing.StartSpan(ctx, tracerName, engine+"."+name, attrs...)
	return ctx, &operation{engine: engine, name: name, start: time.Now(), span: span}
}

func (o *operation) end(err error) {
	observe(o.engine, o.name, o.start, err)
	tracing.EndSpan(o.span, err)
}

func logPublishFailure(ctx context.Context, l *slog.Logger, event string, err error) {
	l.WarnContext(ctx, "failed to publish domain event",
		slog.String("event", event),
		slog.String("error", err.Error()),
	)
}
