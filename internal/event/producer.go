package event

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/utafrali/SouvenirShop/internal/domain"
	pkgkafka "github.com/utafrali/SouvenirShop/pkg/kafka"
)

// Kafka topic constants for catalog domain events.
const (
	TopicSouvenirReviewed = "souvenirshop.souvenir.reviewed"
	TopicSouvenirsPurged  = "souvenirshop.souvenir.purged"
	TopicCartItemsRemoved = "souvenirshop.cart.items_removed"
)

// Aggregate type constants.
const (
	AggregateTypeSouvenir = "souvenir"
	AggregateTypeCatalog  = "catalog"
)

// SourceSouvenirEngine identifies events originating from the catalog engines.
const SourceSouvenirEngine = "souvenir-engine"

// SouvenirReviewedData is the payload for a souvenir.reviewed event.
type SouvenirReviewedData struct {
	SouvenirID   string  `json:"souvenir_id"`
	Login        string  `json:"login"`
	ReviewRating float64 `json:"review_rating"`
	Rating       float64 `json:"rating"`
	ReviewCount  int     `json:"review_count"`
	Version      int     `json:"version"`
}

// SouvenirsPurgedData is the payload for a souvenir.purged event.
// CascadeComplete is false when the cart cascade failed and carts may still
// reference DeletedIDs.
type SouvenirsPurgedData struct {
	DeletedIDs      []string `json:"deleted_ids"`
	CartsUpdated    int      `json:"carts_updated"`
	CascadeComplete bool     `json:"cascade_complete"`
}

// CartItemsRemovedData is the payload for a cart.items_removed event.
type CartItemsRemovedData struct {
	SouvenirIDs  []string `json:"souvenir_ids"`
	CartsUpdated int      `json:"carts_updated"`
}

// publisher is the subset of *pkgkafka.Producer the event producer needs.
type publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes catalog domain events to Kafka.
type Producer struct {
	kafka  publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer for the catalog engines.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishSouvenirReviewed publishes a souvenir.reviewed event.
func (p *Producer) PublishSouvenirReviewed(ctx context.Context, s *domain.Souvenir, review domain.Review) error {
	data := SouvenirReviewedData{
		SouvenirID:   s.ID,
		Login:        review.Login,
		ReviewRating: review.Rating,
		Rating:       s.Rating,
		ReviewCount:  len(s.Reviews),
		Version:      s.Version,
	}

	event, err := pkgkafka.NewEvent(TopicSouvenirReviewed, s.ID, AggregateTypeSouvenir, SourceSouvenirEngine, data)
	if err != nil {
		return fmt.Errorf("create souvenir.reviewed event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicSouvenirReviewed, event); err != nil {
		return fmt.Errorf("publish souvenir.reviewed event: %w", err)
	}

	p.logger.DebugContext(ctx, "published souvenir.reviewed event",
		slog.String("souvenir_id", s.ID),
		slog.Float64("rating", s.Rating),
	)
	return nil
}

// PublishSouvenirsPurged publishes a souvenir.purged event.
func (p *Producer) PublishSouvenirsPurged(ctx context.Context, ids []string, cartsUpdated int, cascadeComplete bool) error {
	data := SouvenirsPurgedData{
		DeletedIDs:      ids,
		CartsUpdated:    cartsUpdated,
		CascadeComplete: cascadeComplete,
	}

	event, err := pkgkafka.NewEvent(TopicSouvenirsPurged, batchKey(ids), AggregateTypeCatalog, SourceSouvenirEngine, data)
	if err != nil {
		return fmt.Errorf("create souvenir.purged event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicSouvenirsPurged, event); err != nil {
		return fmt.Errorf("publish souvenir.purged event: %w", err)
	}

	p.logger.DebugContext(ctx, "published souvenir.purged event",
		slog.Int("deleted_count", len(ids)),
		slog.Bool("cascade_complete", cascadeComplete),
	)
	return nil
}

// PublishCartItemsRemoved publishes a cart.items_removed event.
func (p *Producer) PublishCartItemsRemoved(ctx context.Context, ids []string, cartsUpdated int) error {
	data := CartItemsRemovedData{
		SouvenirIDs:  ids,
		CartsUpdated: cartsUpdated,
	}

	event, err := pkgkafka.NewEvent(TopicCartItemsRemoved, batchKey(ids), AggregateTypeCatalog, SourceSouvenirEngine, data)
	if err != nil {
		return fmt.Errorf("create cart.items_removed event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCartItemsRemoved, event); err != nil {
		return fmt.Errorf("publish cart.items_removed event: %w", err)
	}

	p.logger.DebugContext(ctx, "published cart.items_removed event",
		slog.Int("souvenir_count", len(ids)),
		slog.Int("carts_updated", cartsUpdated),
	)
	return nil
}

// batchKey is the partition key for events about a set of souvenirs. The
// same set always lands on the same partition.
func batchKey(ids []string) string {
	return strings.Join(ids, ",")
}

// NoopPublisher drops every event. It is used when no Kafka brokers are
// configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishSouvenirReviewed(context.Context, *domain.Souvenir, domain.Review) error {
	return nil
}

func (NoopPublisher) PublishSouvenirsPurged(context.Context, []string, int, bool) error { return nil }

func (NoopPublisher) PublishCartItemsRemoved(context.Context, []string, int) error { return nil }
