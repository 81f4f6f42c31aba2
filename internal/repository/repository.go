package repository

import (
	"context"
	"time"

	"github.com/utafrali/SouvenirShop/internal/domain"
)

// SouvenirFilter defines filter criteria for listing souvenirs. Nil fields
// do not constrain the result.
type SouvenirFilter struct {
	// MaxPrice keeps souvenirs with price <= *MaxPrice.
	MaxPrice *float64
	// NameContains keeps souvenirs whose name contains the substring,
	// case-insensitively. The substring is matched literally.
	NameContains *string
	// FirstReviewSince keeps souvenirs whose earliest review is dated at or
	// after the given instant. Souvenirs without reviews never match.
	FirstReviewSince *time.Time
	// OrderByRatingDesc sorts by rating, highest first. Ties keep the store's
	// natural order.
	OrderByRatingDesc bool
	// Limit caps the number of results; 0 means no cap.
	Limit int
}

// CountFilter selects souvenirs from Country with rating >= MinRating and
// price <= MaxPrice.
type CountFilter struct {
	Country   string
	MinRating float64
	MaxPrice  float64
}

// SouvenirRepository defines the interface for catalog persistence operations.
type SouvenirRepository interface {
	// Create inserts a souvenir and assigns its ID. Version starts at 0.
	Create(ctx context.Context, s *domain.Souvenir) error

	// GetByID retrieves a souvenir by its identifier. Returns a NotFound
	// error when no souvenir has that ID.
	GetByID(ctx context.Context, id string) (*domain.Souvenir, error)

	// GetByIDs retrieves every souvenir whose ID is in ids in one round trip.
	// Unknown IDs are skipped silently.
	GetByIDs(ctx context.Context, ids []string) ([]domain.Souvenir, error)

	// List returns souvenirs matching the filter.
	List(ctx context.Context, filter SouvenirFilter) ([]domain.Souvenir, error)

	// ListCardsByTag returns the card projection of every souvenir tagged
	// with tag (exact membership).
	ListCardsByTag(ctx context.Context, tag string) ([]domain.SouvenirCard, error)

	// Count returns the number of souvenirs matching the filter.
	Count(ctx context.Context, filter CountFilter) (int64, error)

	// UpdateReviews persists s.Reviews and s.Rating only if the stored
	// version still equals expectedVersion, then bumps the version. Returns
	// a Conflict error when the version moved on or the souvenir is gone.
	UpdateReviews(ctx context.Context, s *domain.Souvenir, expectedVersion int) error

	// DeleteOutOfStock removes every souvenir with amount == 0 and returns
	// the removed IDs.
	DeleteOutOfStock(ctx context.Context) ([]string, error)
}

// CartRepository defines the interface for cart persistence operations.
type CartRepository interface {
	// Get retrieves the cart owned by login. Returns a NotFound error when the
	// login has no cart.
	Get(ctx context.Context, login string) (*domain.Cart, error)

	// Save validates and stores the cart, replacing any previous cart of the
	// same login, and bumps its version.
	Save(ctx context.Context, cart *domain.Cart) error

	// RemoveSouvenirs deletes every item referencing one of ids from every
	// cart and returns the number of carts changed.
	RemoveSouvenirs(ctx context.Context, ids []string) (int, error)
}
