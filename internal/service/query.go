package service

import (
	"context"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/utafrali/SouvenirShop/internal/domain"
	"github.com/utafrali/SouvenirShop/internal/repository"
	apperrors "github.com/utafrali/SouvenirShop/pkg/errors"
	"github.com/utafrali/SouvenirShop/pkg/validator"
)

const engineQuery = "query"

// TopRatedQuery holds the parameters of ListTopRated. N is required; a
// non-positive N yields an empty result.
type TopRatedQuery struct {
	N *int `json:"n" validate:"required"`
}

// CountQuery holds the parameters of CountMatching. All three fields are
// required.
type CountQuery struct {
	Country   *string  `json:"country" validate:"required"`
	MinRating *float64 `json:"min_rating" validate:"required,finite"`
	MaxPrice  *float64 `json:"max_price" validate:"required,finite,gte=0"`
}

// QueryService answers read-only catalog queries.
type QueryService struct {
	repo   repository.SouvenirRepository
	logger *slog.Logger
}

// NewQueryService creates a new query service.
func NewQueryService(repo repository.SouvenirRepository, logger *slog.Logger) *QueryService {
	return &QueryService{repo: repo, logger: logger}
}

// ListAll returns every souvenir in the catalog.
func (s *QueryService) ListAll(ctx context.Context) (_ []domain.Souvenir, err error) {
	ctx, op := begin(ctx, engineQuery, "list_all")
	defer func() { op.end(err) }()

	souvenirs, err := s.repo.List(ctx, repository.SouvenirFilter{})
	if err != nil {
		return nil, classify("list souvenirs", err)
	}
	return souvenirs, nil
}

// ListCheaperThanOrEqual returns every souvenir with price <= price.
func (s *QueryService) ListCheaperThanOrEqual(ctx context.Context, price float64) (_ []domain.Souvenir, err error) {
	ctx, op := begin(ctx, engineQuery, "list_cheaper", attribute.Float64("price", price))
	defer func() { op.end(err) }()

	if math.IsNaN(price) || math.IsInf(price, 0) {
		return nil, apperrors.InvalidInput("price must be a finite number")
	}
	if price < 0 {
		return nil, apperrors.InvalidInput("price must not be negative")
	}

	souvenirs, err := s.repo.List(ctx, repository.SouvenirFilter{MaxPrice: &price})
	if err != nil {
		return nil, classify("list souvenirs by price", err)
	}
	return souvenirs, nil
}

// ListTopRated returns the q.N highest-rated souvenirs, best first. Souvenirs
// with equal ratings keep the store's order.
func (s *QueryService) ListTopRated(ctx context.Context, q TopRatedQuery) (_ []domain.Souvenir, err error) {
	ctx, op := begin(ctx, engineQuery, "list_top_rated")
	defer func() { op.end(err) }()

	if err := validator.Validate(q); err != nil {
		return nil, invalid(err)
	}
	if *q.N <= 0 {
		return []domain.Souvenir{}, nil
	}

	souvenirs, err := s.repo.List(ctx, repository.SouvenirFilter{
		OrderByRatingDesc: true,
		Limit:             *q.N,
	})
	if err != nil {
		return nil, classify("list top rated souvenirs", err)
	}
	return souvenirs, nil
}

// ListByTag returns the card projection of every souvenir tagged with tag.
// A missing or empty tag matches nothing.
func (s *QueryService) ListByTag(ctx context.Context, tag *string) (_ []domain.SouvenirCard, err error) {
	ctx, op := begin(ctx, engineQuery, "list_by_tag")
	defer func() { op.end(err) }()

	if tag == nil || *tag == "" {
		return []domain.SouvenirCard{}, nil
	}

	cards, err := s.repo.ListCardsByTag(ctx, *tag)
	if err != nil {
		return nil, classify("list souvenirs by tag", err)
	}
	return cards, nil
}

// CountMatching returns how many souvenirs come from q.Country with rating
// >= q.MinRating and price <= q.MaxPrice.
func (s *QueryService) CountMatching(ctx context.Context, q CountQuery) (_ int64, err error) {
	ctx, op := begin(ctx, engineQuery, "count_matching")
	defer func() { op.end(err) }()

	if err := validator.Validate(q); err != nil {
		return 0, invalid(err)
	}

	n, err := s.repo.Count(ctx, repository.CountFilter{
		Country:   *q.Country,
		MinRating: *q.MinRating,
		MaxPrice:  *q.MaxPrice,
	})
	if err != nil {
		return 0, classify("count souvenirs", err)
	}
	return n, nil
}

// Search returns every souvenir whose name contains substring, ignoring
// case. The empty substring matches every souvenir.
func (s *QueryService) Search(ctx context.Context, substring string) (_ []domain.Souvenir, err error) {
	ctx, op := begin(ctx, engineQuery, "search", attribute.String("substring", substring))
	defer func() { op.end(err) }()

	filter := repository.SouvenirFilter{}
	if substring != "" {
		filter.NameContains = &substring
	}

	souvenirs, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, classify("search souvenirs", err)
	}
	return souvenirs, nil
}

// ListDiscussedSince returns every souvenir whose first review was left at
// or after date. Souvenirs without reviews never match.
func (s *QueryService) ListDiscussedSince(ctx context.Context, date time.Time) (_ []domain.Souvenir, err error) {
	ctx, op := begin(ctx, engineQuery, "list_discussed_since")
	defer func() { op.end(err) }()

	if date.IsZero() {
		return nil, apperrors.InvalidInput("date is required")
	}

	souvenirs, err := s.repo.List(ctx, repository.SouvenirFilter{FirstReviewSince: &date})
	if err != nil {
		return nil, classify("list discussed souvenirs", err)
	}

	s.logger.DebugContext(ctx, "listed discussed souvenirs",
		slog.Time("since", date),
		slog.Int("count", len(souvenirs)),
	)
	return souvenirs, nil
}
