package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/utafrali/SouvenirShop/internal/domain"
	"github.com/utafrali/SouvenirShop/internal/repository"
	apperrors "github.com/utafrali/SouvenirShop/pkg/errors"
	"github.com/utafrali/SouvenirShop/pkg/logger"
	"github.com/utafrali/SouvenirShop/pkg/validator"
)

const engineRating = "rating"

// AddReviewInput holds the parameters for adding a review.
type AddReviewInput struct {
	Login  string  `json:"login" validate:"required"`
	Rating float64 `json:"rating" validate:"finite,gte=1,lte=5"`
	Text   string  `json:"text"`
}

// RatingService appends reviews and keeps the derived rating in sync.
type RatingService struct {
	repo      repository.SouvenirRepository
	publisher EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewRatingService creates a new rating service.
func NewRatingService(repo repository.SouvenirRepository, publisher EventPublisher, logger *slog.Logger) *RatingService {
	return &RatingService{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// AddReview appends an unapproved review dated now to souvenirID and
// recomputes the rating as the mean over all reviews. The write succeeds only
// if nobody else changed the souvenir since it was read; otherwise a Conflict
// error is returned and the caller may retry.
func (s *RatingService) AddReview(ctx context.Context, souvenirID string, input AddReviewInput) (_ *domain.Souvenir, err error) {
	ctx = logger.WithLogin(ctx, input.Login)
	ctx, op := begin(ctx, engineRating, "add_review", attribute.String("souvenir_id", souvenirID))
	defer func() { op.end(err) }()

	if souvenirID == "" {
		return nil, apperrors.InvalidInput("souvenir id is required")
	}
	if err := validator.Validate(input); err != nil {
		return nil, invalid(err)
	}

	souvenir, err := s.repo.GetByID(ctx, souvenirID)
	if err != nil {
		return nil, classify("get souvenir", err)
	}

	review := domain.Review{
		Login:      input.Login,
		Date:       s.now(),
		Text:       input.Text,
		Rating:     input.Rating,
		IsApproved: false,
	}
	expectedVersion := souvenir.Version
	souvenir.AppendReview(review)

	if err := s.repo.UpdateReviews(ctx, souvenir, expectedVersion); err != nil {
		return nil, classify("update souvenir reviews", err)
	}

	s.logger.InfoContext(ctx, "review added",
		slog.String("souvenir_id", souvenir.ID),
		slog.String("login", review.Login),
		slog.Float64("review_rating", review.Rating),
		slog.Float64("rating", souvenir.Rating),
		slog.Int("reviews", len(souvenir.Reviews)),
	)

	if err := s.publisher.PublishSouvenirReviewed(ctx, souvenir, review); err != nil {
		logPublishFailure(ctx, s.logger, "souvenir.reviewed", err)
	}

	return souvenir, nil
}
