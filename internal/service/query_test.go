package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/SouvenirShop/internal/domain"
	"github.com/utafrali/SouvenirShop/internal/repository"
	apperrors "github.com/utafrali/SouvenirShop/pkg/errors"
)

func newTestQueryService() (*QueryService, *mockSouvenirRepository) {
	repo := new(mockSouvenirRepository)
	return NewQueryService(repo, newTestLogger()), repo
}

func sampleSouvenirs() []domain.Souvenir {
	return []domain.Souvenir{
		{ID: "sv-1", Name: "Matryoshka", Price: 50, Amount: 3, Country: "Russia", Rating: 4.5},
		{ID: "sv-2", Name: "Eiffel Tower Magnet", Price: 5, Amount: 0, Country: "France", Rating: 3},
	}
}

// ============================================================================
// ListAll Tests
// ============================================================================

func TestListAll_Success(t *testing.T) {
	svc, repo := newTestQueryService()
	ctx := context.Background()

	repo.On("List", mock.Anything, repository.SouvenirFilter{}).Return(sampleSouvenirs(), nil)

	result, err := svc.ListAll(ctx)

	require.NoError(t, err)
	assert.Len(t, result, 2)
	repo.AssertExpectations(t)
}

func TestListAll_StoreTimeoutIsUnavailable(t *testing.T) {
	svc, repo := newTestQueryService()
	ctx := context.Background()

	repo.On("List", mock.Anything, repository.SouvenirFilter{}).Return(nil, context.DeadlineExceeded)

	result, err := svc.ListAll(ctx)

	assert.Nil(t, result)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrServiceUnavail))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

// ============================================================================
// ListCheaperThanOrEqual Tests
// ============================================================================

func TestListCheaperThanOrEqual_PassesBound(t *testing.T) {
	svc, repo := newTestQueryService()
	ctx := context.Background()

	repo.On("List", mock.Anything, mock.MatchedBy(func(f repository.SouvenirFilter) bool {
		return f.MaxPrice != nil && *f.MaxPrice == 10 && f.NameContains == nil && !f.OrderByRatingDesc
	})).Return([]domain.Souvenir{sampleSouvenirs()[1]}, nil)

	result, err := svc.ListCheaperThanOrEqual(ctx, 10)

	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "sv-2", result[0].ID)
	repo.AssertExpectations(t)
}

func TestListCheaperThanOrEqual_InvalidPrice(t *testing.T) {
	tests := []struct {
		name  string
		price float64
	}{
		{"negative", -1},
		{"nan", math.NaN()},
		{"positive infinity", math.Inf(1)},
		{"negative infinity", math.Inf(-1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo := newTestQueryService()

			result, err := svc.ListCheaperThanOrEqual(context.Background(), tt.price)

			assert.Nil(t, result)
			assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
			repo.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
		})
	}
}

// ============================================================================
// ListTopRated Tests
// ============================================================================

func TestListTopRated_Success(t *testing.T) {
	svc, repo := newTestQueryService()
	ctx := context.Background()

	repo.On("List", mock.Anything, repository.SouvenirFilter{OrderByRatingDesc: true, Limit: 2}).
		Return(sampleSouvenirs(), nil)

	result, err := svc.ListTopRated(ctx, TopRatedQuery{N: intPtr(2)})

	require.NoError(t, err)
	assert.Len(t, result, 2)
	repo.AssertExpectations(t)
}

func TestListTopRated_NonPositiveIsEmpty(t *testing.T) {
	for _, n := range []int{0, -3} {
		svc, repo := newTestQueryService()

		result, err := svc.ListTopRated(context.Background(), TopRatedQuery{N: intPtr(n)})

		require.NoError(t, err)
		assert.NotNil(t, result)
		assert.Empty(t, result)
		repo.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
	}
}

func TestListTopRated_MissingN(t *testing.T) {
	svc, _ := newTestQueryService()

	_, err := svc.ListTopRated(context.Background(), TopRatedQuery{})

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
	assert.Contains(t, err.Error(), "'n'")
}

// ============================================================================
// ListByTag Tests
// ============================================================================

func TestListByTag_Success(t *testing.T) {
	svc, repo := newTestQueryService()
	ctx := context.Background()
	cards := []domain.SouvenirCard{{Name: "Matryoshka", Image: "m.png", Price: 50}}

	repo.On("ListCardsByTag", mock.Anything, "wood").Return(cards, nil)

	result, err := svc.ListByTag(ctx, strPtr("wood"))

	require.NoError(t, err)
	assert.Equal(t, cards, result)
	repo.AssertExpectations(t)
}

func TestListByTag_MissingOrEmptyTag(t *testing.T) {
	for name, tag := range map[string]*string{"nil": nil, "empty": strPtr("")} {
		t.Run(name, func(t *testing.T) {
			svc, repo := newTestQueryService()

			result, err := svc.ListByTag(context.Background(), tag)

			require.NoError(t, err)
			assert.NotNil(t, result)
			assert.Empty(t, result)
			repo.AssertNotCalled(t, "ListCardsByTag", mock.Anything, mock.Anything)
		})
	}
}

// ============================================================================
// CountMatching Tests
// ============================================================================

func TestCountMatching_Success(t *testing.T) {
	svc, repo := newTestQueryService()
	ctx := context.Background()

	repo.On("Count", mock.Anything, repository.CountFilter{Country: "Russia", MinRating: 4, MaxPrice: 100}).
		Return(int64(7), nil)

	n, err := svc.CountMatching(ctx, CountQuery{
		Country:   strPtr("Russia"),
		MinRating: floatPtr(4),
		MaxPrice:  floatPtr(100),
	})

	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	repo.AssertExpectations(t)
}

func TestCountMatching_MissingFields(t *testing.T) {
	tests := []struct {
		name  string
		query CountQuery
		field string
	}{
		{"country", CountQuery{MinRating: floatPtr(1), MaxPrice: floatPtr(1)}, "country"},
		{"min rating", CountQuery{Country: strPtr("x"), MaxPrice: floatPtr(1)}, "min_rating"},
		{"max price", CountQuery{Country: strPtr("x"), MinRating: floatPtr(1)}, "max_price"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo := newTestQueryService()

			_, err := svc.CountMatching(context.Background(), tt.query)

			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
			assert.Contains(t, err.Error(), tt.field)
			repo.AssertNotCalled(t, "Count", mock.Anything, mock.Anything)
		})
	}
}

func TestCountMatching_NonFiniteBound(t *testing.T) {
	svc, _ := newTestQueryService()

	_, err := svc.CountMatching(context.Background(), CountQuery{
		Country:   strPtr("x"),
		MinRating: floatPtr(math.NaN()),
		MaxPrice:  floatPtr(10),
	})

	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

// ============================================================================
// Search Tests
// ============================================================================

func TestSearch_PassesSubstring(t *testing.T) {
	svc, repo := newTestQueryService()
	ctx := context.Background()

	repo.On("List", mock.Anything, mock.MatchedBy(func(f repository.SouvenirFilter) bool {
		return f.NameContains != nil && *f.NameContains == "TOWER"
	})).Return([]domain.Souvenir{sampleSouvenirs()[1]}, nil)

	result, err := svc.Search(ctx, "TOWER")

	require.NoError(t, err)
	assert.Len(t, result, 1)
	repo.AssertExpectations(t)
}

func TestSearch_EmptyMatchesAll(t *testing.T) {
	svc, repo := newTestQueryService()
	ctx := context.Background()

	repo.On("List", mock.Anything, repository.SouvenirFilter{}).Return(sampleSouvenirs(), nil)

	result, err := svc.Search(ctx, "")

	require.NoError(t, err)
	assert.Len(t, result, 2)
}

// ============================================================================
// ListDiscussedSince Tests
// ============================================================================

func TestListDiscussedSince_PassesDate(t *testing.T) {
	svc, repo := newTestQueryService()
	ctx := context.Background()
	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	repo.On("List", mock.Anything, mock.MatchedBy(func(f repository.SouvenirFilter) bool {
		return f.FirstReviewSince != nil && f.FirstReviewSince.Equal(since)
	})).Return([]domain.Souvenir{}, nil)

	result, err := svc.ListDiscussedSince(ctx, since)

	require.NoError(t, err)
	assert.Empty(t, result)
	repo.AssertExpectations(t)
}

func TestListDiscussedSince_ZeroDate(t *testing.T) {
	svc, repo := newTestQueryService()

	_, err := svc.ListDiscussedSince(context.Background(), time.Time{})

	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
	repo.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
}
