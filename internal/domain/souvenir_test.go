package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// ============================================================================
// MeanRating Tests
// ============================================================================

func TestMeanRating_Empty(t *testing.T) {
	assert.Equal(t, 0.0, MeanRating(nil))
	assert.Equal(t, 0.0, MeanRating([]Review{}))
}

func TestMeanRating_Single(t *testing.T) {
	assert.Equal(t, 4.0, MeanRating([]Review{{Rating: 4}}))
}

func TestMeanRating_Multiple(t *testing.T) {
	reviews := []Review{{Rating: 5}, {Rating: 4}, {Rating: 3}}
	assert.Equal(t, 4.0, MeanRating(reviews))
}

func TestMeanRating_Fractional(t *testing.T) {
	reviews := []Review{{Rating: 5}, {Rating: 4}}
	assert.InDelta(t, 4.5, MeanRating(reviews), 1e-9)
}

// ============================================================================
// Souvenir Tests
// ============================================================================

func TestAppendReview_RecomputesFromWholeSequence(t *testing.T) {
	s := &Souvenir{
		Reviews: []Review{{Rating: 5}, {Rating: 4}, {Rating: 3}},
		Rating:  1, // stale value must not leak into the recomputation
	}

	s.AppendReview(Review{Login: "alice", Rating: 4})

	assert.Len(t, s.Reviews, 4)
	assert.Equal(t, "alice", s.Reviews[3].Login)
	assert.Equal(t, 4.0, s.Rating)
}

func TestAppendReview_KeepsOrder(t *testing.T) {
	first := time.Date(2018, 3, 1, 0, 0, 0, 0, time.UTC)
	s := &Souvenir{}
	s.AppendReview(Review{Login: "a", Date: first, Rating: 2})
	s.AppendReview(Review{Login: "b", Date: first.Add(time.Hour), Rating: 4})

	got, ok := s.FirstReviewDate()
	assert.True(t, ok)
	assert.Equal(t, first, got)
	assert.Equal(t, 3.0, s.Rating)
}

func TestFirstReviewDate_NoReviews(t *testing.T) {
	s := &Souvenir{}
	_, ok := s.FirstReviewDate()
	assert.False(t, ok)
}

func TestCard(t *testing.T) {
	s := &Souvenir{ID: "s1", Name: "Магнит", Image: "magnet.png", Price: 150, Amount: 3, Tags: []string{"magnet"}}
	assert.Equal(t, SouvenirCard{Name: "Магнит", Image: "magnet.png", Price: 150}, s.Card())
}

func TestInStock(t *testing.T) {
	assert.False(t, (&Souvenir{Amount: 0}).InStock())
	assert.True(t, (&Souvenir{Amount: 1}).InStock())
}

func TestValidReviewRating(t *testing.T) {
	tests := []struct {
		rating float64
		want   bool
	}{
		{0, false},
		{0.99, false},
		{1, true},
		{3.5, true},
		{5, true},
		{5.01, false},
		{-1, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidReviewRating(tt.rating), "rating %v", tt.rating)
	}
}
