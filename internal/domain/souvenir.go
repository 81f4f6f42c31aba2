package domain

import "time"

// Bounds for a single review rating.
const (
	MinReviewRating = 1.0
	MaxReviewRating = 5.0
)

// Souvenir is a catalog item. Rating is derived from Reviews and must equal
// their mean (0 when there are none). Version is bumped on every review write.
type Souvenir struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Image    string   `json:"image"`
	Price    float64  `json:"price"`
	Amount   int      `json:"amount"`
	Country  string   `json:"country"`
	Rating   float64  `json:"rating"`
	IsRecent bool     `json:"is_recent"`
	Tags     []string `json:"tags"`
	Reviews  []Review `json:"reviews"`
	Version  int      `json:"version"`
}

// Review is a single customer review. Reviews are append-only, so the slice
// order is chronological and Reviews[0] is the earliest one.
type Review struct {
	Login      string    `json:"login"`
	Date       time.Time `json:"date"`
	Text       string    `json:"text"`
	Rating     float64   `json:"rating"`
	IsApproved bool      `json:"is_approved"`
}

// SouvenirCard is the tag-listing projection of a souvenir.
type SouvenirCard struct {
	Name  string  `json:"name"`
	Image string  `json:"image"`
	Price float64 `json:"price"`
}

// Card returns the tag-listing projection of s.
func (s *Souvenir) Card() SouvenirCard {
	return SouvenirCard{Name: s.Name, Image: s.Image, Price: s.Price}
}

// InStock reports whether at least one unit is available.
func (s *Souvenir) InStock() bool {
	return s.Amount > 0
}

// FirstReviewDate returns the date of the earliest review and false when the
// souvenir has no reviews.
func (s *Souvenir) FirstReviewDate() (time.Time, bool) {
	if len(s.Reviews) == 0 {
		return time.Time{}, false
	}
	return s.Reviews[0].Date, true
}

// AppendReview adds r at the end of the review sequence and recomputes the
// rating over the whole sequence.
func (s *Souvenir) AppendReview(r Review) {
	s.Reviews = append(s.Reviews, r)
	s.Rating = MeanRating(s.Reviews)
}

// MeanRating returns the arithmetic mean of the review ratings, or 0 for an
// empty sequence.
func MeanRating(reviews []Review) float64 {
	if len(reviews) == 0 {
		return 0
	}
	var sum float64
	for _, r := range reviews {
		sum += r.Rating
	}
	return sum / float64(len(reviews))
}

// ValidReviewRating reports whether rating lies within the allowed bounds.
func ValidReviewRating(rating float64) bool {
	return rating >= MinReviewRating && rating <= MaxReviewRating
}
