package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/utafrali/SouvenirShop/internal/domain"
)

type reviewDocument struct {
	Login      string    `bson:"login"`
	Date       time.Time `bson:"date"`
	Text       string    `bson:"text"`
	Rating     float64   `bson:"rating"`
	IsApproved bool      `bson:"isApproved"`
}

type souvenirDocument struct {
	ID       primitive.ObjectID `bson:"_id,omitempty"`
	Name     string             `bson:"name"`
	Image    string             `bson:"image"`
	Price    float64            `bson:"price"`
	Amount   int                `bson:"amount"`
	Country  string             `bson:"country"`
	Rating   float64            `bson:"rating"`
	IsRecent bool               `bson:"isRecent"`
	Tags     []string           `bson:"tags"`
	Reviews  []reviewDocument   `bson:"reviews"`
	Version  int                `bson:"version"`
}

type cardDocument struct {
	Name  string  `bson:"name"`
	Image string  `bson:"image"`
	Price float64 `bson:"price"`
}

type cartItemDocument struct {
	SouvenirID string `bson:"souvenirId"`
	Amount     int    `bson:"amount"`
}

type cartDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Login     string             `bson:"login"`
	Items     []cartItemDocument `bson:"items"`
	Version   int                `bson:"version"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

func toReviewDocuments(reviews []domain.Review) []reviewDocument {
	docs := make([]reviewDocument, len(reviews))
	for i, r := range reviews {
		docs[i] = reviewDocument(r)
	}
	return docs
}

func toSouvenirDocument(s *domain.Souvenir, id primitive.ObjectID) souvenirDocument {
	tags := s.Tags
	if tags == nil {
		tags = []string{}
	}
	return souvenirDocument{
		ID:       id,
		Name:     s.Name,
		Image:    s.Image,
		Price:    s.Price,
		Amount:   s.Amount,
		Country:  s.Country,
		Rating:   s.Rating,
		IsRecent: s.IsRecent,
		Tags:     tags,
		Reviews:  toReviewDocuments(s.Reviews),
		Version:  s.Version,
	}
}

func (d souvenirDocument) toDomain() domain.Souvenir {
	var reviews []domain.Review
	if len(d.Reviews) > 0 {
		reviews = make([]domain.Review, len(d.Reviews))
		for i, r := range d.Reviews {
			reviews[i] = domain.Review(r)
		}
	}
	return domain.Souvenir{
		ID:       d.ID.Hex(),
		Name:     d.Name,
		Image:    d.Image,
		Price:    d.Price,
		Amount:   d.Amount,
		Country:  d.Country,
		Rating:   d.Rating,
		IsRecent: d.IsRecent,
		Tags:     d.Tags,
		Reviews:  reviews,
		Version:  d.Version,
	}
}

func toCartItemDocuments(items []domain.CartItem) []cartItemDocument {
	docs := make([]cartItemDocument, len(items))
	for i, item := range items {
		docs[i] = cartItemDocument(item)
	}
	return docs
}

func (d *cartDocument) toDomain() *domain.Cart {
	items := make([]domain.CartItem, len(d.Items))
	for i, item := range d.Items {
		items[i] = domain.CartItem(item)
	}
	return &domain.Cart{
		Login:     d.Login,
		Items:     items,
		Version:   d.Version,
		UpdatedAt: d.UpdatedAt,
	}
}
