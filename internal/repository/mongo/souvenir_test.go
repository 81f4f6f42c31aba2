package mongo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/utafrali/SouvenirShop/internal/domain"
	"github.com/utafrali/SouvenirShop/internal/repository"
	apperrors "github.com/utafrali/SouvenirShop/pkg/errors"
)

var reviewDate = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newMockT(t *testing.T) *mtest.T {
	t.Helper()
	return mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
}

// toD marshals v and decodes it back into a bson.D for mock cursor batches.
func toD(t *testing.T, v any) bson.D {
	t.Helper()
	raw, err := bson.Marshal(v)
	require.NoError(t, err)
	var d bson.D
	require.NoError(t, bson.Unmarshal(raw, &d))
	return d
}

func ns(mt *mtest.T) string {
	return mt.Coll.Database().Name() + "." + mt.Coll.Name()
}

func sampleDocument(id primitive.ObjectID) souvenirDocument {
	return souvenirDocument{
		ID:       id,
		Name:     "Matryoshka",
		Image:    "matryoshka.png",
		Price:    25.5,
		Amount:   3,
		Country:  "Russia",
		Rating:   4,
		IsRecent: true,
		Tags:     []string{"wood", "doll"},
		Reviews: []reviewDocument{
			{Login: "alice", Date: reviewDate, Text: "lovely", Rating: 4},
		},
		Version: 1,
	}
}

func TestSouvenirRepository_Create(t *testing.T) {
	mt := newMockT(t)

	mt.Run("assigns id and derived fields", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		repo := NewSouvenirRepository(mt.Coll)

		s := &domain.Souvenir{
			Name:    "Mug",
			Price:   7,
			Reviews: []domain.Review{{Login: "a", Rating: 5}, {Login: "b", Rating: 2}},
			Version: 9,
		}
		require.NoError(t, repo.Create(context.Background(), s))
		assert.Len(t, s.ID, 24)
		assert.Equal(t, 3.5, s.Rating)
		assert.Equal(t, 0, s.Version)
	})

	mt.Run("duplicate id", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index: 0, Code: 11000, Message: "duplicate key error",
		}))
		repo := NewSouvenirRepository(mt.Coll)

		s := &domain.Souvenir{ID: primitive.NewObjectID().Hex(), Name: "Mug"}
		err := repo.Create(context.Background(), s)
		assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
	})

	mt.Run("rejects malformed id", func(mt *mtest.T) {
		repo := NewSouvenirRepository(mt.Coll)

		err := repo.Create(context.Background(), &domain.Souvenir{ID: "not-hex"})
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})
}

func TestSouvenirRepository_GetByID(t *testing.T) {
	mt := newMockT(t)

	mt.Run("found", func(mt *mtest.T) {
		id := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch, toD(t, sampleDocument(id))))
		repo := NewSouvenirRepository(mt.Coll)

		got, err := repo.GetByID(context.Background(), id.Hex())
		require.NoError(t, err)
		assert.Equal(t, id.Hex(), got.ID)
		assert.Equal(t, "Matryoshka", got.Name)
		assert.Equal(t, []string{"wood", "doll"}, got.Tags)
		require.Len(t, got.Reviews, 1)
		assert.True(t, got.Reviews[0].Date.Equal(reviewDate))
		assert.Equal(t, 1, got.Version)
	})

	mt.Run("not found", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch))
		repo := NewSouvenirRepository(mt.Coll)

		got, err := repo.GetByID(context.Background(), primitive.NewObjectID().Hex())
		assert.Nil(t, got)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	mt.Run("malformed id is not found", func(mt *mtest.T) {
		repo := NewSouvenirRepository(mt.Coll)

		_, err := repo.GetByID(context.Background(), "xyz")
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestSouvenirRepository_GetByIDs(t *testing.T) {
	mt := newMockT(t)

	mt.Run("skips unknown and malformed ids", func(mt *mtest.T) {
		id := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch, toD(t, sampleDocument(id))))
		repo := NewSouvenirRepository(mt.Coll)

		got, err := repo.GetByIDs(context.Background(), []string{id.Hex(), primitive.NewObjectID().Hex(), "bad"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, id.Hex(), got[0].ID)
	})

	mt.Run("no valid ids skips query", func(mt *mtest.T) {
		repo := NewSouvenirRepository(mt.Coll)

		got, err := repo.GetByIDs(context.Background(), []string{"bad"})
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})
}

func TestSouvenirRepository_List(t *testing.T) {
	mt := newMockT(t)

	mt.Run("returns documents in cursor order", func(mt *mtest.T) {
		first := sampleDocument(primitive.NewObjectID())
		second := sampleDocument(primitive.NewObjectID())
		second.Name = "Spoon"
		second.Rating = 3
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch, toD(t, first), toD(t, second)))
		repo := NewSouvenirRepository(mt.Coll)

		maxPrice := 30.0
		name := "o"
		got, err := repo.List(context.Background(), repository.SouvenirFilter{
			MaxPrice:          &maxPrice,
			NameContains:      &name,
			OrderByRatingDesc: true,
			Limit:             2,
		})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "Matryoshka", got[0].Name)
		assert.Equal(t, "Spoon", got[1].Name)

		cmd := mt.GetStartedEvent().Command
		filter := cmd.Lookup("filter").Document()
		assert.Equal(t, 30.0, filter.Lookup("price", "$lte").Double())
		pattern, options := filter.Lookup("name").Regex()
		assert.Equal(t, "o", pattern)
		assert.Equal(t, "i", options)
		assert.Equal(t, int64(2), cmd.Lookup("limit").AsInt64())
	})

	mt.Run("empty result is non-nil", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch))
		repo := NewSouvenirRepository(mt.Coll)

		got, err := repo.List(context.Background(), repository.SouvenirFilter{})
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	mt.Run("search pattern is quoted", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch))
		repo := NewSouvenirRepository(mt.Coll)

		name := "a.b*"
		_, err := repo.List(context.Background(), repository.SouvenirFilter{NameContains: &name})
		require.NoError(t, err)

		pattern, _ := mt.GetStartedEvent().Command.Lookup("filter", "name").Regex()
		assert.Equal(t, `a\.b\*`, pattern)
	})

	mt.Run("first review filter", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch))
		repo := NewSouvenirRepository(mt.Coll)

		since := reviewDate
		_, err := repo.List(context.Background(), repository.SouvenirFilter{FirstReviewSince: &since})
		require.NoError(t, err)

		got := mt.GetStartedEvent().Command.Lookup("filter", "reviews.0.date", "$gte").Time()
		assert.True(t, got.Equal(reviewDate))
	})
}

func TestSouvenirRepository_ListCardsByTag(t *testing.T) {
	mt := newMockT(t)

	mt.Run("projects cards", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch,
			bson.D{{Key: "name", Value: "Matryoshka"}, {Key: "image", Value: "m.png"}, {Key: "price", Value: 25.5}},
		))
		repo := NewSouvenirRepository(mt.Coll)

		cards, err := repo.ListCardsByTag(context.Background(), "wood")
		require.NoError(t, err)
		assert.Equal(t, []domain.SouvenirCard{{Name: "Matryoshka", Image: "m.png", Price: 25.5}}, cards)
		assert.Equal(t, "wood", mt.GetStartedEvent().Command.Lookup("filter", "tags").StringValue())
	})
}

func TestSouvenirRepository_Count(t *testing.T) {
	mt := newMockT(t)

	mt.Run("counts", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch,
			bson.D{{Key: "n", Value: int32(7)}},
		))
		repo := NewSouvenirRepository(mt.Coll)

		n, err := repo.Count(context.Background(), repository.CountFilter{Country: "Japan", MinRating: 4, MaxPrice: 50})
		require.NoError(t, err)
		assert.Equal(t, int64(7), n)
	})
}

func TestSouvenirRepository_UpdateReviews(t *testing.T) {
	mt := newMockT(t)

	mt.Run("version matches", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))
		repo := NewSouvenirRepository(mt.Coll)

		s := sampleDocument(primitive.NewObjectID()).toDomain()
		s.AppendReview(domain.Review{Login: "bob", Rating: 2})
		require.NoError(t, repo.UpdateReviews(context.Background(), &s, 1))
		assert.Equal(t, 2, s.Version)
	})

	mt.Run("version moved on", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0},
			bson.E{Key: "nModified", Value: 0},
		))
		repo := NewSouvenirRepository(mt.Coll)

		s := sampleDocument(primitive.NewObjectID()).toDomain()
		err := repo.UpdateReviews(context.Background(), &s, 1)
		assert.ErrorIs(t, err, apperrors.ErrConflict)
		assert.Equal(t, 1, s.Version)
	})

	mt.Run("filter pins the expected version", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))
		repo := NewSouvenirRepository(mt.Coll)

		s := sampleDocument(primitive.NewObjectID()).toDomain()
		require.NoError(t, repo.UpdateReviews(context.Background(), &s, 3))

		q := mt.GetStartedEvent().Command.Lookup("updates").Array().Index(0).Value().Document().Lookup("q").Document()
		assert.Equal(t, int64(3), q.Lookup("version").AsInt64())
		_, err := q.LookupErr("$or")
		assert.Error(t, err)
	})

	mt.Run("version 0 matches documents without the field", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))
		repo := NewSouvenirRepository(mt.Coll)

		doc := sampleDocument(primitive.NewObjectID())
		doc.Version = 0
		s := doc.toDomain()
		s.AppendReview(domain.Review{Login: "bob", Rating: 5})
		require.NoError(t, repo.UpdateReviews(context.Background(), &s, 0))
		assert.Equal(t, 1, s.Version)

		update := mt.GetStartedEvent().Command.Lookup("updates").Array().Index(0).Value().Document()
		q := update.Lookup("q").Document()
		assert.Equal(t, doc.ID, q.Lookup("_id").ObjectID())
		alternatives, err := q.Lookup("$or").Array().Values()
		require.NoError(t, err)
		require.Len(t, alternatives, 2)
		assert.Equal(t, int64(0), alternatives[0].Document().Lookup("version").AsInt64())
		assert.False(t, alternatives[1].Document().Lookup("version", "$exists").Boolean())
		assert.Equal(t, int64(1), update.Lookup("u", "$inc", "version").AsInt64())
	})
}

func TestSouvenirRepository_DeleteOutOfStock(t *testing.T) {
	mt := newMockT(t)

	mt.Run("deletes and returns ids", func(mt *mtest.T) {
		a, b := primitive.NewObjectID(), primitive.NewObjectID()
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch,
				bson.D{{Key: "_id", Value: a}},
				bson.D{{Key: "_id", Value: b}},
			),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 2}),
		)
		repo := NewSouvenirRepository(mt.Coll)

		ids, err := repo.DeleteOutOfStock(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{a.Hex(), b.Hex()}, ids)
	})

	mt.Run("restocked souvenir is not reported", func(mt *mtest.T) {
		a, b := primitive.NewObjectID(), primitive.NewObjectID()
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch,
				bson.D{{Key: "_id", Value: a}},
				bson.D{{Key: "_id", Value: b}},
			),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
			mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch, bson.D{{Key: "_id", Value: b}}),
		)
		repo := NewSouvenirRepository(mt.Coll)

		ids, err := repo.DeleteOutOfStock(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{a.Hex()}, ids)
	})

	mt.Run("nothing out of stock", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch))
		repo := NewSouvenirRepository(mt.Coll)

		ids, err := repo.DeleteOutOfStock(context.Background())
		require.NoError(t, err)
		assert.NotNil(t, ids)
		assert.Empty(t, ids)
	})

	mt.Run("delete fails", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch, bson.D{{Key: "_id", Value: primitive.NewObjectID()}}),
			mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 2, Message: "bad value"}),
		)
		repo := NewSouvenirRepository(mt.Coll)

		_, err := repo.DeleteOutOfStock(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "delete out-of-stock souvenirs")
	})
}

func TestSouvenirRepository_EnsureIndexes(t *testing.T) {
	mt := newMockT(t)

	mt.Run("creates indexes", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		repo := NewSouvenirRepository(mt.Coll)

		require.NoError(t, repo.EnsureIndexes(context.Background()))
		indexes := mt.GetStartedEvent().Command.Lookup("indexes").Array()
		values, err := indexes.Values()
		require.NoError(t, err)
		assert.Len(t, values, 6)
	})
}
