package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/utafrali/SouvenirShop/internal/domain"
	"github.com/utafrali/SouvenirShop/internal/repository"
	"github.com/utafrali/SouvenirShop/pkg/database"
	apperrors "github.com/utafrali/SouvenirShop/pkg/errors"
)

// SouvenirRepository implements repository.SouvenirRepository on a MongoDB
// collection.
type SouvenirRepository struct {
	coll *mongo.Collection
}

// NewSouvenirRepository creates a new MongoDB-backed souvenir repository.
func NewSouvenirRepository(coll *mongo.Collection) *SouvenirRepository {
	return &SouvenirRepository{coll: coll}
}

var _ repository.SouvenirRepository = (*SouvenirRepository)(nil)

func (r *SouvenirRepository) trace(ctx context.Context, operation, command string) (context.Context, func(error)) {
	return database.TraceCommand(ctx, database.SystemMongo, operation, r.coll.Name()+"."+command)
}

// Create inserts a souvenir. An empty ID is replaced with a new ObjectID.
func (r *SouvenirRepository) Create(ctx context.Context, s *domain.Souvenir) (err error) {
	id := primitive.NewObjectID()
	if s.ID != "" {
		if id, err = primitive.ObjectIDFromHex(s.ID); err != nil {
			return apperrors.InvalidInput(fmt.Sprintf("souvenir id %q is not an ObjectID", s.ID))
		}
	}
	s.Rating = domain.MeanRating(s.Reviews)
	s.Version = 0

	ctx, end := r.trace(ctx, "CreateSouvenir", "insertOne")
	defer func() { end(err) }()

	if _, err = r.coll.InsertOne(ctx, toSouvenirDocument(s, id)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperrors.AlreadyExists("souvenir", "id", id.Hex())
		}
		return fmt.Errorf("insert souvenir: %w", err)
	}

	s.ID = id.Hex()
	return nil
}

// GetByID retrieves a souvenir by its ID. IDs that are not valid ObjectIDs
// cannot exist and yield NotFound.
func (r *SouvenirRepository) GetByID(ctx context.Context, id string) (_ *domain.Souvenir, err error) {
	oid, convErr := primitive.ObjectIDFromHex(id)
	if convErr != nil {
		return nil, apperrors.NotFound("souvenir", id)
	}

	ctx, end := r.trace(ctx, "GetSouvenir", "findOne")
	defer func() { end(err) }()

	var doc souvenirDocument
	if err = r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.NotFound("souvenir", id)
		}
		return nil, fmt.Errorf("find souvenir %s: %w", id, err)
	}

	s := doc.toDomain()
	return &s, nil
}

// GetByIDs retrieves every souvenir whose ID is in ids with a single $in query.
func (r *SouvenirRepository) GetByIDs(ctx context.Context, ids []string) (_ []domain.Souvenir, err error) {
	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if oid, convErr := primitive.ObjectIDFromHex(id); convErr == nil {
			oids = append(oids, oid)
		}
	}
	if len(oids) == 0 {
		return []domain.Souvenir{}, nil
	}

	ctx, end := r.trace(ctx, "GetSouvenirsByIDs", "find")
	defer func() { end(err) }()

	return r.find(ctx, bson.M{"_id": bson.M{"$in": oids}}, options.Find())
}

// List returns souvenirs matching the filter.
func (r *SouvenirRepository) List(ctx context.Context, filter repository.SouvenirFilter) (_ []domain.Souvenir, err error) {
	query := bson.M{}

	if filter.MaxPrice != nil {
		query["price"] = bson.M{"$lte": *filter.MaxPrice}
	}
	if filter.NameContains != nil {
		query["name"] = primitive.Regex{Pattern: regexp.QuoteMeta(*filter.NameContains), Options: "i"}
	}
	if filter.FirstReviewSince != nil {
		query["reviews.0.date"] = bson.M{"$gte": *filter.FirstReviewSince}
	}

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if filter.OrderByRatingDesc {
		opts.SetSort(bson.D{{Key: "rating", Value: -1}, {Key: "_id", Value: 1}})
	}
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	ctx, end := r.trace(ctx, "ListSouvenirs", "find")
	defer func() { end(err) }()

	return r.find(ctx, query, opts)
}

// ListCardsByTag returns the card projection of every souvenir carrying tag.
func (r *SouvenirRepository) ListCardsByTag(ctx context.Context, tag string) (_ []domain.SouvenirCard, err error) {
	opts := options.Find().
		SetProjection(bson.M{"_id": 0, "name": 1, "image": 1, "price": 1}).
		SetSort(bson.D{{Key: "_id", Value: 1}})

	ctx, end := r.trace(ctx, "ListSouvenirCardsByTag", "find")
	defer func() { end(err) }()

	cursor, err := r.coll.Find(ctx, bson.M{"tags": tag}, opts)
	if err != nil {
		return nil, fmt.Errorf("find souvenir cards by tag: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []cardDocument
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode souvenir cards: %w", err)
	}

	cards := make([]domain.SouvenirCard, len(docs))
	for i, d := range docs {
		cards[i] = domain.SouvenirCard(d)
	}
	return cards, nil
}

// Count returns the number of souvenirs matching the filter.
func (r *SouvenirRepository) Count(ctx context.Context, filter repository.CountFilter) (_ int64, err error) {
	query := bson.M{
		"country": filter.Country,
		"rating":  bson.M{"$gte": filter.MinRating},
		"price":   bson.M{"$lte": filter.MaxPrice},
	}

	ctx, end := r.trace(ctx, "CountSouvenirs", "countDocuments")
	defer func() { end(err) }()

	n, err := r.coll.CountDocuments(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("count souvenirs: %w", err)
	}
	return n, nil
}

// UpdateReviews writes s.Reviews and s.Rating when the stored version still
// equals expectedVersion. On success s.Version holds the new version.
func (r *SouvenirRepository) UpdateReviews(ctx context.Context, s *domain.Souvenir, expectedVersion int) (err error) {
	oid, convErr := primitive.ObjectIDFromHex(s.ID)
	if convErr != nil {
		return apperrors.NotFound("souvenir", s.ID)
	}

	ctx, end := r.trace(ctx, "UpdateSouvenirReviews", "updateOne")
	defer func() { end(err) }()

	res, err := r.coll.UpdateOne(ctx,
		versionFilter(oid, expectedVersion),
		bson.M{
			"$set": bson.M{"reviews": toReviewDocuments(s.Reviews), "rating": s.Rating},
			"$inc": bson.M{"version": 1},
		},
	)
	if err != nil {
		return fmt.Errorf("update souvenir reviews: %w", err)
	}

	if res.MatchedCount == 0 {
		return apperrors.Conflict(fmt.Sprintf("souvenir %s changed since version %d", s.ID, expectedVersion))
	}

	s.Version = expectedVersion + 1
	return nil
}

// versionFilter matches oid at version. Documents written by other tools may
// lack the version field; they decode as version 0 and must match it, and the
// first $inc creates the field.
func versionFilter(oid primitive.ObjectID, version int) bson.M {
	if version != 0 {
		return bson.M{"_id": oid, "version": version}
	}
	return bson.M{"_id": oid, "$or": bson.A{
		bson.M{"version": 0},
		bson.M{"version": bson.M{"$exists": false}},
	}}
}

// DeleteOutOfStock removes every souvenir with amount 0 and returns their
// IDs. The IDs are collected first; the delete repeats the amount condition
// so a souvenir restocked in between survives.
func (r *SouvenirRepository) DeleteOutOfStock(ctx context.Context) (_ []string, err error) {
	ctx, end := r.trace(ctx, "DeleteOutOfStockSouvenirs", "deleteMany")
	defer func() { end(err) }()

	cursor, err := r.coll.Find(ctx, bson.M{"amount": 0}, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("find out-of-stock souvenirs: %w", err)
	}
	var docs []struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode out-of-stock souvenirs: %w", err)
	}
	if len(docs) == 0 {
		return []string{}, nil
	}

	oids := make([]primitive.ObjectID, len(docs))
	ids := make([]string, len(docs))
	for i, d := range docs {
		oids[i] = d.ID
		ids[i] = d.ID.Hex()
	}

	res, err := r.coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": oids}, "amount": 0})
	if err != nil {
		return nil, fmt.Errorf("delete out-of-stock souvenirs: %w", err)
	}
	if res.DeletedCount == int64(len(oids)) {
		return ids, nil
	}

	// Some were restocked in between; report only what is gone.
	cursor, err = r.coll.Find(ctx, bson.M{"_id": bson.M{"$in": oids}}, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("find restocked souvenirs: %w", err)
	}
	var kept []struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err = cursor.All(ctx, &kept); err != nil {
		return nil, fmt.Errorf("decode restocked souvenirs: %w", err)
	}
	survivors := make(map[string]struct{}, len(kept))
	for _, k := range kept {
		survivors[k.ID.Hex()] = struct{}{}
	}
	deleted := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := survivors[id]; !ok {
			deleted = append(deleted, id)
		}
	}
	return deleted, nil
}

func (r *SouvenirRepository) find(ctx context.Context, query any, opts *options.FindOptions) ([]domain.Souvenir, error) {
	cursor, err := r.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("find souvenirs: %w", err)
	}
	defer cursor.Close(ctx)

	souvenirs := []domain.Souvenir{}
	for cursor.Next(ctx) {
		var doc souvenirDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode souvenir: %w", err)
		}
		souvenirs = append(souvenirs, doc.toDomain())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate souvenirs: %w", err)
	}
	return souvenirs, nil
}

// EnsureIndexes creates the indexes the catalog queries rely on. The compound
// (country, rating, price) index serves Count.
func (r *SouvenirRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "price", Value: 1}}},
		{Keys: bson.D{{Key: "rating", Value: -1}}},
		{Keys: bson.D{{Key: "country", Value: 1}}},
		{Keys: bson.D{{Key: "country", Value: 1}, {Key: "rating", Value: 1}, {Key: "price", Value: 1}}},
		{Keys: bson.D{{Key: "tags", Value: 1}}},
		{Keys: bson.D{{Key: "amount", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create souvenir indexes: %w", err)
	}
	return nil
}
