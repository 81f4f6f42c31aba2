package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/utafrali/SouvenirShop/internal/domain"
	"github.com/utafrali/SouvenirShop/internal/repository"
	"github.com/utafrali/SouvenirShop/pkg/database"
	apperrors "github.com/utafrali/SouvenirShop/pkg/errors"
)

// CartRepository implements repository.CartRepository on a MongoDB
// collection with one document per login.
type CartRepository struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewCartRepository creates a new MongoDB-backed cart repository.
func NewCartRepository(coll *mongo.Collection) *CartRepository {
	return &CartRepository{
		coll: coll,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

var _ repository.CartRepository = (*CartRepository)(nil)

func (r *CartRepository) trace(ctx context.Context, operation, command string) (context.Context, func(error)) {
	return database.TraceCommand(ctx, database.SystemMongo, operation, r.coll.Name()+"."+command)
}

// Get retrieves the cart owned by login.
func (r *CartRepository) Get(ctx context.Context, login string) (_ *domain.Cart, err error) {
	ctx, end := r.trace(ctx, "GetCart", "findOne")
	defer func() { end(err) }()

	var doc cartDocument
	if err = r.coll.FindOne(ctx, bson.M{"login": login}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.NotFound("cart", login)
		}
		return nil, fmt.Errorf("find cart %s: %w", login, err)
	}
	return doc.toDomain(), nil
}

// Save validates and upserts the cart of cart.Login, bumping its version.
func (r *CartRepository) Save(ctx context.Context, cart *domain.Cart) (err error) {
	if err := cart.Validate(); err != nil {
		return apperrors.InvalidInput(err.Error())
	}

	ctx, end := r.trace(ctx, "SaveCart", "findOneAndUpdate")
	defer func() { end(err) }()

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var doc cartDocument
	err = r.coll.FindOneAndUpdate(ctx,
		bson.M{"login": cart.Login},
		bson.M{
			"$set": bson.M{"items": toCartItemDocuments(cart.Items), "updatedAt": r.now()},
			"$inc": bson.M{"version": 1},
		},
		opts,
	).Decode(&doc)
	if err != nil {
		return fmt.Errorf("save cart %s: %w", cart.Login, err)
	}

	cart.Version = doc.Version
	cart.UpdatedAt = doc.UpdatedAt
	return nil
}

// RemoveSouvenirs pulls every item referencing one of ids from every cart in
// a single updateMany and returns the number of carts modified.
func (r *CartRepository) RemoveSouvenirs(ctx context.Context, ids []string) (_ int, err error) {
	if len(ids) == 0 {
		return 0, nil
	}

	ctx, end := r.trace(ctx, "RemoveCartSouvenirs", "updateMany")
	defer func() { end(err) }()

	res, err := r.coll.UpdateMany(ctx,
		bson.M{"items.souvenirId": bson.M{"$in": ids}},
		bson.M{
			"$pull": bson.M{"items": bson.M{"souvenirId": bson.M{"$in": ids}}},
			"$set":  bson.M{"updatedAt": r.now()},
			"$inc":  bson.M{"version": 1},
		},
	)
	if err != nil {
		return 0, fmt.Errorf("remove souvenirs from carts: %w", err)
	}
	return int(res.ModifiedCount), nil
}

// EnsureIndexes creates the unique login index and the index the purge
// cascade filters on.
func (r *CartRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "login", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "items.souvenirId", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create cart indexes: %w", err)
	}
	return nil
}
