package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/SouvenirShop/internal/domain"
	"github.com/utafrali/SouvenirShop/internal/repository"
	"github.com/utafrali/SouvenirShop/pkg/database"
	apperrors "github.com/utafrali/SouvenirShop/pkg/errors"
)

const (
	keyPrefix   = "cart:"
	indexPrefix = "cart:souvenir:"

	// maxWatchRetries bounds optimistic retries when a watched cart changes
	// between read and write.
	maxWatchRetries = 5
)

// CartRepository implements repository.CartRepository using Redis. Each cart
// is a JSON document under cart:<login>. The set cart:souvenir:<id> holds the
// logins whose cart references souvenir <id>, so the purge cascade only
// touches affected carts.
type CartRepository struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewCartRepository creates a new Redis-backed cart repository. A zero ttl
// stores carts without expiry.
func NewCartRepository(client *redis.Client, ttl time.Duration) *CartRepository {
	return &CartRepository{
		client: client,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

var _ repository.CartRepository = (*CartRepository)(nil)

func cartKey(login string) string { return keyPrefix + login }

func indexKey(souvenirID string) string { return indexPrefix + souvenirID }

// Get retrieves the cart owned by login.
func (r *CartRepository) Get(ctx context.Context, login string) (_ *domain.Cart, err error) {
	key := cartKey(login)

	ctx, end := database.TraceCommand(ctx, database.SystemRedis, "GetCart", "GET "+key)
	defer func() { end(err) }()

	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("cart", login)
		}
		return nil, fmt.Errorf("redis get cart: %w", err)
	}

	return decodeCart(data)
}

// Save validates and stores cart, replacing the previous cart of the same
// login. The reverse index is updated in the same MULTI block.
func (r *CartRepository) Save(ctx context.Context, cart *domain.Cart) (err error) {
	if err := cart.Validate(); err != nil {
		return apperrors.InvalidInput(err.Error())
	}

	key := cartKey(cart.Login)

	ctx, end := database.TraceCommand(ctx, database.SystemRedis, "SaveCart", "SET "+key)
	defer func() { end(err) }()

	save := func(tx *redis.Tx) error {
		var previous []string
		prevVersion := 0

		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return fmt.Errorf("redis get cart: %w", err)
		default:
			old, err := decodeCart(data)
			if err != nil {
				return err
			}
			previous = old.SouvenirIDs()
			prevVersion = old.Version
		}

		next := *cart
		next.Version = prevVersion + 1
		next.UpdatedAt = r.now()

		payload, err := json.Marshal(&next)
		if err != nil {
			return fmt.Errorf("marshal cart: %w", err)
		}

		current := next.SouvenirIDs()
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, r.ttl)
			for _, id := range difference(previous, current) {
				pipe.SRem(ctx, indexKey(id), cart.Login)
			}
			for _, id := range current {
				pipe.SAdd(ctx, indexKey(id), cart.Login)
			}
			return nil
		})
		if err != nil {
			return err
		}

		cart.Version = next.Version
		cart.UpdatedAt = next.UpdatedAt
		return nil
	}

	if err := r.watch(ctx, save, key); err != nil {
		return fmt.Errorf("save cart %s: %w", cart.Login, err)
	}
	return nil
}

// RemoveSouvenirs deletes every item referencing one of ids from every cart
// and returns the number of carts that changed. Each cart is rewritten in its
// own WATCH/MULTI block; the first failing cart aborts the cascade.
func (r *CartRepository) RemoveSouvenirs(ctx context.Context, ids []string) (changed int, err error) {
	if len(ids) == 0 {
		return 0, nil
	}

	indexKeys := make([]string, len(ids))
	for i, id := range ids {
		indexKeys[i] = indexKey(id)
	}

	ctx, end := database.TraceCommand(ctx, database.SystemRedis, "RemoveCartSouvenirs", "SUNION cart:souvenir:*")
	defer func() { end(err) }()

	logins, err := r.client.SUnion(ctx, indexKeys...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis sunion cart index: %w", err)
	}

	for _, login := range logins {
		updated, err := r.removeFromCart(ctx, login, ids)
		if err != nil {
			return changed, fmt.Errorf("remove souvenirs from cart %s: %w", login, err)
		}
		if updated {
			changed++
		}
	}

	if err := r.client.Del(ctx, indexKeys...).Err(); err != nil {
		return changed, fmt.Errorf("redis del cart index: %w", err)
	}

	return changed, nil
}

// removeFromCart rewrites a single cart without the given souvenirs. It
// reports false when the cart expired or holds none of them.
func (r *CartRepository) removeFromCart(ctx context.Context, login string, ids []string) (bool, error) {
	key := cartKey(login)
	var updated bool

	remove := func(tx *redis.Tx) error {
		updated = false

		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("redis get cart: %w", err)
		}

		cart, err := decodeCart(data)
		if err != nil {
			return err
		}
		if cart.RemoveSouvenirs(ids) == 0 {
			return nil
		}
		cart.Version++
		cart.UpdatedAt = r.now()

		payload, err := json.Marshal(cart)
		if err != nil {
			return fmt.Errorf("marshal cart: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, redis.KeepTTL)
			return nil
		})
		if err != nil {
			return err
		}
		updated = true
		return nil
	}

	if err := r.watch(ctx, remove, key); err != nil {
		return false, err
	}
	return updated, nil
}

// watch runs fn under WATCH on keys, retrying when another client modified
// them first.
func (r *CartRepository) watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		err := r.client.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return apperrors.Conflict(fmt.Sprintf("cart changed concurrently %d times in a row", maxWatchRetries))
}

func decodeCart(data []byte) (*domain.Cart, error) {
	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart: %w", err)
	}
	return &cart, nil
}

// difference returns the elements of a that are not in b.
func difference(a, b []string) []string {
	if len(a) == 0 {
		return nil
	}
	keep := make(map[string]struct{}, len(b))
	for _, s := range b {
		keep[s] = struct{}{}
	}
	var out []string
	for _, s := range a {
		if _, ok := keep[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}
