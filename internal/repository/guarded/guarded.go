// Package guarded wraps repositories with a circuit breaker. While the
// breaker is open calls fail fast with an Unavailable error and never reach
// the store.
package guarded

import (
	"context"

	"github.com/utafrali/SouvenirShop/internal/domain"
	"github.com/utafrali/SouvenirShop/internal/repository"
	"github.com/utafrali/SouvenirShop/pkg/breaker"
	apperrors "github.com/utafrali/SouvenirShop/pkg/errors"
)

func guard(operation string, err error) error {
	if breaker.IsOpen(err) {
		return apperrors.Unavailable(operation, err)
	}
	return err
}

// SouvenirRepository is a repository.SouvenirRepository behind a breaker.
type SouvenirRepository struct {
	next repository.SouvenirRepository
	cb   *breaker.Breaker
}

// NewSouvenirRepository wraps next with cb.
func NewSouvenirRepository(next repository.SouvenirRepository, cb *breaker.Breaker) *SouvenirRepository {
	return &SouvenirRepository{next: next, cb: cb}
}

var _ repository.SouvenirRepository = (*SouvenirRepository)(nil)

func (r *SouvenirRepository) Create(ctx context.Context, s *domain.Souvenir) error {
	return guard("create souvenir", breaker.Do(ctx, r.cb, func(ctx context.Context) error {
		return r.next.Create(ctx, s)
	}))
}

func (r *SouvenirRepository) GetByID(ctx context.Context, id string) (*domain.Souvenir, error) {
	s, err := breaker.Execute(ctx, r.cb, func(ctx context.Context) (*domain.Souvenir, error) {
		return r.next.GetByID(ctx, id)
	})
	return s, guard("get souvenir", err)
}

func (r *SouvenirRepository) GetByIDs(ctx context.Context, ids []string) ([]domain.Souvenir, error) {
	out, err := breaker.Execute(ctx, r.cb, func(ctx context.Context) ([]domain.Souvenir, error) {
		return r.next.GetByIDs(ctx, ids)
	})
	return out, guard("get souvenirs by ids", err)
}

func (r *SouvenirRepository) List(ctx context.Context, filter repository.SouvenirFilter) ([]domain.Souvenir, error) {
	out, err := breaker.Execute(ctx, r.cb, func(ctx context.Context) ([]domain.Souvenir, error) {
		return r.next.List(ctx, filter)
	})
	return out, guard("list souvenirs", err)
}

func (r *SouvenirRepository) ListCardsByTag(ctx context.Context, tag string) ([]domain.SouvenirCard, error) {
	out, err := breaker.Execute(ctx, r.cb, func(ctx context.Context) ([]domain.SouvenirCard, error) {
		return r.next.ListCardsByTag(ctx, tag)
	})
	return out, guard("list souvenir cards by tag", err)
}

func (r *SouvenirRepository) Count(ctx context.Context, filter repository.CountFilter) (int64, error) {
	n, err := breaker.Execute(ctx, r.cb, func(ctx context.Context) (int64, error) {
		return r.next.Count(ctx, filter)
	})
	return n, guard("count souvenirs", err)
}

func (r *SouvenirRepository) UpdateReviews(ctx context.Context, s *domain.Souvenir, expectedVersion int) error {
	return guard("update souvenir reviews", breaker.Do(ctx, r.cb, func(ctx context.Context) error {
		return r.next.UpdateReviews(ctx, s, expectedVersion)
	}))
}

func (r *SouvenirRepository) DeleteOutOfStock(ctx context.Context) ([]string, error) {
	ids, err := breaker.Execute(ctx, r.cb, func(ctx context.Context) ([]string, error) {
		return r.next.DeleteOutOfStock(ctx)
	})
	return ids, guard("delete out-of-stock souvenirs", err)
}

// CartRepository is a repository.CartRepository behind a breaker.
type CartRepository struct {
	next repository.CartRepository
	cb   *breaker.Breaker
}

// NewCartRepository wraps next with cb.
func NewCartRepository(next repository.CartRepository, cb *breaker.Breaker) *CartRepository {
	return &CartRepository{next: next, cb: cb}
}

var _ repository.CartRepository = (*CartRepository)(nil)

func (r *CartRepository) Get(ctx context.Context, login string) (*domain.Cart, error) {
	c, err := breaker.Execute(ctx, r.cb, func(ctx context.Context) (*domain.Cart, error) {
		return r.next.Get(ctx, login)
	})
	return c, guard("get cart", err)
}

func (r *CartRepository) Save(ctx context.Context, cart *domain.Cart) error {
	return guard("save cart", breaker.Do(ctx, r.cb, func(ctx context.Context) error {
		return r.next.Save(ctx, cart)
	}))
}

func (r *CartRepository) RemoveSouvenirs(ctx context.Context, ids []string) (int, error) {
	n, err := breaker.Execute(ctx, r.cb, func(ctx context.Context) (int, error) {
		return r.next.RemoveSouvenirs(ctx, ids)
	})
	return n, guard("remove souvenirs from carts", err)
}
