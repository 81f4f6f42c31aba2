package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/utafrali/SouvenirShop/internal/domain"
	"github.com/utafrali/SouvenirShop/internal/repository"
	apperrors "github.com/utafrali/SouvenirShop/pkg/errors"
)

// memSouvenirs is an in-memory repository.SouvenirRepository used to check
// engine behavior end to end. Natural order is insertion order.
type memSouvenirs struct {
	mu    sync.Mutex
	seq   int
	order []string
	items map[string]domain.Souvenir
}

func newMemSouvenirs() *memSouvenirs {
	return &memSouvenirs{items: make(map[string]domain.Souvenir)}
}

func clone(s domain.Souvenir) domain.Souvenir {
	s.Tags = append([]string(nil), s.Tags...)
	s.Reviews = append([]domain.Review(nil), s.Reviews...)
	return s
}

func (m *memSouvenirs) Create(_ context.Context, s *domain.Souvenir) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	if s.ID == "" {
		s.ID = fmt.Sprintf("sv-%03d", m.seq)
	}
	s.Rating = domain.MeanRating(s.Reviews)
	s.Version = 0
	m.items[s.ID] = clone(*s)
	m.order = append(m.order, s.ID)
	return nil
}

func (m *memSouvenirs) GetByID(_ context.Context, id string) (*domain.Souvenir, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[id]
	if !ok {
		return nil, apperrors.NotFound("souvenir", id)
	}
	c := clone(s)
	return &c, nil
}

func (m *memSouvenirs) GetByIDs(_ context.Context, ids []string) ([]domain.Souvenir, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Souvenir{}
	for _, id := range ids {
		if s, ok := m.items[id]; ok {
			out = append(out, clone(s))
		}
	}
	return out, nil
}

func (m *memSouvenirs) List(_ context.Context, f repository.SouvenirFilter) ([]domain.Souvenir, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Souvenir{}
	for _, id := range m.order {
		s, ok := m.items[id]
		if !ok {
			continue
		}
		if f.MaxPrice != nil && s.Price > *f.MaxPrice {
			continue
		}
		if f.NameContains != nil && !strings.Contains(strings.ToLower(s.Name), strings.ToLower(*f.NameContains)) {
			continue
		}
		if f.FirstReviewSince != nil {
			first, ok := s.FirstReviewDate()
			if !ok || first.Before(*f.FirstReviewSince) {
				continue
			}
		}
		out = append(out, clone(s))
	}
	if f.OrderByRatingDesc {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Rating > out[j].Rating })
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memSouvenirs) ListCardsByTag(_ context.Context, tag string) ([]domain.SouvenirCard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.SouvenirCard{}
	for _, id := range m.order {
		s, ok := m.items[id]
		if !ok {
			continue
		}
		for _, t := range s.Tags {
			if t == tag {
				out = append(out, s.Card())
				break
			}
		}
	}
	return out, nil
}

func (m *memSouvenirs) Count(_ context.Context, f repository.CountFilter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.items {
		if s.Country == f.Country && s.Rating >= f.MinRating && s.Price <= f.MaxPrice {
			n++
		}
	}
	return n, nil
}

func (m *memSouvenirs) UpdateReviews(_ context.Context, s *domain.Souvenir, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.items[s.ID]
	if !ok || stored.Version != expectedVersion {
		return apperrors.Conflict("version moved on")
	}
	stored.Reviews = append([]domain.Review(nil), s.Reviews...)
	stored.Rating = s.Rating
	stored.Version++
	m.items[s.ID] = stored
	s.Version = stored.Version
	return nil
}

func (m *memSouvenirs) DeleteOutOfStock(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := []string{}
	for _, id := range m.order {
		if s, ok := m.items[id]; ok && s.Amount == 0 {
			ids = append(ids, id)
			delete(m.items, id)
		}
	}
	return ids, nil
}

// memCarts is an in-memory repository.CartRepository.
type memCarts struct {
	mu    sync.Mutex
	carts map[string]domain.Cart
}

func newMemCarts() *memCarts {
	return &memCarts{carts: make(map[string]domain.Cart)}
}

func (m *memCarts) Get(_ context.Context, login string) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[login]
	if !ok {
		return nil, apperrors.NotFound("cart", login)
	}
	c.Items = append([]domain.CartItem(nil), c.Items...)
	return &c, nil
}

func (m *memCarts) Save(_ context.Context, cart *domain.Cart) error {
	if err := cart.Validate(); err != nil {
		return apperrors.InvalidInput(err.Error())
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cart.Version = m.carts[cart.Login].Version + 1
	c := *cart
	c.Items = append([]domain.CartItem(nil), cart.Items...)
	m.carts[cart.Login] = c
	return nil
}

func (m *memCarts) RemoveSouvenirs(_ context.Context, ids []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	changed := 0
	for login, c := range m.carts {
		c.Items = append([]domain.CartItem(nil), c.Items...)
		if c.RemoveSouvenirs(ids) > 0 {
			c.Version++
			m.carts[login] = c
			changed++
		}
	}
	return changed, nil
}
