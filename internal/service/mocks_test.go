package service

import (
	"context"
	"log/slog"
	"os"

	"github.com/stretchr/testify/mock"

	"github.com/utafrali/SouvenirShop/internal/domain"
	"github.com/utafrali/SouvenirShop/internal/repository"
)

// --- Mock Repositories ---

type mockSouvenirRepository struct {
	mock.Mock
}

func (m *mockSouvenirRepository) Create(ctx context.Context, s *domain.Souvenir) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *mockSouvenirRepository) GetByID(ctx context.Context, id string) (*domain.Souvenir, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Souvenir), args.Error(1)
}

func (m *mockSouvenirRepository) GetByIDs(ctx context.Context, ids []string) ([]domain.Souvenir, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Souvenir), args.Error(1)
}

func (m *mockSouvenirRepository) List(ctx context.Context, filter repository.SouvenirFilter) ([]domain.Souvenir, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Souvenir), args.Error(1)
}

func (m *mockSouvenirRepository) ListCardsByTag(ctx context.Context, tag string) ([]domain.SouvenirCard, error) {
	args := m.Called(ctx, tag)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.SouvenirCard), args.Error(1)
}

func (m *mockSouvenirRepository) Count(ctx context.Context, filter repository.CountFilter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSouvenirRepository) UpdateReviews(ctx context.Context, s *domain.Souvenir, expectedVersion int) error {
	args := m.Called(ctx, s, expectedVersion)
	return args.Error(0)
}

func (m *mockSouvenirRepository) DeleteOutOfStock(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type mockCartRepository struct {
	mock.Mock
}

func (m *mockCartRepository) Get(ctx context.Context, login string) (*domain.Cart, error) {
	args := m.Called(ctx, login)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Cart), args.Error(1)
}

func (m *mockCartRepository) Save(ctx context.Context, cart *domain.Cart) error {
	args := m.Called(ctx, cart)
	return args.Error(0)
}

func (m *mockCartRepository) RemoveSouvenirs(ctx context.Context, ids []string) (int, error) {
	args := m.Called(ctx, ids)
	return args.Int(0), args.Error(1)
}

// --- Mock Publisher ---

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishSouvenirReviewed(ctx context.Context, s *domain.Souvenir, review domain.Review) error {
	args := m.Called(ctx, s, review)
	return args.Error(0)
}

func (m *mockPublisher) PublishSouvenirsPurged(ctx context.Context, ids []string, cartsUpdated int, cascadeComplete bool) error {
	args := m.Called(ctx, ids, cartsUpdated, cascadeComplete)
	return args.Error(0)
}

func (m *mockPublisher) PublishCartItemsRemoved(ctx context.Context, ids []string, cartsUpdated int) error {
	args := m.Called(ctx, ids, cartsUpdated)
	return args.Error(0)
}

// nopPublisher accepts every event.
type nopPublisher struct{}

func (nopPublisher) PublishSouvenirReviewed(context.Context, *domain.Souvenir, domain.Review) error {
	return nil
}

func (nopPublisher) PublishSouvenirsPurged(context.Context, []string, int, bool) error { return nil }

func (nopPublisher) PublishCartItemsRemoved(context.Context, []string, int) error { return nil }

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func intPtr(n int) *int           { return &n }
func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }
