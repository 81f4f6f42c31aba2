package service

import (
	"context"
	"log/slog"

	"github.com/utafrali/SouvenirShop/internal/domain"
	"github.com/utafrali/SouvenirShop/internal/repository"
	apperrors "github.com/utafrali/SouvenirShop/pkg/errors"
	"github.com/utafrali/SouvenirShop/pkg/logger"
)

const enginePricing = "pricing"

// CartLine is one priced cart item.
type CartLine struct {
	SouvenirID string  `json:"souvenir_id"`
	Amount     int     `json:"amount"`
	Price      float64 `json:"price"`
	Subtotal   float64 `json:"subtotal"`
}

// CartSummary is the priced view of a cart. Items whose souvenir no longer
// exists are listed in StaleIDs and contribute nothing to Total.
type CartSummary struct {
	Login    string     `json:"login"`
	Total    float64    `json:"total"`
	Lines    []CartLine `json:"lines"`
	StaleIDs []string   `json:"stale_ids"`
}

// PricingService prices carts against current catalog prices.
type PricingService struct {
	souvenirs repository.SouvenirRepository
	carts     repository.CartRepository
	logger    *slog.Logger
}

// NewPricingService creates a new pricing service.
func NewPricingService(souvenirs repository.SouvenirRepository, carts repository.CartRepository, logger *slog.Logger) *PricingService {
	return &PricingService{souvenirs: souvenirs, carts: carts, logger: logger}
}

// GetCartTotal returns the sum of price * amount over the items of the cart
// owned by login. The amount is not capped by stock, and items referencing a
// deleted souvenir count as zero. A login without a cart yields NotFound.
func (s *PricingService) GetCartTotal(ctx context.Context, login string) (_ float64, err error) {
	ctx, op := begin(ctx, enginePricing, "get_cart_total")
	defer func() { op.end(err) }()

	summary, err := s.summarize(ctx, login)
	if err != nil {
		return 0, err
	}
	return summary.Total, nil
}

// GetCartSummary is GetCartTotal with per-line subtotals and the list of
// stale souvenir references.
func (s *PricingService) GetCartSummary(ctx context.Context, login string) (_ *CartSummary, err error) {
	ctx, op := begin(ctx, enginePricing, "get_cart_summary")
	defer func() { op.end(err) }()

	return s.summarize(ctx, login)
}

func (s *PricingService) summarize(ctx context.Context, login string) (*CartSummary, error) {
	if login == "" {
		return nil, apperrors.InvalidInput("login is required")
	}
	ctx = logger.WithLogin(ctx, login)

	cart, err := s.carts.Get(ctx, login)
	if err != nil {
		return nil, classify("get cart", err)
	}

	summary := &CartSummary{
		Login:    login,
		Lines:    []CartLine{},
		StaleIDs: []string{},
	}
	if len(cart.Items) == 0 {
		return summary, nil
	}

	souvenirs, err := s.souvenirs.GetByIDs(ctx, cart.SouvenirIDs())
	if err != nil {
		return nil, classify("get cart souvenirs", err)
	}
	prices := make(map[string]float64, len(souvenirs))
	for _, sv := range souvenirs {
		prices[sv.ID] = sv.Price
	}

	for _, item := range cart.Items {
		price, ok := prices[item.SouvenirID]
		if !ok {
			summary.StaleIDs = append(summary.StaleIDs, item.SouvenirID)
			continue
		}
		line := lineFor(item, price)
		summary.Lines = append(summary.Lines, line)
		summary.Total += line.Subtotal
	}

	if len(summary.StaleIDs) > 0 {
		s.logger.DebugContext(ctx, "cart references deleted souvenirs",
			slog.String("login", login),
			slog.Any("stale_ids", summary.StaleIDs),
		)
	}

	return summary, nil
}

func lineFor(item domain.CartItem, price float64) CartLine {
	return CartLine{
		SouvenirID: item.SouvenirID,
		Amount:     item.Amount,
		Price:      price,
		Subtotal:   price * float64(item.Amount),
	}
}
