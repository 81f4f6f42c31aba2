package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/SouvenirShop/internal/domain"
	"github.com/utafrali/SouvenirShop/internal/repository"
	apperrors "github.com/utafrali/SouvenirShop/pkg/errors"
	"github.com/utafrali/SouvenirShop/pkg/slug"
	"github.com/utafrali/SouvenirShop/pkg/validator"
)

const engineSeed = "seed"

// Fixture is a catalog snapshot to load into empty stores. Carts reference
// souvenirs by fixture key because store IDs are assigned on insert. A cart
// listing one souvenir twice is rejected unless MergeDuplicateItems is set, in
// which case the amounts are summed.
type Fixture struct {
	Souvenirs           []FixtureSouvenir `json:"souvenirs" validate:"dive"`
	Carts               []FixtureCart     `json:"carts" validate:"dive"`
	MergeDuplicateItems bool              `json:"merge_duplicate_items"`
}

// FixtureSouvenir is a souvenir plus the key carts use to reference it. An
// empty Key defaults to the slug of Name.
type FixtureSouvenir struct {
	Key      string          `json:"key"`
	Name     string          `json:"name" validate:"required"`
	Image    string          `json:"image"`
	Price    float64         `json:"price" validate:"finite,gte=0"`
	Amount   int             `json:"amount" validate:"gte=0"`
	Country  string          `json:"country"`
	IsRecent bool            `json:"is_recent"`
	Tags     []string        `json:"tags"`
	Reviews  []domain.Review `json:"reviews"`
}

// FixtureCart is a cart whose items reference FixtureSouvenir keys.
type FixtureCart struct {
	Login string            `json:"login" validate:"required"`
	Items []FixtureCartItem `json:"items" validate:"dive"`
}

// FixtureCartItem references a fixture souvenir by key.
type FixtureCartItem struct {
	Souvenir string `json:"souvenir" validate:"required"`
	Amount   int    `json:"amount" validate:"gte=1"`
}

// SeedResult reports what Load created.
type SeedResult struct {
	Souvenirs  map[string]string `json:"souvenirs"`
	OutOfStock int               `json:"out_of_stock"`
	Carts      int               `json:"carts"`
	CartUnits  int               `json:"cart_units"`
}

// SeedService loads fixtures into the catalog and cart stores.
type SeedService struct {
	souvenirs repository.SouvenirRepository
	carts     repository.CartRepository
	logger    *slog.Logger
}

// NewSeedService creates a new seed service.
func NewSeedService(souvenirs repository.SouvenirRepository, carts repository.CartRepository, logger *slog.Logger) *SeedService {
	return &SeedService{souvenirs: souvenirs, carts: carts, logger: logger}
}

// Load creates every fixture souvenir, then saves every fixture cart with its
// keys resolved to the new souvenir IDs. Ratings are derived from the fixture
// reviews. The returned map goes from fixture key to store ID.
func (s *SeedService) Load(ctx context.Context, f Fixture) (_ *SeedResult, err error) {
	ctx, op := begin(ctx, engineSeed, "load")
	defer func() { op.end(err) }()

	if err := validator.Validate(f); err != nil {
		return nil, invalid(err)
	}
	for i, r := range allReviews(f) {
		if !domain.ValidReviewRating(r.Rating) {
			return nil, apperrors.InvalidInput(fmt.Sprintf("review %d: rating %v is outside [%v, %v]",
				i, r.Rating, domain.MinReviewRating, domain.MaxReviewRating))
		}
	}

	f.Souvenirs = append([]FixtureSouvenir(nil), f.Souvenirs...)
	assignDefaultKeys(f.Souvenirs)
	if err := checkFixtureKeys(f); err != nil {
		return nil, err
	}

	result := &SeedResult{Souvenirs: make(map[string]string, len(f.Souvenirs))}

	for _, fs := range f.Souvenirs {
		sv := &domain.Souvenir{
			Name:     fs.Name,
			Image:    fs.Image,
			Price:    fs.Price,
			Amount:   fs.Amount,
			Country:  fs.Country,
			IsRecent: fs.IsRecent,
			Tags:     fs.Tags,
			Reviews:  fs.Reviews,
		}
		if err := s.souvenirs.Create(ctx, sv); err != nil {
			return nil, classify(fmt.Sprintf("create souvenir %s", fs.Key), err)
		}
		result.Souvenirs[fs.Key] = sv.ID
		if !sv.InStock() {
			result.OutOfStock++
		}
	}

	for _, fc := range f.Carts {
		cart := &domain.Cart{Login: fc.Login, Items: make([]domain.CartItem, 0, len(fc.Items))}
		for _, item := range fc.Items {
			cart.Items = append(cart.Items, domain.CartItem{
				SouvenirID: result.Souvenirs[item.Souvenir],
				Amount:     item.Amount,
			})
		}
		if f.MergeDuplicateItems {
			cart.Normalize()
		}
		if err := s.carts.Save(ctx, cart); err != nil {
			return nil, classify(fmt.Sprintf("save cart %s", fc.Login), err)
		}
		result.Carts++
		result.CartUnits += cart.ItemCount()
	}

	s.logger.InfoContext(ctx, "fixture loaded",
		slog.Int("souvenirs", len(result.Souvenirs)),
		slog.Int("out_of_stock", result.OutOfStock),
		slog.Int("carts", result.Carts),
		slog.Int("cart_units", result.CartUnits),
	)
	return result, nil
}

func assignDefaultKeys(souvenirs []FixtureSouvenir) {
	for i := range souvenirs {
		if souvenirs[i].Key == "" {
			souvenirs[i].Key = slug.Generate(souvenirs[i].Name)
		}
	}
}

// checkFixtureKeys rejects duplicate souvenir keys and cart items that
// reference unknown keys before anything is written.
func checkFixtureKeys(f Fixture) error {
	keys := make(map[string]struct{}, len(f.Souvenirs))
	for _, fs := range f.Souvenirs {
		if fs.Key == "" {
			return apperrors.InvalidInput(fmt.Sprintf("souvenir %q needs a key", fs.Name))
		}
		if _, dup := keys[fs.Key]; dup {
			return apperrors.InvalidInput(fmt.Sprintf("souvenir key %q appears more than once", fs.Key))
		}
		keys[fs.Key] = struct{}{}
	}
	for _, fc := range f.Carts {
		inCart := make(map[string]struct{}, len(fc.Items))
		for _, item := range fc.Items {
			if _, ok := keys[item.Souvenir]; !ok {
				return apperrors.InvalidInput(fmt.Sprintf("cart %s references unknown souvenir key %q", fc.Login, item.Souvenir))
			}
			if _, dup := inCart[item.Souvenir]; dup && !f.MergeDuplicateItems {
				return apperrors.InvalidInput(fmt.Sprintf("cart %s lists souvenir key %q more than once", fc.Login, item.Souvenir))
			}
			inCart[item.Souvenir] = struct{}{}
		}
	}
	return nil
}

func allReviews(f Fixture) []domain.Review {
	var out []domain.Review
	for _, s := range f.Souvenirs {
		out = append(out, s.Reviews...)
	}
	return out
}
