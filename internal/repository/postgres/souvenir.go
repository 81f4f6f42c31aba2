package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/utafrali/SouvenirShop/internal/domain"
	"github.com/utafrali/SouvenirShop/internal/repository"
	"github.com/utafrali/SouvenirShop/pkg/database"
	apperrors "github.com/utafrali/SouvenirShop/pkg/errors"
)

const souvenirColumns = `id, name, image, price, amount, country, rating, is_recent, tags, reviews, version`

// SouvenirRepository implements repository.SouvenirRepository using PostgreSQL.
type SouvenirRepository struct {
	db database.DBTX
}

// NewSouvenirRepository creates a new PostgreSQL-backed souvenir repository.
func NewSouvenirRepository(db database.DBTX) *SouvenirRepository {
	return &SouvenirRepository{db: db}
}

var _ repository.SouvenirRepository = (*SouvenirRepository)(nil)

// Create inserts a new souvenir. An empty ID is replaced with a fresh UUID.
func (r *SouvenirRepository) Create(ctx context.Context, s *domain.Souvenir) (err error) {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.Tags == nil {
		s.Tags = []string{}
	}
	s.Rating = domain.MeanRating(s.Reviews)
	s.Version = 0

	reviewsJSON, err := marshalReviews(s.Reviews)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO souvenirs (` + souvenirColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	ctx, end := database.TraceQuery(ctx, "CreateSouvenir", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query,
		s.ID,
		s.Name,
		s.Image,
		s.Price,
		s.Amount,
		s.Country,
		s.Rating,
		s.IsRecent,
		s.Tags,
		reviewsJSON,
		s.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("souvenir", "id", s.ID)
		}
		return fmt.Errorf("insert souvenir: %w", err)
	}

	return nil
}

// GetByID retrieves a souvenir by its ID.
func (r *SouvenirRepository) GetByID(ctx context.Context, id string) (s *domain.Souvenir, err error) {
	query := `SELECT ` + souvenirColumns + ` FROM souvenirs WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "GetSouvenir", query)
	defer func() { end(err) }()

	s, err = scanSouvenir(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("souvenir", id)
		}
		return nil, fmt.Errorf("get souvenir %s: %w", id, err)
	}
	return s, nil
}

// GetByIDs retrieves all souvenirs whose ID is in ids in a single query.
func (r *SouvenirRepository) GetByIDs(ctx context.Context, ids []string) (_ []domain.Souvenir, err error) {
	if len(ids) == 0 {
		return []domain.Souvenir{}, nil
	}

	query := `SELECT ` + souvenirColumns + ` FROM souvenirs WHERE id = ANY($1)`

	ctx, end := database.TraceQuery(ctx, "GetSouvenirsByIDs", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("get souvenirs by ids: %w", err)
	}
	return collectSouvenirs(rows)
}

// List returns souvenirs matching the given filter.
func (r *SouvenirRepository) List(ctx context.Context, filter repository.SouvenirFilter) (_ []domain.Souvenir, err error) {
	var (
		conditions []string
		args       []any
		argIndex   = 1
	)

	if filter.MaxPrice != nil {
		conditions = append(conditions, fmt.Sprintf("price <= $%d", argIndex))
		args = append(args, *filter.MaxPrice)
		argIndex++
	}

	if filter.NameContains != nil {
		conditions = append(conditions, fmt.Sprintf("name ILIKE $%d", argIndex))
		args = append(args, "%"+escapeLike(*filter.NameContains)+"%")
		argIndex++
	}

	if filter.FirstReviewSince != nil {
		conditions = append(conditions, fmt.Sprintf(
			"jsonb_array_length(reviews) > 0 AND (reviews->0->>'date')::timestamptz >= $%d", argIndex))
		args = append(args, *filter.FirstReviewSince)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	orderClause := "ORDER BY id"
	if filter.OrderByRatingDesc {
		orderClause = "ORDER BY rating DESC, id"
	}

	limitClause := ""
	if filter.Limit > 0 {
		limitClause = fmt.Sprintf("LIMIT $%d", argIndex)
		args = append(args, filter.Limit)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM souvenirs
		%s
		%s
		%s`,
		souvenirColumns, whereClause, orderClause, limitClause,
	)

	ctx, end := database.TraceQuery(ctx, "ListSouvenirs", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list souvenirs: %w", err)
	}
	return collectSouvenirs(rows)
}

// ListCardsByTag returns the card projection of every souvenir carrying tag.
func (r *SouvenirRepository) ListCardsByTag(ctx context.Context, tag string) (_ []domain.SouvenirCard, err error) {
	query := `SELECT name, image, price FROM souvenirs WHERE $1 = ANY(tags) ORDER BY id`

	ctx, end := database.TraceQuery(ctx, "ListSouvenirCardsByTag", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, tag)
	if err != nil {
		return nil, fmt.Errorf("list souvenir cards by tag: %w", err)
	}
	defer rows.Close()

	var cards []domain.SouvenirCard
	for rows.Next() {
		var c domain.SouvenirCard
		if err := rows.Scan(&c.Name, &c.Image, &c.Price); err != nil {
			return nil, fmt.Errorf("scan souvenir card: %w", err)
		}
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate souvenir card rows: %w", err)
	}

	if cards == nil {
		cards = []domain.SouvenirCard{}
	}
	return cards, nil
}

// Count returns the number of souvenirs matching the filter.
func (r *SouvenirRepository) Count(ctx context.Context, filter repository.CountFilter) (count int64, err error) {
	query := `SELECT count(*) FROM souvenirs WHERE country = $1 AND rating >= $2 AND price <= $3`

	ctx, end := database.TraceQuery(ctx, "CountSouvenirs", query)
	defer func() { end(err) }()

	if err = r.db.QueryRow(ctx, query, filter.Country, filter.MinRating, filter.MaxPrice).Scan(&count); err != nil {
		return 0, fmt.Errorf("count souvenirs: %w", err)
	}
	return count, nil
}

// UpdateReviews writes s.Reviews and s.Rating when the stored version still
// equals expectedVersion. On success s.Version holds the new version.
func (r *SouvenirRepository) UpdateReviews(ctx context.Context, s *domain.Souvenir, expectedVersion int) (err error) {
	reviewsJSON, err := marshalReviews(s.Reviews)
	if err != nil {
		return err
	}

	query := `
		UPDATE souvenirs
		SET reviews = $1, rating = $2, version = version + 1
		WHERE id = $3 AND version = $4`

	ctx, end := database.TraceQuery(ctx, "UpdateSouvenirReviews", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, reviewsJSON, s.Rating, s.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("update souvenir reviews: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.Conflict(fmt.Sprintf("souvenir %s changed since version %d", s.ID, expectedVersion))
	}

	s.Version = expectedVersion + 1
	return nil
}

// DeleteOutOfStock removes every souvenir with amount = 0 in one statement
// and returns their IDs.
func (r *SouvenirRepository) DeleteOutOfStock(ctx context.Context) (_ []string, err error) {
	query := `DELETE FROM souvenirs WHERE amount = 0 RETURNING id`

	ctx, end := database.TraceQuery(ctx, "DeleteOutOfStockSouvenirs", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("delete out-of-stock souvenirs: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan deleted souvenir id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deleted souvenir ids: %w", err)
	}

	return ids, nil
}

// scanSouvenir scans a single row selected with souvenirColumns.
func scanSouvenir(row pgx.Row) (*domain.Souvenir, error) {
	var (
		s           domain.Souvenir
		reviewsJSON []byte
	)

	if err := row.Scan(
		&s.ID,
		&s.Name,
		&s.Image,
		&s.Price,
		&s.Amount,
		&s.Country,
		&s.Rating,
		&s.IsRecent,
		&s.Tags,
		&reviewsJSON,
		&s.Version,
	); err != nil {
		return nil, err
	}

	if reviewsJSON != nil {
		if err := json.Unmarshal(reviewsJSON, &s.Reviews); err != nil {
			return nil, fmt.Errorf("unmarshal reviews: %w", err)
		}
	}

	return &s, nil
}

func collectSouvenirs(rows pgx.Rows) ([]domain.Souvenir, error) {
	defer rows.Close()

	var souvenirs []domain.Souvenir
	for rows.Next() {
		s, err := scanSouvenir(rows)
		if err != nil {
			return nil, fmt.Errorf("scan souvenir row: %w", err)
		}
		souvenirs = append(souvenirs, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate souvenir rows: %w", err)
	}

	if souvenirs == nil {
		souvenirs = []domain.Souvenir{}
	}
	return souvenirs, nil
}

func marshalReviews(reviews []domain.Review) ([]byte, error) {
	if reviews == nil {
		reviews = []domain.Review{}
	}
	b, err := json.Marshal(reviews)
	if err != nil {
		return nil, fmt.Errorf("marshal reviews: %w", err)
	}
	return b, nil
}

// escapeLike escapes the ILIKE metacharacters so the pattern matches s literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
