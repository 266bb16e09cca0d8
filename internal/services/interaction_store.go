package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/temcen/seasonrec/pkg/models"
)

// InteractionStore owns user_product_interactions. View and cart rows
// arrive as events; review and purchase rows are derived from the catalog.
type InteractionStore struct {
	db DatabaseQuerier
}

func NewInteractionStore(db DatabaseQuerier) *InteractionStore {
	return &InteractionStore{db: db}
}

const interactionColumns = `SELECT user_id, product_id, interaction_type, value, created_at FROM user_product_interactions`

func (s *InteractionStore) AllInteractions(ctx context.Context) ([]models.InteractionRecord, error) {
	return s.query(ctx, interactionColumns+` ORDER BY user_id, product_id, interaction_type`)
}

func (s *InteractionStore) UserInteractions(ctx context.Context, userID uuid.UUID) ([]models.InteractionRecord, error) {
	return s.query(ctx, interactionColumns+` WHERE user_id = $1 ORDER BY created_at`, userID)
}

func (s *InteractionStore) query(ctx context.Context, query string, args ...any) ([]models.InteractionRecord, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.InteractionRecord, error) {
		var r models.InteractionRecord
		var kind string
		err := row.Scan(&r.UserID, &r.ProductID, &kind, &r.Strength, &r.CreatedAt)
		r.Type = models.InteractionType(kind)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan interactions: %w", err)
	}
	return records, nil
}

func (s *InteractionStore) LatestReviewRatings(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]int, error) {
	rows, err := s.db.Query(ctx, `
		SELECT DISTINCT ON (product_id) product_id, rating
		FROM reviews
		WHERE user_id = $1
		ORDER BY product_id, created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reviews: %w", err)
	}
	defer rows.Close()

	ratings := make(map[uuid.UUID]int)
	for rows.Next() {
		var productID uuid.UUID
		var rating int
		if err := rows.Scan(&productID, &rating); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		ratings[productID] = rating
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read reviews: %w", err)
	}
	return ratings, nil
}

// RecordEvent upserts one event. Repeated events of the same type add to
// the stored strength.
func (s *InteractionStore) RecordEvent(ctx context.Context, record models.InteractionRecord) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO user_product_interactions (user_id, product_id, interaction_type, value, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, product_id, interaction_type)
		DO UPDATE SET value = user_product_interactions.value + EXCLUDED.value,
			created_at = EXCLUDED.created_at`,
		record.UserID, record.ProductID, string(record.Type), record.Strength, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record interaction: %w", err)
	}
	return nil
}

// RebuildFromCatalog replaces the review and purchase rows with rows derived
// from reviews (strength = rating) and order items (strength = total
// quantity). Event rows are left alone.
func (s *InteractionStore) RebuildFromCatalog(ctx context.Context) (RebuildResult, error) {
	var result RebuildResult

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		DELETE FROM user_product_interactions
		WHERE interaction_type IN ('review', 'purchase')`); err != nil {
		return result, fmt.Errorf("failed to clear derived interactions: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO user_product_interactions (user_id, product_id, interaction_type, value, created_at)
		SELECT DISTINCT ON (user_id, product_id) user_id, product_id, 'review', rating, created_at
		FROM reviews
		ORDER BY user_id, product_id, created_at DESC`)
	if err != nil {
		return result, fmt.Errorf("failed to derive review interactions: %w", err)
	}
	result.Reviews = tag.RowsAffected()

	tag, err = tx.Exec(ctx, `
		INSERT INTO user_product_interactions (user_id, product_id, interaction_type, value, created_at)
		SELECT o.user_id, oi.product_id, 'purchase', SUM(oi.quantity), MAX(o.created_at)
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		GROUP BY o.user_id, oi.product_id`)
	if err != nil {
		return result, fmt.Errorf("failed to derive purchase interactions: %w", err)
	}
	result.Purchases = tag.RowsAffected()

	if err := tx.Commit(ctx); err != nil {
		return result, fmt.Errorf("failed to commit interaction rebuild: %w", err)
	}
	return result, nil
}

func (s *InteractionStore) Count(ctx context.Context) (int64, error) {
	return countRows(ctx, s.db, "user_product_interactions")
}

func countRows(ctx context.Context, db DatabaseQuerier, table string) (int64, error) {
	var n int64
	if err := db.QueryRow(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

// UserStore reads the externally owned users table.
type UserStore struct {
	db DatabaseQuerier
}

func NewUserStore(db DatabaseQuerier) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	err := s.db.QueryRow(ctx, `
		SELECT id, COALESCE(country, ''), COALESCE(state, '')
		FROM users WHERE id = $1`, userID).Scan(&user.ID, &user.Country, &user.Region)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}
