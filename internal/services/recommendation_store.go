package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/temcen/seasonrec/pkg/models"
)

// RecommendationStore holds the materialized per-user lists.
type RecommendationStore struct {
	db  DatabaseQuerier
	now func() time.Time
}

func NewRecommendationStore(db DatabaseQuerier) *RecommendationStore {
	return &RecommendationStore{db: db, now: time.Now}
}

func (s *RecommendationStore) ReplaceForUser(ctx context.Context, userID uuid.UUID, recs []models.ScoredProduct) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM user_product_recommendations WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to clear recommendations: %w", err)
	}

	createdAt := s.now()
	for _, rec := range recs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO user_product_recommendations (user_id, product_id, score, created_at)
			VALUES ($1, $2, $3, $4)`,
			userID, rec.ProductID, rec.Score, createdAt); err != nil {
			return fmt.Errorf("failed to insert recommendation: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit recommendations: %w", err)
	}
	return nil
}

func (s *RecommendationStore) Count(ctx context.Context) (int64, error) {
	return countRows(ctx, s.db, "user_product_recommendations")
}

// SimilarityStore holds the product_similarities table. Pairs are stored
// in both directions.
type SimilarityStore struct {
	db  DatabaseQuerier
	now func() time.Time
}

func NewSimilarityStore(db DatabaseQuerier) *SimilarityStore {
	return &SimilarityStore{db: db, now: time.Now}
}

func (s *SimilarityStore) ReplaceAll(ctx context.Context, pairs []models.ProductSimilarity) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM product_similarities`); err != nil {
		return fmt.Errorf("failed to clear similarities: %w", err)
	}

	if len(pairs) > 0 {
		updatedAt := s.now()
		rows := make([][]any, len(pairs))
		for i, p := range pairs {
			rows[i] = []any{p.Product1ID, p.Product2ID, p.Score, updatedAt}
		}
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"product_similarities"},
			[]string{"product1_id", "product2_id", "similarity_score", "updated_at"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return fmt.Errorf("failed to copy similarities: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit similarities: %w", err)
	}
	return nil
}

func (s *SimilarityStore) SimilarTo(ctx context.Context, productID uuid.UUID, limit int) ([]models.ProductSimilarity, error) {
	rows, err := s.db.Query(ctx, `
		SELECT product1_id, product2_id, similarity_score
		FROM product_similarities
		WHERE product1_id = $1
		ORDER BY similarity_score DESC, product2_id
		LIMIT $2`, productID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query similarities: %w", err)
	}

	pairs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.ProductSimilarity, error) {
		var p models.ProductSimilarity
		err := row.Scan(&p.Product1ID, &p.Product2ID, &p.Score)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan similarities: %w", err)
	}
	return pairs, nil
}

func (s *SimilarityStore) Count(ctx context.Context) (int64, error) {
	return countRows(ctx, s.db, "product_similarities")
}
