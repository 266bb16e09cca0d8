package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/temcen/seasonrec/pkg/models"
)

const productColumns = `
	SELECT p.id, p.name, COALESCE(p.description, ''), p.category_id, COALESCE(c.name, ''),
		p.price, p.featured, p.is_location_specific,
		COALESCE(p.available_countries, ''), COALESCE(p.available_regions, ''),
		COALESCE(r.avg_rating, 0), COALESCE(r.review_count, 0), p.created_at
	FROM products p
	LEFT JOIN categories c ON c.id = p.category_id
	LEFT JOIN (
		SELECT product_id, AVG(rating)::float8 AS avg_rating, COUNT(*) AS review_count
		FROM reviews GROUP BY product_id
	) r ON r.product_id = p.id`

// CatalogStore reads products, categories, seasons and review aggregates
// from PostgreSQL.
type CatalogStore struct {
	db DatabaseQuerier
}

func NewCatalogStore(db DatabaseQuerier) *CatalogStore {
	return &CatalogStore{db: db}
}

func (s *CatalogStore) ListProducts(ctx context.Context) ([]models.Product, error) {
	return s.queryProducts(ctx, productColumns+` ORDER BY p.id`)
}

func (s *CatalogStore) ProductsByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error) {
	out := make(map[uuid.UUID]*models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	products, err := s.queryProducts(ctx, productColumns+` WHERE p.id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	for i := range products {
		out[products[i].ID] = &products[i]
	}
	return out, nil
}

func (s *CatalogStore) ReviewedProducts(ctx context.Context) ([]models.Product, error) {
	return s.queryProducts(ctx, productColumns+`
	WHERE r.review_count > 0
	ORDER BY r.avg_rating DESC, r.review_count DESC, p.id`)
}

func (s *CatalogStore) SeasonalProducts(ctx context.Context) ([]models.Product, error) {
	return s.queryProducts(ctx, productColumns+`
	WHERE EXISTS (SELECT 1 FROM product_seasons ps WHERE ps.product_id = p.id)
	ORDER BY COALESCE(r.avg_rating, 0) DESC, p.featured DESC, p.id`)
}

func (s *CatalogStore) FeaturedProducts(ctx context.Context) ([]models.Product, error) {
	return s.queryProducts(ctx, productColumns+`
	WHERE p.featured
	ORDER BY COALESCE(r.avg_rating, 0) DESC, p.id`)
}

func (s *CatalogStore) queryProducts(ctx context.Context, query string, args ...any) ([]models.Product, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(
			&p.ID, &p.Name, &p.Description, &p.CategoryID, &p.Category,
			&p.Price, &p.Featured, &p.IsLocationSpecific,
			&p.AvailableCountries, &p.AvailableRegions,
			&p.AvgRating, &p.ReviewCount, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read products: %w", err)
	}

	if err := s.attachSeasons(ctx, products); err != nil {
		return nil, err
	}
	return products, nil
}

// attachSeasons loads the season tags of products in one query. A product
// is seasonal exactly when it carries at least one season.
func (s *CatalogStore) attachSeasons(ctx context.Context, products []models.Product) error {
	if len(products) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(products))
	index := make(map[uuid.UUID]int, len(products))
	for i, p := range products {
		ids[i] = p.ID
		index[p.ID] = i
	}

	rows, err := s.db.Query(ctx, `
		SELECT ps.product_id, s.name, s.start_month, s.end_month, s.hemisphere
		FROM product_seasons ps
		JOIN seasons s ON s.id = ps.season_id
		WHERE ps.product_id = ANY($1)
		ORDER BY ps.product_id, s.start_month`, ids)
	if err != nil {
		return fmt.Errorf("failed to query product seasons: %w", err)
	}

	seasons, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (productSeason, error) {
		var ps productSeason
		var hemisphere string
		err := row.Scan(&ps.productID, &ps.season.Name, &ps.season.StartMonth, &ps.season.EndMonth, &hemisphere)
		ps.season.Hemisphere = models.Hemisphere(hemisphere)
		return ps, err
	})
	if err != nil {
		return fmt.Errorf("failed to scan product seasons: %w", err)
	}

	for _, ps := range seasons {
		i, ok := index[ps.productID]
		if !ok {
			continue
		}
		products[i].Seasons = append(products[i].Seasons, ps.season)
		products[i].IsSeasonal = true
	}
	return nil
}

type productSeason struct {
	productID uuid.UUID
	season    models.Season
}
