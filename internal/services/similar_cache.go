package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/temcen/seasonrec/pkg/models"
)

// RedisSimilarCache stores similar-product lists as JSON. Keys include the
// snapshot version, so a retrain makes old entries unreachable and the TTL
// cleans them up.
type RedisSimilarCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

func NewRedisSimilarCache(client *redis.Client, ttl time.Duration, logger *logrus.Logger) *RedisSimilarCache {
	return &RedisSimilarCache{client: client, ttl: ttl, logger: logger}
}

func similarCacheKey(version string, productID uuid.UUID, limit int) string {
	return fmt.Sprintf("similar:%s:%s:%d", version, productID, limit)
}

func (c *RedisSimilarCache) Get(ctx context.Context, version string, productID uuid.UUID, limit int) ([]models.ScoredProduct, bool) {
	data, err := c.client.Get(ctx, similarCacheKey(version, productID, limit)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.WithError(err).WithField("product_id", productID).Warn("Failed to read similar products cache")
		}
		return nil, false
	}

	var items []models.ScoredProduct
	if err := json.Unmarshal(data, &items); err != nil {
		c.logger.WithError(err).WithField("product_id", productID).Warn("Discarding unreadable cache entry")
		return nil, false
	}
	return items, true
}

func (c *RedisSimilarCache) Set(ctx context.Context, version string, productID uuid.UUID, limit int, items []models.ScoredProduct) {
	data, err := json.Marshal(items)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to marshal similar products")
		return
	}
	if err := c.client.Set(ctx, similarCacheKey(version, productID, limit), data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("product_id", productID).Warn("Failed to write similar products cache")
	}
}
