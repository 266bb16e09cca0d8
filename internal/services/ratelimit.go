package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/temcen/seasonrec/internal/config"
)

type RateLimitInfo struct {
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	ResetTime int64 `json:"reset_time"`
}

// RateLimitService is a Redis sorted-set sliding window keyed by client.
type RateLimitService struct {
	client *redis.Client
	config config.RateLimitConfig
	logger *logrus.Logger
}

func NewRateLimitService(client *redis.Client, cfg config.RateLimitConfig, logger *logrus.Logger) *RateLimitService {
	return &RateLimitService{
		client: client,
		config: cfg,
		logger: logger,
	}
}

func (s *RateLimitService) Enabled() bool {
	return s.config.Enabled && s.config.Requests > 0 && s.config.Window > 0
}

// IsAllowed records one request for client and reports whether it fits in
// the window. Redis failures allow the request.
func (s *RateLimitService) IsAllowed(ctx context.Context, client string) (bool, *RateLimitInfo) {
	limit := s.config.Requests
	window := s.config.Window
	now := time.Now()
	info := &RateLimitInfo{Limit: limit, Remaining: limit - 1, ResetTime: now.Add(window).Unix()}

	key := fmt.Sprintf("rate_limit:events:%s", client)

	pipe := s.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(now.Add(-window).UnixNano(), 10))
	countCmd := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: strconv.FormatInt(now.UnixNano(), 10),
	})
	pipe.Expire(ctx, key, window)

	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.WithError(err).Error("Failed to execute rate limit pipeline")
		return true, info
	}

	info.Remaining = max(limit-int(countCmd.Val())-1, 0)
	return int(countCmd.Val()) < limit, info
}
