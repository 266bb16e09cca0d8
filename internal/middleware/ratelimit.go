package middleware

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/seasonrec/internal/services"
)

// RateLimiter admits or rejects one request from a client.
type RateLimiter interface {
	Enabled() bool
	IsAllowed(ctx context.Context, client string) (bool, *services.RateLimitInfo)
}

// RateLimit throttles requests per client IP.
func RateLimit(limiter RateLimiter, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || !limiter.Enabled() {
			c.Next()
			return
		}

		client := c.ClientIP()
		allowed, info := limiter.IsAllowed(c.Request.Context(), client)

		c.Header("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime, 10))

		if !allowed {
			logger.WithFields(logrus.Fields{
				"client_ip": client,
				"limit":     info.Limit,
			}).Warn("Rate limit exceeded")

			abort(c, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Rate limit exceeded. Please try again later.")
			return
		}

		c.Next()
	}
}
