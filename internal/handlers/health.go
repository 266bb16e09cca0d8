package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/seasonrec/internal/services"
)

type HealthChecker interface {
	CheckHealth(ctx context.Context) *services.HealthStatus
}

// HealthHandler serves the readiness report and a dependency-free liveness
// check.
type HealthHandler struct {
	logger        *logrus.Logger
	healthService HealthChecker
	startedAt     time.Time
	now           func() time.Time
}

func NewHealthHandler(logger *logrus.Logger, healthService HealthChecker) *HealthHandler {
	return &HealthHandler{
		logger:        logger,
		healthService: healthService,
		startedAt:     time.Now(),
		now:           time.Now,
	}
}

// Check runs every dependency check. Degraded answers 200, unhealthy 503.
func (h *HealthHandler) Check(c *gin.Context) {
	status := h.healthService.CheckHealth(c.Request.Context())

	httpStatus := statusCode(status.Status)
	if httpStatus != http.StatusOK {
		h.logger.WithFields(logrus.Fields{
			"status":   status.Status,
			"critical": status.Critical,
		}).Warn("Health check failed")
	}

	c.JSON(httpStatus, status)
}

// Live reports that the process is serving requests.
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
		"uptime": h.now().Sub(h.startedAt).Truncate(time.Second).String(),
	})
}

func statusCode(status string) int {
	switch status {
	case services.HealthHealthy, services.HealthDegraded:
		return http.StatusOK
	case services.HealthUnhealthy:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
