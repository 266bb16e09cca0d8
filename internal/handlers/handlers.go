package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/temcen/seasonrec/internal/config"
	"github.com/temcen/seasonrec/internal/services"
	"github.com/temcen/seasonrec/pkg/models"
)

type Handlers struct {
	Health         *HealthHandler
	Interaction    *InteractionHandler
	Recommendation *RecommendationHandler
	Admin          *AdminHandler
}

func New(logger *logrus.Logger, cfg *config.Config, svc *services.Services) *Handlers {
	limits := Limits{
		Default: cfg.Recommendation.DefaultLimit,
		Max:     cfg.Recommendation.MaxLimit,
	}

	return &Handlers{
		Health:         NewHealthHandler(logger, svc.Health),
		Interaction:    NewInteractionHandler(logger, svc.UserInteraction),
		Recommendation: NewRecommendationHandler(svc.RecommendationOrchestrator, limits, logger),
		Admin: NewAdminHandler(AdminDeps{
			Models:   svc.RecommendationOrchestrator,
			Registry: svc.Registry,
			Rebuild:  svc.UserInteraction,
			Jobs:     svc.JobManager,
		}, logger),
	}
}

// Limits bounds the limit query parameter.
type Limits struct {
	Default int
	Max     int
}

// parse returns the limit query parameter clamped to [1, Max], or Default
// when absent or malformed.
func (l Limits) parse(c *gin.Context) int {
	limit := l.Default
	if limit <= 0 {
		limit = 10
	}
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if l.Max > 0 && limit > l.Max {
		limit = l.Max
	}
	return limit
}

// optionalUserID reads the user_id query parameter. ok is false when the
// parameter is present but malformed.
func optionalUserID(c *gin.Context) (*uuid.UUID, bool) {
	raw := c.Query("user_id")
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, false
	}
	return &id, true
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, models.NewErrorResponse(code, message))
}

func badRequest(c *gin.Context, code, message string) {
	respondError(c, http.StatusBadRequest, code, message)
}
