package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/temcen/seasonrec/pkg/models"
)

// Recommender serves the read side of the service.
type Recommender interface {
	GetRecommendationsForUser(ctx context.Context, userID uuid.UUID, limit int) (*models.RecommendationResponse, error)
	GetSimilarProducts(ctx context.Context, productID uuid.UUID, limit int, userID *uuid.UUID) (*models.SimilarProductsResponse, error)
	GetSeasonalRecommendations(ctx context.Context, userID *uuid.UUID, limit int) (*models.ProductListResponse, error)
	GetFeaturedProducts(ctx context.Context, userID *uuid.UUID, limit int) (*models.ProductListResponse, error)
}

type RecommendationHandler struct {
	recommender Recommender
	limits      Limits
	logger      *logrus.Logger
}

func NewRecommendationHandler(recommender Recommender, limits Limits, logger *logrus.Logger) *RecommendationHandler {
	return &RecommendationHandler{
		recommender: recommender,
		limits:      limits,
		logger:      logger,
	}
}

// Get handles GET /recommendations/:userId.
func (h *RecommendationHandler) Get(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		badRequest(c, "INVALID_USER_ID", "Invalid user ID format")
		return
	}
	limit := h.limits.parse(c)

	response, err := h.recommender.GetRecommendationsForUser(c.Request.Context(), userID, limit)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Error("Failed to generate recommendations")
		respondError(c, http.StatusInternalServerError, "RECOMMENDATION_FAILED", "Failed to generate recommendations")
		return
	}

	c.JSON(http.StatusOK, response)
}

// Similar handles GET /products/:productId/similar.
func (h *RecommendationHandler) Similar(c *gin.Context) {
	productID, err := uuid.Parse(c.Param("productId"))
	if err != nil {
		badRequest(c, "INVALID_PRODUCT_ID", "Invalid product ID format")
		return
	}
	userID, ok := optionalUserID(c)
	if !ok {
		badRequest(c, "INVALID_USER_ID", "Invalid user ID format")
		return
	}
	limit := h.limits.parse(c)

	response, err := h.recommender.GetSimilarProducts(c.Request.Context(), productID, limit, userID)
	if err != nil {
		h.logger.WithError(err).WithField("product_id", productID).Error("Failed to find similar products")
		respondError(c, http.StatusInternalServerError, "SIMILAR_PRODUCTS_FAILED", "Failed to find similar products")
		return
	}

	c.JSON(http.StatusOK, response)
}

// Seasonal handles GET /products/seasonal.
func (h *RecommendationHandler) Seasonal(c *gin.Context) {
	h.productList(c, "seasonal", h.recommender.GetSeasonalRecommendations)
}

// Featured handles GET /products/featured.
func (h *RecommendationHandler) Featured(c *gin.Context) {
	h.productList(c, "featured", h.recommender.GetFeaturedProducts)
}

func (h *RecommendationHandler) productList(
	c *gin.Context,
	name string,
	list func(ctx context.Context, userID *uuid.UUID, limit int) (*models.ProductListResponse, error),
) {
	userID, ok := optionalUserID(c)
	if !ok {
		badRequest(c, "INVALID_USER_ID", "Invalid user ID format")
		return
	}
	limit := h.limits.parse(c)

	response, err := list(c.Request.Context(), userID, limit)
	if err != nil {
		h.logger.WithError(err).WithField("list", name).Error("Failed to list products")
		respondError(c, http.StatusInternalServerError, "PRODUCT_LIST_FAILED", "Failed to list "+name+" products")
		return
	}

	c.JSON(http.StatusOK, response)
}
