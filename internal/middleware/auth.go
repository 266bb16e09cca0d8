package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/temcen/seasonrec/pkg/models"
)

// TokenValidator verifies a bearer token.
type TokenValidator interface {
	ValidateToken(token string) (*models.JWTClaims, error)
}

// Auth requires a valid bearer token whose role is one of roles. With no
// roles any valid token passes.
func Auth(validator TokenValidator, logger *logrus.Logger, roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, http.StatusUnauthorized, "MISSING_AUTHORIZATION", "Authorization header is required")
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
			abort(c, http.StatusUnauthorized, "INVALID_AUTHORIZATION_FORMAT", "Authorization header must be in format 'Bearer <token>'")
			return
		}

		claims, err := validator.ValidateToken(tokenParts[1])
		if err != nil {
			logger.WithError(err).Warn("Invalid JWT token")
			abort(c, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
			return
		}

		if len(roles) > 0 && !hasRole(claims.Role, roles) {
			logger.WithFields(logrus.Fields{
				"user_id": claims.UserID,
				"role":    claims.Role,
				"path":    c.Request.URL.Path,
			}).Warn("Forbidden role")
			abort(c, http.StatusForbidden, "FORBIDDEN", "Insufficient role for this operation")
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("role", claims.Role)
		c.Next()
	}
}

func hasRole(role string, allowed []string) bool {
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}

// GetUserFromContext returns the authenticated user and role.
func GetUserFromContext(c *gin.Context) (uuid.UUID, string) {
	userID, _ := c.Get("user_id")
	role, _ := c.Get("role")

	id, _ := userID.(uuid.UUID)
	r, _ := role.(string)
	return id, r
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, models.NewErrorResponse(code, message))
}
