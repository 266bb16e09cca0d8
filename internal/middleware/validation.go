package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/temcen/seasonrec/internal/validation"
)

// ValidationMiddleware checks request bodies against JSON schemas and path
// or query parameters against their formats.
type ValidationMiddleware struct {
	validator *validation.SchemaValidator
	maxLimit  int
}

func NewValidationMiddleware(validator *validation.SchemaValidator, maxLimit int) *ValidationMiddleware {
	return &ValidationMiddleware{
		validator: validator,
		maxLimit:  maxLimit,
	}
}

// ValidateInteractionEvent validates POST /interactions bodies.
func (vm *ValidationMiddleware) ValidateInteractionEvent() gin.HandlerFunc {
	return vm.validateRequestBody(validation.InteractionEvent)
}

func (vm *ValidationMiddleware) validateRequestBody(schemaName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodDelete {
			c.Next()
			return
		}

		bodyBytes, err := io.ReadAll(c.Request.Body)
		if err != nil {
			vm.sendValidationError(c, "BODY_READ_ERROR", "Failed to read request body", map[string]interface{}{
				"error": err.Error(),
			})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

		if len(bodyBytes) == 0 {
			vm.sendValidationError(c, "EMPTY_BODY", "Request body is required", nil)
			return
		}

		if !json.Valid(bodyBytes) {
			vm.sendValidationError(c, "INVALID_JSON", "Request body must be valid JSON", nil)
			return
		}

		result := vm.validator.ValidateBytes(schemaName, bodyBytes)
		if !result.Valid {
			apiError := result.ToAPIError()
			if errorObj, ok := apiError["error"].(map[string]interface{}); ok {
				vm.decorate(c, errorObj)
			}
			c.AbortWithStatusJSON(http.StatusBadRequest, apiError)
			return
		}

		c.Next()
	}
}

// ValidateParams checks the limit query parameter and every UUID path
// parameter the route declares.
func (vm *ValidationMiddleware) ValidateParams() gin.HandlerFunc {
	return func(c *gin.Context) {
		var errs []validation.ValidationError

		if limit := c.Query("limit"); limit != "" {
			if n, err := strconv.Atoi(limit); err != nil || n < 1 || n > vm.maxLimit {
				errs = append(errs, validation.ValidationError{
					Field:   "limit",
					Message: fmt.Sprintf("Limit must be an integer between 1 and %d", vm.maxLimit),
					Code:    "INVALID_QUERY_PARAM",
					Value:   limit,
				})
			}
		}

		for _, p := range c.Params {
			if _, err := uuid.Parse(p.Value); err != nil {
				errs = append(errs, validation.ValidationError{
					Field:   p.Key,
					Message: p.Key + " must be a valid UUID",
					Code:    "INVALID_PATH_PARAM",
					Value:   p.Value,
				})
			}
		}

		if userID := c.Query("user_id"); userID != "" {
			if _, err := uuid.Parse(userID); err != nil {
				errs = append(errs, validation.ValidationError{
					Field:   "user_id",
					Message: "user_id must be a valid UUID",
					Code:    "INVALID_QUERY_PARAM",
					Value:   userID,
				})
			}
		}

		if len(errs) > 0 {
			result := &validation.ValidationResult{Errors: errs}
			apiError := result.ToAPIError()
			if errorObj, ok := apiError["error"].(map[string]interface{}); ok {
				vm.decorate(c, errorObj)
			}
			c.AbortWithStatusJSON(http.StatusBadRequest, apiError)
			return
		}

		c.Next()
	}
}

func (vm *ValidationMiddleware) decorate(c *gin.Context, errorObj map[string]interface{}) {
	errorObj["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	errorObj["requestId"] = c.GetString("request_id")
	errorObj["path"] = c.Request.URL.Path
	errorObj["method"] = c.Request.Method
}

func (vm *ValidationMiddleware) sendValidationError(c *gin.Context, code, message string, details map[string]interface{}) {
	errorObj := map[string]interface{}{
		"code":    code,
		"message": message,
	}
	if details != nil {
		errorObj["details"] = details
	}
	vm.decorate(c, errorObj)
	c.AbortWithStatusJSON(http.StatusBadRequest, map[string]interface{}{"error": errorObj})
}
