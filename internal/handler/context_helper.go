package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/activity-hours-api/internal/middleware"
	"github.com/noah-isme/activity-hours-api/internal/models"
	appErrors "github.com/noah-isme/activity-hours-api/pkg/errors"
	"github.com/noah-isme/activity-hours-api/pkg/response"
)

// claimsFromContext returns the claims stored by the JWT middleware, or nil.
func claimsFromContext(c *gin.Context) *models.JWTClaims {
	if value, exists := c.Get(middleware.ContextUserKey); exists {
		if claims, ok := value.(*models.JWTClaims); ok {
			return claims
		}
	}
	return nil
}

// invalidInput reports a request that could not be bound.
func invalidInput(c *gin.Context, err error, message string) {
	response.Error(c, appErrors.WrapAs(err, appErrors.ErrValidation, message))
}
