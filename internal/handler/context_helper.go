package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-curriculum-api/internal/middleware"
	"github.com/noah-isme/sma-curriculum-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// actorFromContext derives the workflow caller from the verified token. It returns
// false when the request carries no usable identity.
func actorFromContext(c *gin.Context) (models.Actor, bool) {
	claims := claimsFromContext(c)
	if claims == nil || claims.UserID == "" {
		return models.Actor{}, false
	}
	return claims.Actor(), true
}
