package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-curriculum-api/internal/models"
	appErrors "github.com/noah-isme/sma-curriculum-api/pkg/errors"
	"github.com/noah-isme/sma-curriculum-api/pkg/response"
)

// RequireRoles admits only callers whose token carries one of roles. It must run
// after JWT.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(c *gin.Context) {
		value, exists := c.Get(ContextUserKey)
		claims, ok := value.(*models.JWTClaims)
		if !exists || !ok || claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "role "+string(claims.Role)+" may not perform this action"))
			c.Abort()
			return
		}
		c.Next()
	}
}
