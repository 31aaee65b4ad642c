package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-curriculum-api/internal/models"
	appErrors "github.com/noah-isme/sma-curriculum-api/pkg/errors"
)

type staticTokens map[string]*models.JWTClaims

func (s staticTokens) ValidateToken(token string) (*models.JWTClaims, error) {
	claims, ok := s[token]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return claims, nil
}

func newJWTRouter(tokens TokenValidator, roles ...models.UserRole) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers := []gin.HandlerFunc{JWT(tokens)}
	if len(roles) > 0 {
		handlers = append(handlers, RequireRoles(roles...))
	}
	handlers = append(handlers, func(c *gin.Context) {
		value, _ := c.Get(ContextUserKey)
		c.String(http.StatusOK, value.(*models.JWTClaims).UserID)
	})
	r.POST("/approvals/items/:id/reopen", handlers...)
	return r
}

func serve(r *gin.Engine, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/approvals/items/obj-1/reopen", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTMiddleware(t *testing.T) {
	tokens := staticTokens{
		"teacher":     {UserID: "T1", Role: models.RoleTeacher},
		"coordinator": {UserID: "C1", Role: models.RoleCoordinator},
	}
	r := newJWTRouter(tokens)

	assert.Equal(t, http.StatusUnauthorized, serve(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "Token teacher").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "Bearer forged").Code)

	w := serve(r, "bearer teacher")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "T1", w.Body.String())
}

func TestRequireRolesAfterJWT(t *testing.T) {
	tokens := staticTokens{
		"teacher":     {UserID: "T1", Role: models.RoleTeacher},
		"coordinator": {UserID: "C1", Role: models.RoleCoordinator},
	}
	r := newJWTRouter(tokens, models.RoleSuperAdmin, models.RoleAdmin, models.RoleCoordinator)

	assert.Equal(t, http.StatusForbidden, serve(r, "Bearer teacher").Code)
	w := serve(r, "Bearer coordinator")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "C1", w.Body.String())
}
