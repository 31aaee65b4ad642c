package requestid

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, inbound string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	var seen string
	r := gin.New()
	r.Use(Middleware())
	r.GET("/ping", func(c *gin.Context) {
		require.Equal(t, Value(c), FromContext(c.Request.Context()))
		seen = Value(c)
		c.Status(http.StatusNoContent)
	})
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	if inbound != "" {
		req.Header.Set(Header, inbound)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w, seen
}

func TestMiddlewareReusesWellFormedID(t *testing.T) {
	w, seen := serve(t, "req-2024-approval-01")
	assert.Equal(t, "req-2024-approval-01", seen)
	assert.Equal(t, seen, w.Header().Get(Header))
}

func TestMiddlewareReplacesMissingOrUnsafeID(t *testing.T) {
	for _, inbound := range []string{"", "short", "bad id\nwith newline", "x<script>alert(1)</script>"} {
		_, seen := serve(t, inbound)
		_, err := uuid.Parse(seen)
		assert.NoError(t, err, "inbound %q", inbound)
	}
}
