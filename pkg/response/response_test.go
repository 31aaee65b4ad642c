package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/sma-curriculum-api/pkg/errors"
	"github.com/noah-isme/sma-curriculum-api/pkg/middleware/requestid"
)

func newRouter(handler gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(requestid.Middleware())
	r.GET("/approvals/skills/rollup", handler)
	return r
}

func serve(t *testing.T, r *gin.Engine) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/approvals/skills/rollup", nil)
	req.Header.Set(requestid.Header, "req-rollup-000001")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestJSONMergesContextMeta(t *testing.T) {
	r := newRouter(func(c *gin.Context) {
		MarkStart(c)
		SetMeta(c, "cache_hit", true)
		SetMeta(c, "succeeded", 1)
		JSON(c, http.StatusOK, gin.H{"status": "pending"}, nil, map[string]interface{}{"succeeded": 2})
	})
	w, body := serve(t, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Equal(t, "req-rollup-000001", body["requestId"])
	meta := body["meta"].(map[string]interface{})
	assert.Equal(t, true, meta["cache_hit"])
	assert.Equal(t, float64(2), meta["succeeded"])
	assert.Contains(t, meta, "processing_time_ms")
}

func TestJSONOmitsEmptyMeta(t *testing.T) {
	r := newRouter(func(c *gin.Context) { JSON(c, http.StatusOK, gin.H{"status": "draft"}, nil) })
	_, body := serve(t, r)
	assert.NotContains(t, body, "meta")
}

func TestErrorRecordsServerFailures(t *testing.T) {
	var recorded int
	r := newRouter(func(c *gin.Context) {
		Error(c, errors.New("redis down"))
		recorded = len(c.Errors)
	})
	w, body := serve(t, r)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, 1, recorded)
	assert.Equal(t, "req-rollup-000001", body["requestId"])

	r = newRouter(func(c *gin.Context) {
		Error(c, appErrors.ErrNotFound)
		recorded = len(c.Errors)
	})
	w, _ = serve(t, r)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Zero(t, recorded)
}
