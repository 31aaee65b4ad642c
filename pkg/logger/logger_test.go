package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/sma-curriculum-api/pkg/middleware/requestid"
)

func TestGinMiddlewareLogsRouteTemplateAndActor(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)

	r := gin.New()
	r.Use(requestid.Middleware(), GinMiddleware(zap.New(core)))
	r.POST("/approvals/items/:id/decision", func(c *gin.Context) {
		c.Set(ActorContextKey, "T1")
		c.Status(http.StatusConflict)
	})

	req := httptest.NewRequest(http.MethodPost, "/approvals/items/obj-1/decision", nil)
	req.Header.Set(requestid.Header, "req-approval-0001")
	r.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	fields := entry.ContextMap()
	assert.Equal(t, "/approvals/items/:id/decision", fields["route"])
	assert.Equal(t, "obj-1", fields["item_id"])
	assert.Equal(t, "T1", fields["teacher_id"])
	assert.Equal(t, "req-approval-0001", fields["request_id"])
}

func TestFromContextAddsRequestID(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	FromContext(requestid.WithValue(context.Background(), "req-approval-0002"), base).Info("approval status changed")
	FromContext(context.Background(), base).Info("no request")

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "req-approval-0002", logs.All()[0].ContextMap()["request_id"])
	assert.NotContains(t, logs.All()[1].ContextMap(), "request_id")
}
