package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-curriculum-api/pkg/response"
)

const cacheHitKey = "cache_hit"

// WithResponseMeta stamps the start of handling so every JSON envelope reports
// processing_time_ms.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.MarkStart(c)
		c.Next()
	}
}

// SetCacheHit reports whether the response was served from the rollup cache.
func SetCacheHit(c *gin.Context, hit bool) {
	response.SetMeta(c, cacheHitKey, hit)
}
