package mw

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mozillians/internal/server/resp"
)

const rateLimitWindow = time.Second

// Counter counts hits of key inside a fixed window.
type Counter interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RateLimit allows limitPerSec requests per client IP per second. A limit of
// 0 disables it. Counter failures answer 503.
func RateLimit(logger *zap.Logger, counter Counter, limitPerSec int) gin.HandlerFunc {
	if limitPerSec <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	limit := strconv.Itoa(limitPerSec)
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		count, err := counter.Hit(ctx, c.ClientIP(), rateLimitWindow)
		if err != nil {
			logger.Warn("rate limit counter failed", zap.Error(err))
			resp.Abort(c, http.StatusServiceUnavailable, "error.unavailable")
			return
		}
		c.Header("X-RateLimit-Limit", limit)
		if count > int64(limitPerSec) {
			c.Header("Retry-After", "1")
			resp.Abort(c, http.StatusTooManyRequests, "error.rate_limit")
			return
		}
		c.Next()
	}
}
