package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MorseWayne/storefront/internal/cache"
	"github.com/MorseWayne/storefront/internal/resp"
)

// HeaderIdempotencyKey 客户端提供的幂等键
const HeaderIdempotencyKey = "X-Idempotency-Key"

// Idempotency 拒绝在 ttl 内重复提交的同一幂等键；未携带幂等键的请求直接放行。
// 处理失败（状态码 >= 400）时释放幂等键，允许客户端重试。
func Idempotency(store cache.Cache, ttl time.Duration, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" || store == nil {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		reqID := RequestIDFromContext(ctx)
		cacheKey := "idempotency:" + c.Request.Method + ":" + c.FullPath() + ":" + key

		seen, err := store.Exists(ctx, cacheKey)
		if err != nil {
			// 缓存不可用时不阻塞写操作
			logger.Warn("idempotency check failed", zap.String("request_id", reqID), zap.Error(err))
			c.Next()
			return
		}
		if seen {
			resp.Error(c.Writer, http.StatusConflict, resp.CodeConflict, "duplicate request", reqID, "")
			c.Abort()
			return
		}
		if err := store.Set(ctx, cacheKey, reqID, ttl); err != nil {
			logger.Warn("failed to store idempotency key", zap.String("request_id", reqID), zap.Error(err))
		}

		c.Next()

		if c.Writer.Status() >= http.StatusBadRequest {
			_ = store.Del(ctx, cacheKey)
		}
	}
}
