package limiter

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MorseWayne/storefront/internal/middleware"
	"github.com/MorseWayne/storefront/internal/resp"
)

const checkTimeout = 500 * time.Millisecond

// MiddlewareConfig 中间件配置
type MiddlewareConfig struct {
	Limiter Limiter

	// KeyGenerator 生成限流 key，默认按客户端 IP
	KeyGenerator func(*gin.Context) string

	// Skip 返回 true 时跳过限流
	Skip func(*gin.Context) bool

	Logger *zap.Logger
}

// IPKeyGenerator 按客户端 IP 限流
func IPKeyGenerator(c *gin.Context) string {
	return fmt.Sprintf("ip:%s", c.ClientIP())
}

// RateLimitMiddleware 创建限流中间件。
// 限流器不可用时放行请求，只记录告警。
func RateLimitMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	if cfg.KeyGenerator == nil {
		cfg.KeyGenerator = IPKeyGenerator
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		if cfg.Skip != nil && cfg.Skip(c) {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), checkTimeout)
		defer cancel()

		result, err := cfg.Limiter.Allow(ctx, cfg.KeyGenerator(c))
		if err != nil {
			cfg.Logger.Warn("rate limiter unavailable, allowing request",
				zap.String("request_id", middleware.RequestIDFromContext(c.Request.Context())),
				zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		if !result.Allowed {
			if result.RetryAfter > 0 {
				c.Header("Retry-After", strconv.FormatInt(int64(result.RetryAfter.Seconds()), 10))
			}
			resp.Error(c.Writer, http.StatusTooManyRequests, resp.CodeTooManyRequests,
				"too many requests, please retry later",
				middleware.RequestIDFromContext(c.Request.Context()), "")
			c.Abort()
			return
		}
		c.Next()
	}
}
