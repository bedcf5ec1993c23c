// Package limiter 公共读接口的限流实现
package limiter

import (
	"context"
	"time"

	"github.com/MorseWayne/storefront/internal/config"
)

// LimitResult 限流结果
type LimitResult struct {
	Allowed    bool          `json:"allowed"`     // 是否允许通过
	Limit      int64         `json:"limit"`       // 桶容量
	Remaining  int64         `json:"remaining"`   // 剩余令牌
	RetryAfter time.Duration `json:"retry_after"` // 建议重试时间
}

// Limiter 限流器接口
type Limiter interface {
	// Allow 检查 key 是否允许一次请求通过
	Allow(ctx context.Context, key string) (*LimitResult, error)

	// Reset 重置 key 的限流状态
	Reset(ctx context.Context, key string) error
}

// Config 令牌桶参数：每个 Window 补充 Rate 个令牌，桶容量为 Burst
type Config struct {
	Rate      int64
	Window    time.Duration
	Burst     int64
	KeyPrefix string
}

// DefaultKeyPrefix Redis key 前缀
const DefaultKeyPrefix = "storefront:ratelimit"

// ConfigFrom 从应用配置构造限流参数，Burst 未配置时取 Rate
func ConfigFrom(cfg config.RateLimitConfig) *Config {
	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.Rate
	}
	return &Config{
		Rate:      cfg.Rate,
		Window:    cfg.Window,
		Burst:     burst,
		KeyPrefix: DefaultKeyPrefix,
	}
}
