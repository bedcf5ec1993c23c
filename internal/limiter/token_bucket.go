package limiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// bucketStore 令牌桶依赖的 Redis 命令子集，*redis.Client 满足该接口
type bucketStore interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// TokenBucketLimiter 基于 Redis Lua 脚本的令牌桶，多实例共享同一份计数
type TokenBucketLimiter struct {
	client    bucketStore
	config    Config
	keyPrefix string
}

// NewTokenBucketLimiter 创建令牌桶限流器
func NewTokenBucketLimiter(client bucketStore, cfg *Config) (*TokenBucketLimiter, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if cfg == nil {
		return nil, errors.New("limiter config is required")
	}
	if cfg.Rate <= 0 || cfg.Window < time.Second || cfg.Burst <= 0 {
		return nil, fmt.Errorf("invalid limiter config: rate=%d window=%s burst=%d", cfg.Rate, cfg.Window, cfg.Burst)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &TokenBucketLimiter{client: client, config: *cfg, keyPrefix: prefix}, nil
}

// KEYS[1] 桶 key；ARGV: 容量、速率、窗口秒数、请求令牌数、当前时间戳
const tokenBucketScript = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local window = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])
local now = tonumber(ARGV[5])

local bucket = redis.call('HMGET', key, 'tokens', 'last_refill')
local tokens = tonumber(bucket[1]) or capacity
local last_refill = tonumber(bucket[2]) or now

local refill = math.floor(math.max(0, now - last_refill) * rate / window)
if refill > 0 then
    tokens = math.min(capacity, tokens + refill)
    last_refill = now
end

local allowed = 0
local retry_after = 0
if tokens >= requested then
    tokens = tokens - requested
    allowed = 1
else
    retry_after = math.ceil((requested - tokens) * window / rate)
end

redis.call('HSET', key, 'tokens', tokens, 'last_refill', last_refill)
redis.call('EXPIRE', key, window * 2)
return {allowed, tokens, retry_after}
`

func (tb *TokenBucketLimiter) key(key string) string {
	return fmt.Sprintf("%s:%s", tb.keyPrefix, key)
}

// Allow 检查是否允许一次请求通过
func (tb *TokenBucketLimiter) Allow(ctx context.Context, key string) (*LimitResult, error) {
	res, err := tb.client.Eval(ctx, tokenBucketScript,
		[]string{tb.key(key)},
		tb.config.Burst,
		tb.config.Rate,
		int64(tb.config.Window.Seconds()),
		1,
		time.Now().Unix(),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to execute token bucket script: %w", err)
	}

	values, ok := res.([]interface{})
	if !ok || len(values) != 3 {
		return nil, fmt.Errorf("unexpected token bucket result: %v", res)
	}
	allowed, ok1 := values[0].(int64)
	remaining, ok2 := values[1].(int64)
	retryAfter, ok3 := values[2].(int64)
	if !ok1 || !ok2 || !ok3 {
		return nil, fmt.Errorf("unexpected token bucket result: %v", values)
	}

	return &LimitResult{
		Allowed:    allowed == 1,
		Limit:      tb.config.Burst,
		Remaining:  remaining,
		RetryAfter: time.Duration(retryAfter) * time.Second,
	}, nil
}

// Reset 重置令牌桶
func (tb *TokenBucketLimiter) Reset(ctx context.Context, key string) error {
	if err := tb.client.Del(ctx, tb.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to reset token bucket: %w", err)
	}
	return nil
}
