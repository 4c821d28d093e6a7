package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"DailyPrompt/internal/cache"
	"DailyPrompt/pkg/errors"
	"DailyPrompt/pkg/logger"
	"DailyPrompt/pkg/response"
	"DailyPrompt/storage/redis"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	// 时间窗口
	Window time.Duration
	// 时间窗口内最大请求数
	MaxRequests int
	// 限流键前缀
	KeyPrefix string
	// 是否按账户限流（需要在 AuthMiddleware 之后）
	ByAccount bool
	// 是否按IP限流
	ByIP bool
	// 超过限制后禁止访问的时间，0 表示不额外封禁
	BlockDuration time.Duration
}

// DefaultRateLimitConfig 账户 API 通用限流
var DefaultRateLimitConfig = RateLimitConfig{
	Window:      time.Minute,
	MaxRequests: 100,
	KeyPrefix:   "rate:api",
	ByAccount:   true,
	ByIP:        true,
}

// SettingsRateLimitConfig 投递设置写入
var SettingsRateLimitConfig = RateLimitConfig{
	Window:        10 * time.Minute,
	MaxRequests:   20,
	KeyPrefix:     "rate:settings",
	ByAccount:     true,
	BlockDuration: 30 * time.Minute,
}

// RateLimiter 基于 zset 的滑动窗口限流
type RateLimiter struct {
	config RateLimitConfig
	now    func() time.Time
}

func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		config: config,
		now:    time.Now,
	}
}

func (rl *RateLimiter) getKey(ctx context.Context, c *app.RequestContext) string {
	var identifier string

	if rl.config.ByAccount {
		if accountID, exists := GetAccountID(ctx, c); exists {
			identifier = "account:" + accountID
		}
	}

	if identifier == "" && (rl.config.ByIP || rl.config.ByAccount) {
		identifier = "ip:" + c.ClientIP()
	}

	return redis.Key(rl.config.KeyPrefix, identifier)
}

// Allow 检查是否允许请求，返回窗口内的请求数
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, int, error) {
	now := rl.now()
	windowStart := now.Add(-rl.config.Window)

	var count int
	err := cache.RedisBreaker.Call(ctx, func(ctx context.Context) error {
		pipe := redis.Client().TxPipeline()

		// 移除窗口之前的请求记录
		pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixNano(), 10))
		pipe.ZAdd(ctx, key, redislib.Z{
			Score:  float64(now.UnixNano()),
			Member: now.UnixNano(),
		})
		zcard := pipe.ZCard(ctx, key)
		pipe.Expire(ctx, key, rl.config.Window+10*time.Second)

		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to execute pipeline: %w", err)
		}
		count = int(zcard.Val())
		return nil
	})
	if err != nil {
		return false, 0, err
	}

	return count <= rl.config.MaxRequests, count, nil
}

func (rl *RateLimiter) blockKey(key string) string {
	return redis.Key(rl.config.KeyPrefix, "block", key)
}

func (rl *RateLimiter) Block(ctx context.Context, key string) error {
	if rl.config.BlockDuration <= 0 {
		return nil
	}
	return redis.Client().Set(ctx, rl.blockKey(key), "1", rl.config.BlockDuration).Err()
}

func (rl *RateLimiter) IsBlocked(ctx context.Context, key string) (bool, error) {
	if rl.config.BlockDuration <= 0 {
		return false, nil
	}
	result, err := redis.Client().Exists(ctx, rl.blockKey(key)).Result()
	return result > 0, err
}

// RateLimitMiddleware Redis 不可用时放行，只记录告警
func RateLimitMiddleware(config RateLimitConfig) app.HandlerFunc {
	limiter := NewRateLimiter(config)

	return func(ctx context.Context, c *app.RequestContext) {
		key := limiter.getKey(ctx, c)

		blocked, err := limiter.IsBlocked(ctx, key)
		if err != nil {
			logger.Logger.Warn("Failed to check block status, allowing request", zap.Error(err))
			c.Next(ctx)
			return
		}
		if blocked {
			response.Error(ctx, c, errors.TooManyRequests)
			c.Abort()
			return
		}

		allowed, count, err := limiter.Allow(ctx, key)
		if err != nil {
			logger.Logger.Warn("Failed to check rate limit, allowing request", zap.Error(err))
			c.Next(ctx)
			return
		}

		remaining := config.MaxRequests - count
		if remaining < 0 {
			remaining = 0
		}
		c.Response.Header.Set("X-RateLimit-Limit", strconv.Itoa(config.MaxRequests))
		c.Response.Header.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Response.Header.Set("X-RateLimit-Reset", strconv.FormatInt(limiter.now().Add(config.Window).Unix(), 10))

		if !allowed {
			if err := limiter.Block(ctx, key); err != nil {
				logger.Logger.Warn("Failed to block client", zap.String("key", key), zap.Error(err))
			}
			response.Error(ctx, c, errors.TooManyRequests)
			c.Abort()
			return
		}

		c.Next(ctx)
	}
}

func GeneralRateLimitMiddleware() app.HandlerFunc {
	return RateLimitMiddleware(DefaultRateLimitConfig)
}

func SettingsRateLimitMiddleware() app.HandlerFunc {
	return RateLimitMiddleware(SettingsRateLimitConfig)
}
