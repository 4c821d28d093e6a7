package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	ri "github.com/redis/go-redis/v9"

	"DailyPrompt/storage/redis"
)

const (
	// 空值缓存标识
	emptyValueFlag = "__EMPTY__"
	// 空值缓存TTL，较短时间避免长期占用
	emptyValueTTL = 5 * time.Minute
	// 防雪崩随机延迟范围
	jitterMax = 20 * time.Millisecond
)

// ProtectedCache 带空值保护的 JSON 缓存，读写都经过 RedisBreaker
type ProtectedCache struct {
	keyPrefix string
	ttl       time.Duration
	emptyTTL  time.Duration
	jitter    time.Duration
}

func NewProtectedCache(keyPrefix string, ttl time.Duration) *ProtectedCache {
	return &ProtectedCache{
		keyPrefix: keyPrefix,
		ttl:       ttl,
		emptyTTL:  emptyValueTTL,
		jitter:    jitterMax,
	}
}

// Set value 为 nil 时写入空值标识
func (pc *ProtectedCache) Set(ctx context.Context, key string, value interface{}) error {
	cacheKey := redis.Key(pc.keyPrefix, key)

	data := emptyValueFlag
	ttl := pc.emptyTTL
	if value != nil {
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to marshal cache value: %w", err)
		}
		data = string(raw)
		ttl = pc.ttl
	}

	return RedisBreaker.Call(ctx, func(ctx context.Context) error {
		return redis.Client().Set(ctx, cacheKey, data, ttl).Err()
	})
}

// Get 返回 (命中, 是否空值, error)
func (pc *ProtectedCache) Get(ctx context.Context, key string, dest interface{}) (hit bool, empty bool, err error) {
	cacheKey := redis.Key(pc.keyPrefix, key)

	if err := pc.addJitter(ctx); err != nil {
		return false, false, err
	}

	var data string
	err = RedisBreaker.Call(ctx, func(ctx context.Context) error {
		var getErr error
		data, getErr = redis.Client().Get(ctx, cacheKey).Result()
		return getErr
	}, func(err error) bool { return errors.Is(err, ri.Nil) })
	if errors.Is(err, ri.Nil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("failed to get cache: %w", err)
	}

	if data == emptyValueFlag {
		return true, true, nil
	}
	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return false, false, fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return true, false, nil
}

func (pc *ProtectedCache) Delete(ctx context.Context, key string) error {
	cacheKey := redis.Key(pc.keyPrefix, key)
	return RedisBreaker.Call(ctx, func(ctx context.Context) error {
		return redis.Client().Del(ctx, cacheKey).Err()
	})
}

func (pc *ProtectedCache) addJitter(ctx context.Context) error {
	if pc.jitter <= 0 {
		return nil
	}
	delay := time.Duration(rand.Int63n(int64(pc.jitter)))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// 预定义的缓存实例
var (
	// 接收者设置，按账户缓存，写入设置或绑定身份时失效
	RecipientSettingsCache = NewProtectedCache("recipient:settings", 10*time.Minute)
)
