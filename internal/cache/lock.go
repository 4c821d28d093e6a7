package cache

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"DailyPrompt/storage/redis"
)

// 分布式锁，多副本部署时同一个调度周期只由一个进程执行
const (
	lockPrefix = "lock"
)

// 只删除自己持有的锁
var unlockScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// TryLock 成功时返回 true，value 用于 Unlock 校验持有者
func TryLock(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	fullkey := redis.Key(lockPrefix, key)
	return redis.Client().SetNX(ctx, fullkey, value, ttl).Result()
}

func Unlock(ctx context.Context, key, value string) error {
	fullkey := redis.Key(lockPrefix, key)
	return unlockScript.Run(ctx, redis.Client(), []string{fullkey}, value).Err()
}

// RedisLocker 把包级函数适配成调度循环需要的接口
type RedisLocker struct{}

func (RedisLocker) TryLock(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return TryLock(ctx, key, value, ttl)
}

func (RedisLocker) Unlock(ctx context.Context, key, value string) error {
	return Unlock(ctx, key, value)
}
