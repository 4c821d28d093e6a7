package cache

import (
	"context"
	"time"

	"DailyPrompt/storage/redis"
)

// 绑定码签发计数：dp:link:issue:{accountID}:{minute}
// TTL: 到下一个分钟窗口结束
const linkIssuePrefix = "link:issue"

// IncrLinkIssueCount 增加当前分钟内的签发次数，返回当前次数
func IncrLinkIssueCount(ctx context.Context, accountID string, now time.Time) (int, error) {
	window := now.UTC().Truncate(time.Minute)
	key := redis.Key(linkIssuePrefix, accountID, window.Format("200601021504"))

	count, err := redis.Client().Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}

	if count == 1 { // 窗口内第一次，窗口结束后过期
		redis.Client().Expire(ctx, key, window.Add(time.Minute).Sub(now)+time.Second)
	}

	return int(count), nil
}
