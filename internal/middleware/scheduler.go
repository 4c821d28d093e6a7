package middleware

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"go.uber.org/zap"

	"DailyPrompt/pkg/errors"
	"DailyPrompt/pkg/logger"
	"DailyPrompt/pkg/response"
)

const SchedulerSecretHeader = "X-Scheduler-Secret"

// SchedulerAuth 调度触发入口的鉴权：共享密钥或平台注入的可信请求头二选一。
// 两者都未配置时拒绝所有请求。
func SchedulerAuth(secret, trustedHeader string) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		if schedulerAllowed(c, secret, trustedHeader) {
			c.Next(ctx)
			return
		}

		logger.Logger.Warn("Rejected scheduler trigger",
			zap.String("client_ip", c.ClientIP()),
			zap.String("path", string(c.Path())),
		)
		response.Error(ctx, c, errors.SchedulerUnauthorized)
		c.Abort()
	}
}

func schedulerAllowed(c *app.RequestContext, secret, trustedHeader string) bool {
	if trustedHeader != "" {
		if v := strings.TrimSpace(string(c.GetHeader(trustedHeader))); v != "" && !strings.EqualFold(v, "false") {
			return true
		}
	}

	if secret == "" {
		return false
	}

	presented := string(c.GetHeader(SchedulerSecretHeader))
	if presented == "" {
		if auth := string(c.GetHeader("Authorization")); strings.HasPrefix(auth, "Bearer ") {
			presented = strings.TrimPrefix(auth, "Bearer ")
		}
	}
	if presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) == 1
}
