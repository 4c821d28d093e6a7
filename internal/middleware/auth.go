package middleware

import (
	"context"
	"fmt"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/hertz-contrib/jwt"

	"DailyPrompt/config"
	"DailyPrompt/pkg/errors"
	"DailyPrompt/pkg/response"
	"DailyPrompt/pkg/token"
)

const (
	IdentityKey = token.IdentityKey
)

var (
	authMiddleware *jwt.HertzJWTMiddleware
)

func initAuthMiddleware() error {
	// 使用 token 包中共享的生成器
	sharedGenerator := token.GetGenerator()
	if sharedGenerator == nil {
		return fmt.Errorf("token generator not initialized, call token.Init() first")
	}

	mw, err := jwt.New(&jwt.HertzJWTMiddleware{
		Realm:            config.Cfg.ServiceName,
		Key:              sharedGenerator.Key,
		Timeout:          sharedGenerator.Timeout,
		IdentityKey:      sharedGenerator.IdentityKey,
		TimeFunc:         sharedGenerator.TimeFunc,
		SigningAlgorithm: "HS256",

		IdentityHandler: func(ctx context.Context, c *app.RequestContext) interface{} {
			accountID, err := token.AccountIDFromClaims(jwt.ExtractClaims(ctx, c))
			if err != nil {
				return nil
			}
			return accountID
		},

		// 只校验外部签发的 token，identity 缺失即拒绝
		Authorizator: func(data interface{}, ctx context.Context, c *app.RequestContext) bool {
			id, ok := data.(string)
			return ok && id != ""
		},

		Unauthorized: func(ctx context.Context, c *app.RequestContext, code int, message string) {
			response.Error(ctx, c, errors.Unauthorized)
		},

		TokenLookup:   "header: Authorization",
		TokenHeadName: "Bearer",
	})
	if err != nil {
		return fmt.Errorf("failed to create jwt middleware: %w", err)
	}
	authMiddleware = mw
	return nil
}

func AuthMiddleware() app.HandlerFunc {
	if authMiddleware == nil {
		panic("AuthMiddleware not initialized, call Init() first")
	}
	return authMiddleware.MiddlewareFunc()
}

// GetAccountID 从请求上下文中获取账户 id
func GetAccountID(ctx context.Context, c *app.RequestContext) (string, bool) {
	v, exists := c.Get(IdentityKey)
	if !exists {
		return "", false
	}

	id, ok := v.(string)
	if !ok || id == "" {
		return "", false
	}

	return id, true
}
