package handler

import (
	"context"
	"errors"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"DailyPrompt/storage/database"
	"DailyPrompt/storage/redis"
)

var errNoDatabase = errors.New("database not initialized")

// Healthz 数据库不可用时返回 503，Redis 只影响限流和去重，不影响可用性
// GET /healthz
func Healthz(ctx context.Context, c *app.RequestContext) {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := consts.StatusOK
	checks := utils.H{"database": "ok", "redis": "ok"}

	if err := pingDatabase(pingCtx); err != nil {
		status = consts.StatusServiceUnavailable
		checks["database"] = err.Error()
	}
	if err := redis.Client().Ping(pingCtx).Err(); err != nil {
		checks["redis"] = err.Error()
	}

	state := "ok"
	if status != consts.StatusOK {
		state = "unavailable"
	}
	c.JSON(status, utils.H{"status": state, "checks": checks})
}

func pingDatabase(ctx context.Context) error {
	db := database.DB()
	if db == nil {
		return errNoDatabase
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
