package router

import (
	"github.com/cloudwego/hertz/pkg/route"

	"DailyPrompt/config"
	"DailyPrompt/internal/handler"
	"DailyPrompt/internal/middleware"
)

func Register(r *route.Engine) {
	r.Use(middleware.RecoverMiddleware())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.CORSMiddleware())
	r.Use(middleware.OpenTelemetryMiddleware())

	r.GET("/healthz", handler.Healthz)

	// 网关回调只校验 secret token，不限流，始终返回 200
	r.POST("/webhooks/telegram", handler.TelegramWebhook)

	// 外部调度器触发
	internal := r.Group("/internal")
	internal.Use(middleware.SchedulerAuth(config.Cfg.SchedulerSecret, config.Cfg.SchedulerTrustedHeader))
	{
		internal.POST("/scheduler/tick", handler.SchedulerTick)
	}

	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware(), middleware.GeneralRateLimitMiddleware())
	{
		v1.POST("/link-codes", handler.IssueLinkCode)
		v1.POST("/generations", handler.CreateGeneration)
	}

	me := v1.Group("/me")
	{
		me.GET("/delivery", handler.GetDelivery)
		me.PUT("/delivery", middleware.SettingsRateLimitMiddleware(), handler.PutDelivery)
		me.GET("/credits", handler.GetCredits)
	}
}
