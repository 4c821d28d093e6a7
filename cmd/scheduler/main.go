package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"DailyPrompt/config"
	"DailyPrompt/internal/cache"
	"DailyPrompt/internal/schedule"
	"DailyPrompt/internal/service"
	"DailyPrompt/pkg/logger"
	"DailyPrompt/pkg/metrics"
	"DailyPrompt/pkg/snowflake"
	"DailyPrompt/storage"
	"DailyPrompt/storage/database"
)

// 没有外部 cron 时使用的进程内调度；与 /internal/scheduler/tick 共用同一个 TickRunner，
// 两者同时运行也只会多评估一次，认领表保证不会重复发送
func main() {
	if err := config.Load(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger.Init()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Logger.Info("Scheduler received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	if err := storage.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize storage for scheduler", zap.Error(err))
	}
	defer storage.Close()

	// 考虑与 worker 和 server 作区分
	if err := snowflake.Init(config.Cfg.SnowflakeMachineID, config.Cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake for scheduler", zap.Error(err))
	}
	if err := metrics.InitMetrics(); err != nil {
		logger.Logger.Warn("Failed to initialize metrics", zap.Error(err))
	}

	owner := schedulerOwner()
	logger.Logger.Info("Scheduler service starting",
		zap.String("service", config.Cfg.ServiceName+"-scheduler"),
		zap.String("environment", config.Cfg.Environment),
		zap.String("owner", owner),
		zap.Duration("poll_interval", config.Cfg.SchedulerPollInterval),
		zap.Duration("tolerance", config.Cfg.ScheduleTolerance()),
	)

	loop := schedule.NewLoop(
		service.Ticker(),
		service.NewHousekeeping(database.DB()),
		config.Cfg.SchedulerPollInterval,
	).WithLocker(cache.RedisLocker{}, owner)

	loop.Run(ctx)

	logger.Logger.Info("Scheduler service shutting down gracefully")
}

func schedulerOwner() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "scheduler"
	}
	return host + ":" + uuid.NewString()
}
