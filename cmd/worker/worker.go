package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"DailyPrompt/config"
	"DailyPrompt/internal/model"
	"DailyPrompt/internal/queue"
	"DailyPrompt/internal/service"
	"DailyPrompt/pkg/logger"
	"DailyPrompt/pkg/metrics"
	"DailyPrompt/pkg/snowflake"
	"DailyPrompt/storage"
	"DailyPrompt/storage/mq"
)

// worker 消费 webhook 写入 gateway.inbound 的消息，INBOUND_MODE=queue 时部署
func main() {
	if err := config.Load(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger.Init()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Logger.Info("Received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	if err := storage.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer storage.Close()

	// storage.Init 只在 queue 模式下连接 RabbitMQ，worker 总是需要
	if config.Cfg.InboundMode != "queue" {
		logger.Logger.Warn("Worker started while INBOUND_MODE is not queue, webhook will not publish here",
			zap.String("inbound_mode", config.Cfg.InboundMode),
		)
		if err := mq.Init(); err != nil {
			logger.Logger.Fatal("Failed to initialize RabbitMQ", zap.Error(err))
		}
	}

	if err := snowflake.Init(config.Cfg.SnowflakeMachineID, config.Cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake", zap.Error(err))
	}
	if err := metrics.InitMetrics(); err != nil {
		logger.Logger.Warn("Failed to initialize metrics", zap.Error(err))
	}

	logger.Logger.Info("Worker service starting",
		zap.String("service", config.Cfg.ServiceName+"-worker"),
		zap.String("environment", config.Cfg.Environment),
		zap.Int("prefetch", config.Cfg.WorkerPrefetch),
	)

	inbound := service.Inbound()
	err := queue.StartInboundConsumer(ctx, config.Cfg.WorkerPrefetch, func(ctx context.Context, msg *model.InboundMessage) error {
		_, err := inbound.Handle(ctx, msg)
		return err
	})
	if err != nil && ctx.Err() == nil {
		logger.Logger.Error("Inbound consumer stopped", zap.Error(err))
	}

	logger.Logger.Info("Worker service shutting down gracefully")
}
