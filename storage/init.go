package storage

import (
	"DailyPrompt/config"
	"DailyPrompt/storage/database"
	"DailyPrompt/storage/mq"
	"DailyPrompt/storage/redis"
)

// Init 统一初始化存储层，RabbitMQ 只在 queue 模式下连接
func Init() error {
	if err := database.Init(); err != nil {
		return err
	}

	if err := redis.Init(); err != nil {
		return err
	}

	if config.Cfg.InboundMode == "queue" {
		if err := mq.Init(); err != nil {
			return err
		}
	}

	return nil
}
