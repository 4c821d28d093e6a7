package main

import (
	"log"

	"DailyPrompt/config"
	"DailyPrompt/internal/repository"
	"DailyPrompt/pkg/logger"
)

func main() {
	if err := config.Load(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger.Init()
	defer logger.Sync()

	repository.RunGenerate()
}
