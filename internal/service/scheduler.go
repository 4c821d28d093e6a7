package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"DailyPrompt/config"
	"DailyPrompt/internal/repository"
	"DailyPrompt/internal/schedule"
	"DailyPrompt/pkg/logger"
	"DailyPrompt/storage/database"
)

// 清理保留期，正确性不依赖清理
const (
	failedClaimRetention = 48 * time.Hour
	expiredLinkRetention = 24 * time.Hour
)

var (
	tickRunner *schedule.TickRunner
	tickOnce   sync.Once
)

// Ticker HTTP 调度端点和进程内循环共用
func Ticker() *schedule.TickRunner {
	tickOnce.Do(func() {
		tickRunner = schedule.NewTickRunner(
			repository.NewRecipientRepository(database.DB()),
			Delivery(),
			schedule.DefaultEvaluator(),
			config.Cfg.SchedulerConcurrency,
		)
	})
	return tickRunner
}

// Housekeeping 实现 schedule.Sweeper
type Housekeeping struct {
	ledger *repository.LedgerRepository
	links  *repository.LinkRepository
	logger *zap.Logger
}

func NewHousekeeping(db *gorm.DB) *Housekeeping {
	return &Housekeeping{
		ledger: repository.NewLedgerRepository(db),
		links:  repository.NewLinkRepository(db),
		logger: logger.Named("housekeeping"),
	}
}

func (h *Housekeeping) Sweep(ctx context.Context, nowUTC time.Time) error {
	claims, claimErr := h.ledger.SweepClaims(ctx, nowUTC.Add(-failedClaimRetention))
	links, linkErr := h.links.SweepExpired(ctx, nowUTC.Add(-expiredLinkRetention))

	h.logger.Info("Housekeeping sweep finished",
		zap.Int64("failed_claims", claims),
		zap.Int64("expired_links", links),
	)
	return errors.Join(claimErr, linkErr)
}
