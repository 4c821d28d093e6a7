package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"DailyPrompt/internal/model"
	"DailyPrompt/pkg/logger"
)

// Migrate 创建所有表；唯一约束和余额 CHECK 约束都由这里落到数据库
func Migrate(db *gorm.DB) error {
	if db == nil {
		return gorm.ErrInvalidDB
	}

	logger.Logger.Info("Starting database migration...")

	err := db.AutoMigrate(
		&model.Recipient{},
		&model.DeliveryLedgerEntry{},
		&model.DeliveryClaim{},
		&model.ContentItem{},
		&model.VerificationLink{},
		&model.LinkAttemptCounter{},
		&model.ConsumptionBalance{},
		&model.QuotaTransaction{},
	)
	if err != nil {
		logger.Logger.Error("Database migration failed", zap.Error(err))
		return err
	}

	logger.Logger.Info("Database migration completed successfully")
	return nil
}
