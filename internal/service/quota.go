package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"DailyPrompt/internal/model"
	"DailyPrompt/internal/repository"
	"DailyPrompt/pkg/errors"
	"DailyPrompt/pkg/logger"
	"DailyPrompt/pkg/metrics"
	"DailyPrompt/storage/database"
)

// DecrementResult 余额不足不是错误，调用方据此提示充值
type DecrementResult struct {
	OK           bool `json:"ok"`
	Insufficient bool `json:"insufficient"`
	Balance      int  `json:"balance"`
}

type QuotaService struct {
	db     *gorm.DB
	repo   *repository.QuotaRepository
	logger *zap.Logger
	now    func() time.Time
}

var (
	quotaService *QuotaService
	quotaOnce    sync.Once
)

func Quota() *QuotaService {
	quotaOnce.Do(func() {
		quotaService = NewQuotaService(database.DB())
	})
	return quotaService
}

func NewQuotaService(db *gorm.DB) *QuotaService {
	return &QuotaService{
		db:     db,
		repo:   repository.NewQuotaRepository(db),
		logger: logger.Named("quota"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// DecrementIfAvailable 必须在计量工作开始之前调用。
// 条件更新和流水在同一事务，并发扣减不会让余额变成负数。
func (s *QuotaService) DecrementIfAvailable(ctx context.Context, accountID, reason string) (DecrementResult, error) {
	var result DecrementResult
	now := s.now()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		balance, ok, err := repo.Decrement(ctx, accountID, now)
		if err != nil {
			return fmt.Errorf("failed to decrement balance: %w", err)
		}
		if !ok {
			result = DecrementResult{Insufficient: true}
			return nil
		}

		if err := repo.CreateTransaction(ctx, &model.QuotaTransaction{
			AccountID:       accountID,
			TransactionType: model.TransactionTypeDeduct,
			Reason:          reason,
			Amount:          1,
			BalanceAfter:    balance,
		}); err != nil {
			return fmt.Errorf("failed to create deduct transaction: %w", err)
		}

		result = DecrementResult{OK: true, Balance: balance}
		return nil
	})
	if err != nil {
		metrics.RecordCredit(ctx, "decrement", "error")
		return DecrementResult{}, err
	}

	if result.Insufficient {
		metrics.RecordCredit(ctx, "decrement", "insufficient")
		// 余额展示用，读失败不影响结果
		if bal, err := s.repo.GetBalance(ctx, accountID); err == nil {
			result.Balance = bal
		}
		return result, nil
	}

	metrics.RecordCredit(ctx, "decrement", "ok")
	return result, nil
}

// Credit 显式充值或退款，扣减失败后不会自动调用
func (s *QuotaService) Credit(ctx context.Context, accountID string, amount int, reason string) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w", errors.QuotaAmountInvalid)
	}
	now := s.now()

	var balance int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		var err error
		balance, err = repo.Credit(ctx, accountID, amount, now)
		if err != nil {
			return fmt.Errorf("failed to credit balance: %w", err)
		}

		return repo.CreateTransaction(ctx, &model.QuotaTransaction{
			AccountID:       accountID,
			TransactionType: model.TransactionTypeGrant,
			Reason:          reason,
			Amount:          amount,
			BalanceAfter:    balance,
		})
	})
	if err != nil {
		metrics.RecordCredit(ctx, "credit", "error")
		return 0, err
	}

	metrics.RecordCredit(ctx, "credit", "ok")
	s.logger.Info("Credits granted",
		zap.String("account_id", accountID),
		zap.Int("amount", amount),
		zap.String("reason", reason),
		zap.Int("balance", balance),
	)
	return balance, nil
}

func (s *QuotaService) Balance(ctx context.Context, accountID string) (int, error) {
	return s.repo.GetBalance(ctx, accountID)
}

func (s *QuotaService) Transactions(ctx context.Context, accountID string, limit int) ([]model.QuotaTransaction, error) {
	return s.repo.ListTransactions(ctx, accountID, limit)
}

// creditInTx 供创建接收者时在同一事务中发放初始额度
func (s *QuotaService) creditInTx(ctx context.Context, tx *gorm.DB, accountID string, amount int, reason string) error {
	repo := s.repo.WithTx(tx)
	balance, err := repo.Credit(ctx, accountID, amount, s.now())
	if err != nil {
		return fmt.Errorf("failed to grant initial credits: %w", err)
	}
	return repo.CreateTransaction(ctx, &model.QuotaTransaction{
		AccountID:       accountID,
		TransactionType: model.TransactionTypeGrant,
		Reason:          reason,
		Amount:          amount,
		BalanceAfter:    balance,
	})
}
