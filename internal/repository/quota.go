package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"DailyPrompt/internal/model"
)

type QuotaRepository struct {
	db *gorm.DB
}

func NewQuotaRepository(db *gorm.DB) *QuotaRepository {
	return &QuotaRepository{db: db}
}

func (r *QuotaRepository) WithTx(tx *gorm.DB) *QuotaRepository {
	return &QuotaRepository{db: tx}
}

// Decrement 比较并扣减，余额不足时 ok=false，不会读后写
func (r *QuotaRepository) Decrement(ctx context.Context, accountID string, now time.Time) (balance int, ok bool, err error) {
	var rows []int
	err = r.db.WithContext(ctx).Raw(
		`UPDATE consumption_balances SET balance = balance - 1, updated_at = ?
		WHERE account_id = ? AND balance >= 1
		RETURNING balance`,
		now, accountID,
	).Scan(&rows).Error
	if err != nil {
		return 0, false, err
	}
	if len(rows) == 0 {
		return 0, false, nil
	}
	return rows[0], true, nil
}

// Credit 增加余额，账户没有余额记录时创建
func (r *QuotaRepository) Credit(ctx context.Context, accountID string, amount int, now time.Time) (int, error) {
	var rows []int
	err := r.db.WithContext(ctx).Raw(
		`INSERT INTO consumption_balances (account_id, balance, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (account_id) DO UPDATE SET
			balance = consumption_balances.balance + excluded.balance,
			updated_at = excluded.updated_at
		RETURNING balance`,
		accountID, amount, now, now,
	).Scan(&rows).Error
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, errors.New("credit returned no balance")
	}
	return rows[0], nil
}

// GetBalance 没有记录视为 0
func (r *QuotaRepository) GetBalance(ctx context.Context, accountID string) (int, error) {
	var bal model.ConsumptionBalance
	err := r.db.WithContext(ctx).Where("account_id = ?", accountID).First(&bal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return bal.Balance, nil
}

func (r *QuotaRepository) CreateTransaction(ctx context.Context, txn *model.QuotaTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *QuotaRepository) ListTransactions(ctx context.Context, accountID string, limit int) ([]model.QuotaTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var list []model.QuotaTransaction
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("id DESC").
		Limit(limit).
		Find(&list).Error
	return list, err
}
