package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"DailyPrompt/internal/model"
)

type LinkRepository struct {
	db *gorm.DB
}

func NewLinkRepository(db *gorm.DB) *LinkRepository {
	return &LinkRepository{db: db}
}

func (r *LinkRepository) WithTx(tx *gorm.DB) *LinkRepository {
	return &LinkRepository{db: tx}
}

// InvalidateActive 作废账户下所有未使用的绑定码
func (r *LinkRepository) InvalidateActive(ctx context.Context, accountID string, now time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.VerificationLink{}).
		Where("account_id = ? AND consumed_at IS NULL AND invalidated_at IS NULL", accountID).
		Updates(map[string]interface{}{
			"invalidated_at": now,
			"updated_at":     now,
		}).Error
}

func (r *LinkRepository) Create(ctx context.Context, link *model.VerificationLink) error {
	return r.db.WithContext(ctx).Create(link).Error
}

// LiveCodeExists 同一哈希同时只允许一个有效码，避免两个账户撞码
func (r *LinkRepository) LiveCodeExists(ctx context.Context, codeHash string, now time.Time) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&model.VerificationLink{}).
		Where("code_hash = ? AND consumed_at IS NULL AND invalidated_at IS NULL AND expires_at > ?", codeHash, now).
		Count(&n).Error
	return n > 0, err
}

// FindLatestByHash 返回该哈希最近签发的一条（任意状态），不存在返回 nil, nil
func (r *LinkRepository) FindLatestByHash(ctx context.Context, codeHash string) (*model.VerificationLink, error) {
	var link model.VerificationLink
	err := r.db.WithContext(ctx).
		Where("code_hash = ?", codeHash).
		Order("issued_at DESC, id DESC").
		First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// FindMostRecentLive 口令绑定使用，返回全局最近签发的有效码
func (r *LinkRepository) FindMostRecentLive(ctx context.Context, now time.Time) (*model.VerificationLink, error) {
	var link model.VerificationLink
	err := r.db.WithContext(ctx).
		Where("consumed_at IS NULL AND invalidated_at IS NULL AND expires_at > ?", now).
		Order("issued_at DESC, id DESC").
		First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// Consume 条件更新保证绑定码只能使用一次
func (r *LinkRepository) Consume(ctx context.Context, id int64, identity string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.VerificationLink{}).
		Where("id = ? AND consumed_at IS NULL AND invalidated_at IS NULL AND expires_at > ?", id, now).
		Updates(map[string]interface{}{
			"consumed_at":    now,
			"bound_identity": identity,
			"updated_at":     now,
		})
	return res.RowsAffected == 1, res.Error
}

// SweepExpired 删除早于 before 过期的绑定码，正确性不依赖它
func (r *LinkRepository) SweepExpired(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at < ?", before).
		Delete(&model.VerificationLink{})
	return res.RowsAffected, res.Error
}

// GetCounter 不存在返回 nil, nil
func (r *LinkRepository) GetCounter(ctx context.Context, identity string) (*model.LinkAttemptCounter, error) {
	var counter model.LinkAttemptCounter
	err := r.db.WithContext(ctx).Where("gateway_identity = ?", identity).First(&counter).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &counter, nil
}

const recordFailureSQL = `
INSERT INTO link_attempt_counters (gateway_identity, attempt_count, window_start, lockout_until, updated_at)
VALUES (@identity, 1, @now, @initialLock, @now)
ON CONFLICT (gateway_identity) DO UPDATE SET
	attempt_count = CASE
		WHEN link_attempt_counters.window_start <= @windowCutoff
			OR (link_attempt_counters.lockout_until IS NOT NULL AND link_attempt_counters.lockout_until <= @now)
		THEN 1
		ELSE link_attempt_counters.attempt_count + 1
	END,
	window_start = CASE
		WHEN link_attempt_counters.window_start <= @windowCutoff
			OR (link_attempt_counters.lockout_until IS NOT NULL AND link_attempt_counters.lockout_until <= @now)
		THEN @now
		ELSE link_attempt_counters.window_start
	END,
	lockout_until = CASE
		WHEN link_attempt_counters.window_start <= @windowCutoff
			OR (link_attempt_counters.lockout_until IS NOT NULL AND link_attempt_counters.lockout_until <= @now)
		THEN excluded.lockout_until
		WHEN link_attempt_counters.lockout_until IS NOT NULL THEN link_attempt_counters.lockout_until
		WHEN link_attempt_counters.attempt_count + 1 >= @threshold THEN @lockUntil
		ELSE NULL
	END,
	updated_at = @now`

// RecordFailure 单条语句完成计数、窗口重置和锁定，返回更新后的计数器
func (r *LinkRepository) RecordFailure(ctx context.Context, identity string, now time.Time, window time.Duration, threshold int) (*model.LinkAttemptCounter, error) {
	db := r.db.WithContext(ctx)

	lockUntil := now.Add(window)
	// 首次失败即达到阈值时直接锁定
	var initialLock *time.Time
	if threshold <= 1 {
		initialLock = &lockUntil
	}

	err := db.Exec(recordFailureSQL, map[string]interface{}{
		"identity":     identity,
		"initialLock":  initialLock,
		"now":          now,
		"windowCutoff": now.Add(-window),
		"lockUntil":    lockUntil,
		"threshold":    threshold,
	}).Error
	if err != nil {
		return nil, err
	}

	var counter model.LinkAttemptCounter
	if err := db.Where("gateway_identity = ?", identity).First(&counter).Error; err != nil {
		return nil, err
	}
	return &counter, nil
}

func (r *LinkRepository) ResetCounter(ctx context.Context, identity string) error {
	return r.db.WithContext(ctx).
		Where("gateway_identity = ?", identity).
		Delete(&model.LinkAttemptCounter{}).Error
}
