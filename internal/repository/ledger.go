package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"DailyPrompt/internal/model"
)

// ClaimOutcome 认领结果
type ClaimOutcome int

const (
	ClaimAcquired ClaimOutcome = iota
	ClaimAlreadySent
	ClaimInFlight
)

type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) WithTx(tx *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: tx}
}

// Get 没有记录时返回 nil, nil
func (r *LedgerRepository) Get(ctx context.Context, recipientID int64) (*model.DeliveryLedgerEntry, error) {
	var entry model.DeliveryLedgerEntry
	err := r.db.WithContext(ctx).Where("recipient_id = ?", recipientID).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Upsert 覆盖上一次投递，回复缓冲随之清空
func (r *LedgerRepository) Upsert(ctx context.Context, entry *model.DeliveryLedgerEntry) error {
	entry.ReplyBuffer = ""
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "recipient_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"slot", "slot_date", "delivered_at", "source", "correlation_id", "reply_buffer", "updated_at",
			}),
		}).
		Create(entry).Error
}

// AppendReply 只在 correlation id 仍是当前值时追加，返回是否命中
func (r *LedgerRepository) AppendReply(ctx context.Context, recipientID int64, correlationID, text string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.DeliveryLedgerEntry{}).
		Where("recipient_id = ? AND correlation_id = ?", recipientID, correlationID).
		Updates(map[string]interface{}{
			"reply_buffer": appendTextExpr("reply_buffer", text),
			"updated_at":   now,
		})
	return res.RowsAffected == 1, res.Error
}

// appendTextExpr 空字段直接写入，否则以空行分隔追加，整个拼接在一条 UPDATE 内完成
func appendTextExpr(column, text string) clause.Expr {
	return gorm.Expr(
		"CASE WHEN "+column+" = '' THEN CAST(? AS TEXT) ELSE "+column+" || CAST(? AS TEXT) END",
		text, "\n\n"+text,
	)
}

// TryClaim 以 (recipient, date, slot) 唯一键原子认领发送权。
// 冲突时只有 failed 或超过租期的 pending 才能被重新认领。
func (r *LedgerRepository) TryClaim(ctx context.Context, claim *model.DeliveryClaim, lease time.Duration) (ClaimOutcome, error) {
	db := r.db.WithContext(ctx)

	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "recipient_id"}, {Name: "slot_date"}, {Name: "slot"}},
		DoNothing: true,
	}).Create(claim)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 1 {
		return ClaimAcquired, nil
	}

	staleBefore := claim.ClaimedAt.Add(-lease)
	res = db.Model(&model.DeliveryClaim{}).
		Where("recipient_id = ? AND slot_date = ? AND slot = ?", claim.RecipientID, claim.SlotDate, claim.Slot).
		Where("status = ? OR (status = ? AND claimed_at < ?)", model.ClaimStatusFailed, model.ClaimStatusPending, staleBefore).
		Updates(map[string]interface{}{
			"status":     model.ClaimStatusPending,
			"token":      claim.Token,
			"claimed_at": claim.ClaimedAt,
			"attempts":   gorm.Expr("attempts + 1"),
			"updated_at": claim.ClaimedAt,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 1 {
		return ClaimAcquired, nil
	}

	var existing model.DeliveryClaim
	err := db.Where("recipient_id = ? AND slot_date = ? AND slot = ?", claim.RecipientID, claim.SlotDate, claim.Slot).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// 刚被持有者释放，交给下一次调度
		return ClaimInFlight, nil
	}
	if err != nil {
		return 0, err
	}
	if existing.Status == model.ClaimStatusSent {
		return ClaimAlreadySent, nil
	}
	return ClaimInFlight, nil
}

// MarkClaimSent 只有持有 token 的一方能完成认领
func (r *LedgerRepository) MarkClaimSent(ctx context.Context, claim *model.DeliveryClaim, now time.Time) (bool, error) {
	return r.finishClaim(ctx, claim, map[string]interface{}{
		"status":     model.ClaimStatusSent,
		"last_error": "",
		"updated_at": now,
	})
}

func (r *LedgerRepository) MarkClaimFailed(ctx context.Context, claim *model.DeliveryClaim, reason string, now time.Time) (bool, error) {
	if len(reason) > 500 {
		reason = reason[:500]
	}
	return r.finishClaim(ctx, claim, map[string]interface{}{
		"status":     model.ClaimStatusFailed,
		"last_error": reason,
		"updated_at": now,
	})
}

func (r *LedgerRepository) finishClaim(ctx context.Context, claim *model.DeliveryClaim, updates map[string]interface{}) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.DeliveryClaim{}).
		Where("recipient_id = ? AND slot_date = ? AND slot = ? AND token = ?", claim.RecipientID, claim.SlotDate, claim.Slot, claim.Token).
		Updates(updates)
	return res.RowsAffected == 1, res.Error
}

// ReleaseClaim 没有内容时删除认领，之后导入的内容仍可在窗口内投递
func (r *LedgerRepository) ReleaseClaim(ctx context.Context, claim *model.DeliveryClaim) error {
	return r.db.WithContext(ctx).
		Where("recipient_id = ? AND slot_date = ? AND slot = ? AND token = ? AND status = ?",
			claim.RecipientID, claim.SlotDate, claim.Slot, claim.Token, model.ClaimStatusPending).
		Delete(&model.DeliveryClaim{}).Error
}

// SweepClaims 清理早于 before 的 failed 认领
func (r *LedgerRepository) SweepClaims(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", model.ClaimStatusFailed, before).
		Delete(&model.DeliveryClaim{})
	return res.RowsAffected, res.Error
}
