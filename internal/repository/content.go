package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"DailyPrompt/internal/model"
)

// ErrContentLocked 已发送的内容不能被重新生成覆盖
var ErrContentLocked = errors.New("content item already sent")

type ContentRepository struct {
	db *gorm.DB
}

func NewContentRepository(db *gorm.DB) *ContentRepository {
	return &ContentRepository{db: db}
}

// GetBySlot 按唯一键读取，不存在返回 nil, nil
func (r *ContentRepository) GetBySlot(ctx context.Context, recipientID int64, date string, slot model.Slot) (*model.ContentItem, error) {
	var item model.ContentItem
	err := r.db.WithContext(ctx).
		Where("recipient_id = ? AND slot_date = ? AND slot = ?", recipientID, date, slot).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *ContentRepository) GetByPublicID(ctx context.Context, publicID int64) (*model.ContentItem, error) {
	var item model.ContentItem
	if err := r.db.WithContext(ctx).Where("public_id = ?", publicID).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// UpsertScheduled 写入或覆盖一条 scheduled 内容；目标已是 sent 时返回 ErrContentLocked
func (r *ContentRepository) UpsertScheduled(ctx context.Context, item *model.ContentItem) error {
	item.Status = model.ContentStatusScheduled

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "recipient_id"}, {Name: "slot_date"}, {Name: "slot"}},
			DoUpdates: clause.AssignmentColumns([]string{"prompts", "theme", "status", "updated_at"}),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: "content_items.status <> ?", Vars: []interface{}{model.ContentStatusSent}},
			}},
		}).
		Create(item)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrContentLocked
	}
	return nil
}

// MarkSent scheduled → sent，重复调用无副作用
func (r *ContentRepository) MarkSent(ctx context.Context, publicID int64, now time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.ContentItem{}).
		Where("public_id = ? AND status <> ?", publicID, model.ContentStatusSent).
		Updates(map[string]interface{}{
			"status":     model.ContentStatusSent,
			"sent_at":    now,
			"updated_at": now,
		}).Error
}

// AppendReply 原子追加回复，重复回复会追加两次
func (r *ContentRepository) AppendReply(ctx context.Context, publicID int64, text string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.ContentItem{}).
		Where("public_id = ?", publicID).
		Updates(map[string]interface{}{
			"reply":      appendTextExpr("reply", text),
			"updated_at": now,
		})
	return res.RowsAffected == 1, res.Error
}
