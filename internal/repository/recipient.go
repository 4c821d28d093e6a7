package repository

import (
	"context"

	"gorm.io/gorm"

	"DailyPrompt/internal/model"
)

type RecipientRepository struct {
	db *gorm.DB
}

func NewRecipientRepository(db *gorm.DB) *RecipientRepository {
	return &RecipientRepository{db: db}
}

func (r *RecipientRepository) WithTx(tx *gorm.DB) *RecipientRepository {
	return &RecipientRepository{db: tx}
}

func (r *RecipientRepository) GetByID(ctx context.Context, id int64) (*model.Recipient, error) {
	var rec model.Recipient
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *RecipientRepository) GetByAccountID(ctx context.Context, accountID string) (*model.Recipient, error) {
	var rec model.Recipient
	if err := r.db.WithContext(ctx).Where("account_id = ?", accountID).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *RecipientRepository) GetByIdentity(ctx context.Context, identity string) (*model.Recipient, error) {
	var rec model.Recipient
	if err := r.db.WithContext(ctx).Where("gateway_identity = ?", identity).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListActive 返回所有启用的接收者，未绑定的也包含在内，由调用方给出跳过原因
func (r *RecipientRepository) ListActive(ctx context.Context) ([]model.Recipient, error) {
	var list []model.Recipient
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("id ASC").
		Find(&list).Error
	return list, err
}

func (r *RecipientRepository) Create(ctx context.Context, rec *model.Recipient) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

// UpdateSettings 只更新配置字段，gateway_identity 由绑定流程维护
func (r *RecipientRepository) UpdateSettings(ctx context.Context, rec *model.Recipient) error {
	return r.db.WithContext(ctx).
		Model(&model.Recipient{}).
		Where("id = ?", rec.ID).
		Updates(map[string]interface{}{
			"timezone":           rec.Timezone,
			"morning_at":         rec.MorningAt,
			"evening_at":         rec.EveningAt,
			"active":             rec.Active,
			"source":             rec.Source,
			"notion_token":       rec.NotionToken,
			"notion_database_id": rec.NotionDatabaseID,
		}).Error
}

// BindIdentity 把网关身份绑定到账户，同一身份之前绑定的其它账户会被解绑
func (r *RecipientRepository) BindIdentity(ctx context.Context, accountID, identity string) (int64, error) {
	db := r.db.WithContext(ctx)

	if err := db.Model(&model.Recipient{}).
		Where("gateway_identity = ? AND account_id <> ?", identity, accountID).
		Update("gateway_identity", nil).Error; err != nil {
		return 0, err
	}

	res := db.Model(&model.Recipient{}).
		Where("account_id = ?", accountID).
		Update("gateway_identity", identity)
	return res.RowsAffected, res.Error
}
