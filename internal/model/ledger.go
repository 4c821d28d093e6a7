package model

import "time"

// DeliveryLedgerEntry 每个接收者一行，记录最近一次成功投递，回复按它关联
type DeliveryLedgerEntry struct {
	DeliveredAt   time.Time     `gorm:"not null" json:"delivered_at"`
	UpdatedAt     time.Time     `gorm:"not null" json:"updated_at"`
	Slot          Slot          `gorm:"type:varchar(16);not null" json:"slot"`
	SlotDate      string        `gorm:"type:varchar(10);not null" json:"slot_date"` // 接收者本地日期 YYYY-MM-DD
	Source        ContentSource `gorm:"type:varchar(16);not null" json:"source"`
	CorrelationID string        `gorm:"type:varchar(64);not null" json:"correlation_id"`
	ReplyBuffer   string        `gorm:"type:text;not null" json:"reply_buffer"`
	RecipientID   int64         `gorm:"primaryKey;autoIncrement:false" json:"recipient_id"`
}

func (DeliveryLedgerEntry) TableName() string {
	return "delivery_ledger"
}

// ClaimStatus 投递认领状态
type ClaimStatus string

const (
	ClaimStatusPending ClaimStatus = "pending"
	ClaimStatusSent    ClaimStatus = "sent"
	ClaimStatusFailed  ClaimStatus = "failed"
)

// DeliveryClaim (recipient, date, slot) 唯一，重叠的调度只有一个能拿到发送权
type DeliveryClaim struct {
	ClaimedAt time.Time   `gorm:"not null" json:"claimed_at"`
	SlotDate  string      `gorm:"type:varchar(10);not null;uniqueIndex:uk_delivery_claims_slot,priority:2" json:"slot_date"`
	Slot      Slot        `gorm:"type:varchar(16);not null;uniqueIndex:uk_delivery_claims_slot,priority:3" json:"slot"`
	Status    ClaimStatus `gorm:"type:varchar(16);not null;index:idx_delivery_claims_status" json:"status"`
	Token     string      `gorm:"type:varchar(36);not null" json:"token"`
	LastError string      `gorm:"type:text;not null" json:"last_error,omitempty"`
	BaseModel
	RecipientID int64 `gorm:"not null;uniqueIndex:uk_delivery_claims_slot,priority:1" json:"recipient_id"`
	Attempts    int   `gorm:"not null" json:"attempts"`
}

func (DeliveryClaim) TableName() string {
	return "delivery_claims"
}
