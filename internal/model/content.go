package model

import (
	"time"

	"gorm.io/datatypes"
)

// ContentStatus 内容生命周期 draft → scheduled → sent
type ContentStatus string

const (
	ContentStatusDraft     ContentStatus = "draft"
	ContentStatusScheduled ContentStatus = "scheduled"
	ContentStatusSent      ContentStatus = "sent"
)

// ContentItem (recipient, date, slot) 唯一
type ContentItem struct {
	SentAt   *time.Time                  `json:"sent_at,omitempty"`
	Prompts  datatypes.JSONSlice[string] `gorm:"not null" json:"prompts"`
	SlotDate string                      `gorm:"type:varchar(10);not null;uniqueIndex:uk_content_items_slot,priority:2" json:"slot_date"`
	Slot     Slot                        `gorm:"type:varchar(16);not null;uniqueIndex:uk_content_items_slot,priority:3" json:"slot"`
	Theme    string                      `gorm:"type:varchar(128);not null" json:"theme"`
	Status   ContentStatus               `gorm:"type:varchar(16);not null" json:"status"`
	Reply    string                      `gorm:"type:text;not null" json:"reply,omitempty"`
	BaseModel
	PublicID    int64 `gorm:"not null;uniqueIndex:uk_content_items_public_id" json:"public_id,string"`
	RecipientID int64 `gorm:"not null;uniqueIndex:uk_content_items_slot,priority:1" json:"recipient_id"`
}

func (ContentItem) TableName() string {
	return "content_items"
}

// Deliverable draft 视为没有内容
func (c *ContentItem) Deliverable() bool {
	return c.Status == ContentStatusScheduled || c.Status == ContentStatusSent
}
