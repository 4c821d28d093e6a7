package dto

import (
	"time"

	"DailyPrompt/internal/model"
)

// ========== 投递设置 DTO ==========

// DeliverySettings 接收者设置，不包含 Notion token 明文
type DeliverySettings struct {
	UpdatedAt        time.Time           `json:"updated_at"`
	NotionDatabaseID *string             `json:"notion_database_id,omitempty"`
	AccountID        string              `json:"account_id"`
	Timezone         string              `json:"timezone"`
	MorningAt        string              `json:"morning_at"`
	EveningAt        string              `json:"evening_at"`
	Source           model.ContentSource `json:"source"`
	Active           bool                `json:"active"`
	Linked           bool                `json:"linked"`
	HasNotionToken   bool                `json:"has_notion_token"`
}

// LastDelivery 账本上最近一次投递
type LastDelivery struct {
	DeliveredAt   time.Time           `json:"delivered_at"`
	Slot          model.Slot          `json:"slot"`
	SlotDate      string              `json:"slot_date"`
	Source        model.ContentSource `json:"source"`
	CorrelationID string              `json:"correlation_id"`
	ReplyBuffer   string              `json:"reply_buffer"`
}

// DeliveryOverview GET /v1/me/delivery
type DeliveryOverview struct {
	LastDelivery *LastDelivery    `json:"last_delivery,omitempty"`
	Settings     DeliverySettings `json:"settings"`
	Credits      int              `json:"credits"`
}

// PutDeliverySettingsRequest PUT /v1/me/delivery，未提供的字段保持原值
type PutDeliverySettingsRequest struct {
	Timezone         *string `json:"timezone"`
	MorningAt        *string `json:"morning_at"`
	EveningAt        *string `json:"evening_at"`
	Source           *string `json:"source"`
	NotionToken      *string `json:"notion_token"` // 空字符串表示清除
	NotionDatabaseID *string `json:"notion_database_id"`
	Active           *bool   `json:"active"`
}

func NewDeliverySettings(r *model.Recipient) DeliverySettings {
	return DeliverySettings{
		UpdatedAt:        r.UpdatedAt,
		NotionDatabaseID: r.NotionDatabaseID,
		AccountID:        r.AccountID,
		Timezone:         r.Timezone,
		MorningAt:        r.MorningAt,
		EveningAt:        r.EveningAt,
		Source:           r.Source,
		Active:           r.Active,
		Linked:           r.IsLinked(),
		HasNotionToken:   r.NotionToken != nil && *r.NotionToken != "",
	}
}

func NewLastDelivery(e *model.DeliveryLedgerEntry) *LastDelivery {
	if e == nil {
		return nil
	}
	return &LastDelivery{
		DeliveredAt:   e.DeliveredAt,
		Slot:          e.Slot,
		SlotDate:      e.SlotDate,
		Source:        e.Source,
		CorrelationID: e.CorrelationID,
		ReplyBuffer:   e.ReplyBuffer,
	}
}
