package model

// Slot 每日投递时间槽
type Slot string

const (
	SlotMorning Slot = "morning"
	SlotEvening Slot = "evening"
)

// Slots 按一天内的先后顺序
var Slots = []Slot{SlotMorning, SlotEvening}

func ParseSlot(s string) (Slot, bool) {
	switch Slot(s) {
	case SlotMorning, SlotEvening:
		return Slot(s), true
	}
	return "", false
}

// ContentSource 内容来源
type ContentSource string

const (
	ContentSourceStore  ContentSource = "store"  // 内部生成内容表
	ContentSourceNotion ContentSource = "notion" // 用户自己的 Notion 数据库
)

func (s ContentSource) Valid() bool {
	return s == ContentSourceStore || s == ContentSourceNotion
}

// Recipient 每个账户一条投递配置
type Recipient struct {
	GatewayIdentity  *string       `gorm:"type:varchar(64);uniqueIndex:uk_recipients_gateway_identity" json:"gateway_identity,omitempty"`
	NotionToken      *string       `gorm:"type:text" json:"-"` // 加密存储
	NotionDatabaseID *string       `gorm:"type:varchar(64)" json:"notion_database_id,omitempty"`
	AccountID        string        `gorm:"type:varchar(64);not null;uniqueIndex:uk_recipients_account" json:"account_id"`
	Timezone         string        `gorm:"type:varchar(64);not null" json:"timezone"`
	MorningAt        string        `gorm:"type:varchar(5);not null" json:"morning_at"`
	EveningAt        string        `gorm:"type:varchar(5);not null" json:"evening_at"`
	Source           ContentSource `gorm:"type:varchar(16);not null" json:"source"`
	BaseModel
	Active bool `gorm:"not null;index:idx_recipients_active" json:"active"`
}

func (Recipient) TableName() string {
	return "recipients"
}

// ScheduledAt 返回时间槽对应的本地时间 HH:MM
func (r *Recipient) ScheduledAt(slot Slot) string {
	switch slot {
	case SlotMorning:
		return r.MorningAt
	case SlotEvening:
		return r.EveningAt
	}
	return ""
}

func (r *Recipient) Identity() string {
	if r.GatewayIdentity == nil {
		return ""
	}
	return *r.GatewayIdentity
}

func (r *Recipient) IsLinked() bool {
	return r.Identity() != ""
}

// HasSourceCredentials 所选内容源需要的字段是否齐全
func (r *Recipient) HasSourceCredentials() bool {
	switch r.Source {
	case ContentSourceStore:
		return true
	case ContentSourceNotion:
		return r.NotionToken != nil && *r.NotionToken != "" &&
			r.NotionDatabaseID != nil && *r.NotionDatabaseID != ""
	}
	return false
}
