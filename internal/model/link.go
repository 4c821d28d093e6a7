package model

import "time"

// VerificationLink 一次绑定码签发，只存 code 的加盐哈希
type VerificationLink struct {
	IssuedAt      time.Time  `gorm:"not null" json:"issued_at"`
	ExpiresAt     time.Time  `gorm:"not null;index:idx_verification_links_expires" json:"expires_at"`
	ConsumedAt    *time.Time `json:"consumed_at,omitempty"`
	InvalidatedAt *time.Time `json:"invalidated_at,omitempty"`
	BoundIdentity *string    `gorm:"type:varchar(64)" json:"bound_identity,omitempty"`
	AccountID     string     `gorm:"type:varchar(64);not null;index:idx_verification_links_account" json:"account_id"`
	CodeHash      string     `gorm:"type:varchar(64);not null;index:idx_verification_links_code" json:"-"`
	BaseModel
}

func (VerificationLink) TableName() string {
	return "verification_links"
}

// Live 未过期、未使用、未作废
func (v *VerificationLink) Live(now time.Time) bool {
	return v.ConsumedAt == nil && v.InvalidatedAt == nil && now.Before(v.ExpiresAt)
}

// LinkAttemptCounter 每个网关身份一行，滚动窗口内累计失败次数
type LinkAttemptCounter struct {
	WindowStart     time.Time  `gorm:"not null" json:"window_start"`
	UpdatedAt       time.Time  `gorm:"not null" json:"updated_at"`
	LockoutUntil    *time.Time `json:"lockout_until,omitempty"`
	GatewayIdentity string     `gorm:"type:varchar(64);primaryKey" json:"gateway_identity"`
	AttemptCount    int        `gorm:"not null" json:"attempt_count"`
}

func (LinkAttemptCounter) TableName() string {
	return "link_attempt_counters"
}
