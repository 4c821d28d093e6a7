package model

import "time"

// TransactionType 交易类型枚举
type TransactionType string

const (
	TransactionTypeGrant  TransactionType = "grant"  // 充值
	TransactionTypeDeduct TransactionType = "deduct" // 扣减
)

// 流水原因
const (
	QuotaReasonSignup     = "signup"
	QuotaReasonGeneration = "generation"
	QuotaReasonRefund     = "refund"
	QuotaReasonManual     = "manual"
)

// ConsumptionBalance 每个账户一行，余额非负由数据库约束保证
type ConsumptionBalance struct {
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
	AccountID string    `gorm:"type:varchar(64);primaryKey" json:"account_id"`
	Balance   int       `gorm:"not null;check:chk_consumption_balances_nonneg,balance >= 0" json:"balance"`
}

func (ConsumptionBalance) TableName() string {
	return "consumption_balances"
}

// QuotaTransaction 额度流水模型
type QuotaTransaction struct {
	AccountID       string          `gorm:"type:varchar(64);not null;index:idx_quota_transactions_account" json:"account_id"`
	TransactionType TransactionType `gorm:"type:varchar(16);not null" json:"transaction_type"`
	Reason          string          `gorm:"type:varchar(32);not null" json:"reason"`
	BaseModel
	Amount       int `gorm:"not null" json:"amount"`
	BalanceAfter int `gorm:"not null" json:"balance_after"`
}

// TableName 指定表名
func (QuotaTransaction) TableName() string {
	return "quota_transactions"
}
