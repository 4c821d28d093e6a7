package model

import (
	"time"
)

// BaseModel 时间戳由 gorm NowFunc 填充（统一 UTC），不依赖数据库 now()
type BaseModel struct {
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
}
