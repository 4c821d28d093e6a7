package dto

import (
	"time"

	"DailyPrompt/internal/model"
)

// ========== 绑定码 / 额度 / 生成 DTO ==========

// LinkCodeData POST /v1/link-codes
type LinkCodeData struct {
	ExpiresAt time.Time `json:"expires_at"`
	Code      string    `json:"code"`
	ExpiresIn int       `json:"expires_in"` // 秒
}

// CreditsData GET /v1/me/credits
type CreditsData struct {
	Transactions []model.QuotaTransaction `json:"transactions"`
	Balance      int                      `json:"balance"`
}

// GenerateRequest POST /v1/generations
type GenerateRequest struct {
	Date  string `json:"date"`
	Slot  string `json:"slot"`
	Theme string `json:"theme"`
}

type GenerationData struct {
	Item    *model.ContentItem `json:"item"`
	Balance int                `json:"balance"`
}
