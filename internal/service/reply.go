package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"DailyPrompt/config"
	"DailyPrompt/internal/content"
	"DailyPrompt/internal/model"
	"DailyPrompt/internal/repository"
	"DailyPrompt/pkg/logger"
	"DailyPrompt/pkg/metrics"
	"DailyPrompt/storage/database"
)

type ReplyStatus string

const (
	ReplyUnrecognizedIdentity ReplyStatus = "unrecognized-identity"
	ReplyNoPendingDelivery    ReplyStatus = "no-pending-delivery"
	ReplyApplied              ReplyStatus = "applied"
)

type ReplyResult struct {
	Status        ReplyStatus `json:"status"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	Slot          model.Slot  `json:"slot,omitempty"`
	SlotDate      string      `json:"slot_date,omitempty"`
	SourceSynced  bool        `json:"source_synced"`
}

// ReplyService 把回复绑定到接收者最近一次投递的内容
type ReplyService struct {
	recipients *repository.RecipientRepository
	ledger     *repository.LedgerRepository
	router     *content.Router
	logger     *zap.Logger
	now        func() time.Time
	window     time.Duration // 0 表示不限制
}

var (
	replyService *ReplyService
	replyOnce    sync.Once
)

func Reply() *ReplyService {
	replyOnce.Do(func() {
		replyService = NewReplyService(database.DB(), DefaultRouter(), config.Cfg.ReplyWindow)
	})
	return replyService
}

func NewReplyService(db *gorm.DB, router *content.Router, window time.Duration) *ReplyService {
	return &ReplyService{
		recipients: repository.NewRecipientRepository(db),
		ledger:     repository.NewLedgerRepository(db),
		router:     router,
		logger:     logger.Named("reply"),
		now:        func() time.Time { return time.Now().UTC() },
		window:     window,
	}
}

// Correlate 重复的回复会被追加两次；账本被新的投递覆盖时，回复归属新的内容
func (s *ReplyService) Correlate(ctx context.Context, identity, text string) (ReplyResult, error) {
	r, err := s.recipients.GetByIdentity(ctx, identity)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.RecordReply(ctx, string(ReplyUnrecognizedIdentity))
		return ReplyResult{Status: ReplyUnrecognizedIdentity}, nil
	}
	if err != nil {
		return ReplyResult{}, fmt.Errorf("failed to load recipient: %w", err)
	}

	now := s.now()
	var entry *model.DeliveryLedgerEntry
	for attempt := 0; attempt < 2; attempt++ {
		entry, err = s.ledger.Get(ctx, r.ID)
		if err != nil {
			return ReplyResult{}, fmt.Errorf("failed to load ledger: %w", err)
		}
		if entry == nil || (s.window > 0 && now.Sub(entry.DeliveredAt) > s.window) {
			metrics.RecordReply(ctx, string(ReplyNoPendingDelivery))
			return ReplyResult{Status: ReplyNoPendingDelivery}, nil
		}

		ok, err := s.ledger.AppendReply(ctx, r.ID, entry.CorrelationID, text, now)
		if err != nil {
			return ReplyResult{}, fmt.Errorf("failed to append reply: %w", err)
		}
		if ok {
			break
		}
		// 读取和追加之间有新的投递
		entry = nil
	}
	if entry == nil {
		return ReplyResult{}, fmt.Errorf("ledger for recipient %d changed concurrently", r.ID)
	}

	result := ReplyResult{
		Status:        ReplyApplied,
		CorrelationID: entry.CorrelationID,
		Slot:          entry.Slot,
		SlotDate:      entry.SlotDate,
		SourceSynced:  true,
	}

	// 账本已经记下回复，来源写入失败只记录，避免重投导致账本重复追加
	if err := s.router.AppendReplyTo(ctx, entry.Source, r, entry.CorrelationID, text); err != nil {
		result.SourceSynced = false
		s.logger.Warn("Failed to append reply to content source",
			zap.Int64("recipient_id", r.ID),
			zap.String("source", string(entry.Source)),
			zap.String("correlation_id", entry.CorrelationID),
			zap.Error(err),
		)
	}

	metrics.RecordReply(ctx, string(ReplyApplied))
	return result, nil
}
