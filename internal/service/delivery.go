package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"DailyPrompt/config"
	"DailyPrompt/internal/content"
	"DailyPrompt/internal/model"
	"DailyPrompt/internal/repository"
	"DailyPrompt/internal/schedule"
	"DailyPrompt/pkg/logger"
	"DailyPrompt/pkg/telegram"
	"DailyPrompt/storage/database"
)

// DeliveryService 单个 (recipient, slot) 的投递执行器
type DeliveryService struct {
	db        *gorm.DB
	ledger    *repository.LedgerRepository
	router    *content.Router
	messenger Messenger
	evaluator *schedule.Evaluator
	logger    *zap.Logger
	now       func() time.Time
	lease     time.Duration
}

var (
	deliveryService *DeliveryService
	deliveryOnce    sync.Once
)

func Delivery() *DeliveryService {
	deliveryOnce.Do(func() {
		db := database.DB()
		deliveryService = NewDeliveryService(db, DefaultRouter(), DefaultMessenger(), schedule.DefaultEvaluator(), config.Cfg.ClaimLease)
	})
	return deliveryService
}

// DefaultRouter 内部内容表 + Notion
func DefaultRouter() *content.Router {
	return content.NewRouter(
		content.NewStoreSource(repository.NewContentRepository(database.DB())),
		content.NewNotionSource(defaultNotion()),
	)
}

func NewDeliveryService(db *gorm.DB, router *content.Router, messenger Messenger, evaluator *schedule.Evaluator, lease time.Duration) *DeliveryService {
	return &DeliveryService{
		db:        db,
		ledger:    repository.NewLedgerRepository(db),
		router:    router,
		messenger: messenger,
		evaluator: evaluator,
		logger:    logger.Named("delivery"),
		now:       func() time.Time { return time.Now().UTC() },
		lease:     lease,
	}
}

// Deliver 同一 (recipient, 本地日期, slot) 至多成功发送一次。
// 返回 error 表示可重试的失败，下一次 tick 会在窗口内重新尝试。
func (s *DeliveryService) Deliver(ctx context.Context, r *model.Recipient, slot model.Slot, nowUTC time.Time) (model.DeliveryResult, error) {
	occ, err := s.evaluator.Occurrence(r.ScheduledAt(slot), r.Timezone, nowUTC)
	if err != nil {
		return model.DeliveryResult{}, fmt.Errorf("recipient %d: %w", r.ID, err)
	}
	date := occ.Date

	if !r.Active {
		return model.Skipped(date, model.SkipInactive), nil
	}
	if !r.IsLinked() {
		return model.Skipped(date, model.SkipNotLinked), nil
	}

	entry, err := s.ledger.Get(ctx, r.ID)
	if err != nil {
		return model.DeliveryResult{}, fmt.Errorf("failed to load ledger: %w", err)
	}
	if entry != nil && entry.SlotDate == date && entry.Slot == slot {
		return model.Skipped(date, model.SkipAlreadySent), nil
	}

	claim := &model.DeliveryClaim{
		RecipientID: r.ID,
		SlotDate:    date,
		Slot:        slot,
		Status:      model.ClaimStatusPending,
		Token:       uuid.NewString(),
		ClaimedAt:   s.now(),
		Attempts:    1,
	}
	outcome, err := s.ledger.TryClaim(ctx, claim, s.lease)
	if err != nil {
		return model.DeliveryResult{}, fmt.Errorf("failed to claim delivery: %w", err)
	}
	switch outcome {
	case repository.ClaimAlreadySent:
		return model.Skipped(date, model.SkipAlreadySent), nil
	case repository.ClaimInFlight:
		return model.Skipped(date, model.SkipInFlight), nil
	}

	log := s.logger.With(
		zap.Int64("recipient_id", r.ID),
		zap.String("slot", string(slot)),
		zap.String("slot_date", date),
	)

	c, err := s.router.Resolve(ctx, r, date, slot)
	if errors.Is(err, content.ErrContentAbsent) {
		if relErr := s.ledger.ReleaseClaim(ctx, claim); relErr != nil {
			log.Warn("Failed to release claim", zap.Error(relErr))
		}
		return model.Skipped(date, model.SkipNoContent), nil
	}
	if err != nil {
		s.fail(ctx, log, claim, err)
		return model.DeliveryResult{}, fmt.Errorf("failed to resolve content: %w", err)
	}

	text := FormatMessage(slot, date, c)
	messageID, err := s.messenger.SendMarkdown(ctx, r.Identity(), text)
	if err != nil {
		s.fail(ctx, log, claim, err)
		return model.DeliveryResult{}, fmt.Errorf("failed to send message: %w", err)
	}

	sentAt := s.now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ledger := s.ledger.WithTx(tx)
		if _, err := ledger.MarkClaimSent(ctx, claim, sentAt); err != nil {
			return err
		}
		return ledger.Upsert(ctx, &model.DeliveryLedgerEntry{
			RecipientID:   r.ID,
			Slot:          slot,
			SlotDate:      date,
			DeliveredAt:   sentAt,
			Source:        c.Source,
			CorrelationID: c.CorrelationID,
			UpdatedAt:     sentAt,
		})
	})
	if err != nil {
		// 消息已经发出，认领保持 pending 直到租期过期
		log.Error("Message sent but ledger write failed",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
		return model.DeliveryResult{}, fmt.Errorf("failed to record delivery: %w", err)
	}

	if err := s.router.MarkSentIn(ctx, c.Source, r, c.CorrelationID); err != nil {
		log.Warn("Failed to mark content as sent", zap.String("correlation_id", c.CorrelationID), zap.Error(err))
	}

	log.Info("Delivered",
		zap.String("source", string(c.Source)),
		zap.String("correlation_id", c.CorrelationID),
		zap.String("message_id", messageID),
	)
	return model.Sent(date, c.CorrelationID), nil
}

func (s *DeliveryService) fail(ctx context.Context, log *zap.Logger, claim *model.DeliveryClaim, cause error) {
	if _, err := s.ledger.MarkClaimFailed(ctx, claim, cause.Error(), s.now()); err != nil {
		log.Error("Failed to mark claim failed", zap.Error(err))
	}
	log.Warn("Delivery attempt failed", zap.Error(cause))
}

var greetings = map[model.Slot]string{
	model.SlotMorning: "Good morning ☀️",
	model.SlotEvening: "Good evening 🌙",
}

// FormatMessage 模板里的 * _ 是格式标记，其余动态片段逐个转义
func FormatMessage(slot model.Slot, date string, c *content.Content) string {
	esc := telegram.EscapeMarkdownV2

	var sb strings.Builder
	sb.WriteString("*" + esc(greetings[slot]) + "*\n")
	if c.Label != "" {
		sb.WriteString("_" + esc(c.Label) + "_ · " + esc(date) + "\n")
	} else {
		sb.WriteString(esc(date) + "\n")
	}
	sb.WriteString("\n")
	for i, p := range c.Prompts {
		sb.WriteString(esc(fmt.Sprintf("%d. ", i+1)) + esc(p) + "\n")
	}
	sb.WriteString("\n" + esc("Reply to this message to save your answer."))
	return sb.String()
}
