package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"DailyPrompt/internal/cache"
	"DailyPrompt/internal/model"
	"DailyPrompt/internal/repository"
	"DailyPrompt/pkg/logger"
	"DailyPrompt/storage/database"
	"DailyPrompt/utils"
)

// InboundOutcome 一条入站消息的处理结果
type InboundOutcome string

const (
	InboundDuplicate    InboundOutcome = "duplicate"
	InboundIgnored      InboundOutcome = "ignored"
	InboundHelp         InboundOutcome = "help"
	InboundLinked       InboundOutcome = "linked"
	InboundInvalidCode  InboundOutcome = "invalid-code"
	InboundRateLimited  InboundOutcome = "rate-limited"
	InboundReplyApplied InboundOutcome = "reply-applied"
	InboundNoPending    InboundOutcome = "reply-no-pending"
	InboundUnrecognized InboundOutcome = "reply-unrecognized"
)

// 机器人回执
const (
	helpText        = "Hi! Open the app, request a link code and send the 6-digit code here to start receiving your daily prompts."
	linkedText      = "You're linked. Your prompts will arrive here at your scheduled times."
	invalidCodeText = "That code is not valid. Request a new one in the app and try again."
	rateLimitedText = "Too many attempts. Please try again in %s."
	replySavedText  = "Saved your reply."
	noPendingText   = "There is no prompt waiting for a reply right now."
)

// Deduper 入站消息去重
type Deduper interface {
	TryMark(ctx context.Context, messageID string) (bool, error)
	Done(ctx context.Context, messageID string) error
	Release(ctx context.Context, messageID string) error
}

type redisDeduper struct{}

func (redisDeduper) TryMark(ctx context.Context, messageID string) (bool, error) {
	return cache.TryMarkMessageProcessing(ctx, messageID, 0)
}

func (redisDeduper) Done(ctx context.Context, messageID string) error {
	return cache.MarkMessageProcessed(ctx, messageID, 0)
}

func (redisDeduper) Release(ctx context.Context, messageID string) error {
	return cache.UnmarkMessageProcessing(ctx, messageID)
}

// RedisDeduper 基于 SETNX 的去重
func RedisDeduper() Deduper { return redisDeduper{} }

type InboundService struct {
	recipients *repository.RecipientRepository
	link       *LinkService
	reply      *ReplyService
	messenger  Messenger
	dedupe     Deduper
	logger     *zap.Logger
}

var (
	inboundService *InboundService
	inboundOnce    sync.Once
)

func Inbound() *InboundService {
	inboundOnce.Do(func() {
		inboundService = NewInboundService(database.DB(), Link(), Reply(), DefaultMessenger(), RedisDeduper())
	})
	return inboundService
}

func NewInboundService(db *gorm.DB, link *LinkService, reply *ReplyService, messenger Messenger, dedupe Deduper) *InboundService {
	return &InboundService{
		recipients: repository.NewRecipientRepository(db),
		link:       link,
		reply:      reply,
		messenger:  messenger,
		dedupe:     dedupe,
		logger:     logger.Named("inbound"),
	}
}

// Handle 返回 error 时去重标记会被撤销，重投后可以再次处理
func (s *InboundService) Handle(ctx context.Context, msg *model.InboundMessage) (InboundOutcome, error) {
	log := s.logger.With(zap.String("message_id", msg.MessageID), zap.String("identity", msg.Identity))

	if s.dedupe != nil && msg.MessageID != "" {
		first, err := s.dedupe.TryMark(ctx, msg.MessageID)
		if err != nil {
			// 去重不可用时继续处理，重复回复最多追加两次
			log.Warn("Dedupe unavailable, processing anyway", zap.Error(err))
		} else if !first {
			log.Info("Duplicate inbound message, skipping")
			return InboundDuplicate, nil
		}
	}

	outcome, err := s.route(ctx, msg)
	if err != nil {
		if s.dedupe != nil && msg.MessageID != "" {
			if relErr := s.dedupe.Release(ctx, msg.MessageID); relErr != nil {
				log.Warn("Failed to release dedupe mark", zap.Error(relErr))
			}
		}
		return "", err
	}

	if s.dedupe != nil && msg.MessageID != "" {
		if err := s.dedupe.Done(ctx, msg.MessageID); err != nil {
			log.Warn("Failed to mark message processed", zap.Error(err))
		}
	}

	log.Info("Inbound message handled", zap.String("outcome", string(outcome)))
	return outcome, nil
}

func (s *InboundService) route(ctx context.Context, msg *model.InboundMessage) (InboundOutcome, error) {
	text := strings.TrimSpace(msg.Text)
	if text == "" || msg.Identity == "" {
		return InboundIgnored, nil
	}

	linked := true
	if _, err := s.recipients.GetByIdentity(ctx, msg.Identity); err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("failed to load recipient: %w", err)
		}
		linked = false
	}

	normalized := NormalizeLinkText(text)
	looksLikeCode := utils.IsLinkCode(normalized) || s.link.IsPassphrase(normalized)

	switch {
	case normalized == "" || text == "/help":
		s.notify(ctx, msg.Identity, helpText)
		return InboundHelp, nil
	case looksLikeCode || !linked:
		return s.attemptLink(ctx, msg.Identity, text)
	case strings.HasPrefix(text, "/"):
		s.notify(ctx, msg.Identity, helpText)
		return InboundHelp, nil
	}

	res, err := s.reply.Correlate(ctx, msg.Identity, text)
	if err != nil {
		return "", err
	}
	switch res.Status {
	case ReplyApplied:
		s.notify(ctx, msg.Identity, replySavedText)
		return InboundReplyApplied, nil
	case ReplyNoPendingDelivery:
		s.notify(ctx, msg.Identity, noPendingText)
		return InboundNoPending, nil
	default:
		return InboundUnrecognized, nil
	}
}

func (s *InboundService) attemptLink(ctx context.Context, identity, text string) (InboundOutcome, error) {
	res, err := s.link.AttemptLink(ctx, identity, text)
	if err != nil {
		return "", err
	}
	switch res.Status {
	case LinkLinked:
		s.notify(ctx, identity, linkedText)
		return InboundLinked, nil
	case LinkRateLimited:
		s.notify(ctx, identity, fmt.Sprintf(rateLimitedText, res.RetryAfter.Truncate(time.Second).String()))
		return InboundRateLimited, nil
	default:
		s.notify(ctx, identity, invalidCodeText)
		return InboundInvalidCode, nil
	}
}

// notify 回执失败不影响处理结果
func (s *InboundService) notify(ctx context.Context, identity, text string) {
	if s.messenger == nil {
		return
	}
	if _, err := s.messenger.SendPlain(ctx, identity, text); err != nil {
		s.logger.Warn("Failed to send bot reply", zap.String("identity", identity), zap.Error(err))
	}
}
