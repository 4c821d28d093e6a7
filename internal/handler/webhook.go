package handler

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"go.uber.org/zap"

	"DailyPrompt/config"
	"DailyPrompt/internal/model"
	"DailyPrompt/internal/queue"
	"DailyPrompt/internal/service"
	"DailyPrompt/pkg/logger"
	"DailyPrompt/pkg/telegram"
)

const inboundModeQueue = "queue"

// 入站处理的可替换点，测试中替换
var (
	publishInbound = queue.PublishInbound
	handleInbound  = func(ctx context.Context, msg *model.InboundMessage) error {
		_, err := service.Inbound().Handle(ctx, msg)
		return err
	}
)

// TelegramWebhook 网关回调，无论结果如何都返回 200 {"ok":true}，避免泄露校验结果和触发重试风暴
// POST /webhooks/telegram
func TelegramWebhook(ctx context.Context, c *app.RequestContext) {
	defer c.JSON(consts.StatusOK, utils.H{"ok": true})

	log := logger.Named("webhook")

	secret := config.Cfg.TelegramWebhookSecret
	presented := c.GetHeader(telegram.SecretTokenHeader)
	if secret == "" || subtle.ConstantTimeCompare(presented, []byte(secret)) != 1 {
		log.Warn("Rejected webhook call with bad secret", zap.String("client_ip", c.ClientIP()))
		return
	}

	update, err := telegram.ParseUpdate(c.Request.Body())
	if err != nil {
		log.Warn("Ignoring malformed update", zap.Error(err))
		return
	}

	msg, ok := queue.FromUpdate(update, time.Now())
	if !ok {
		return
	}

	if config.Cfg.InboundMode == inboundModeQueue {
		err := publishInbound(ctx, msg)
		if err == nil {
			return
		}
		// 队列不可用时就地处理
		log.Warn("Inbound publish failed, handling inline", zap.String("message_id", msg.MessageID), zap.Error(err))
	}

	if err := handleInbound(ctx, msg); err != nil {
		log.Error("Failed to handle inbound message",
			zap.String("message_id", msg.MessageID),
			zap.Error(err),
		)
	}
}
