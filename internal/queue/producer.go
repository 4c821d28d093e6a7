package queue

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"DailyPrompt/internal/model"
	"DailyPrompt/pkg/logger"
	"DailyPrompt/storage/mq"
)

// PublishInbound 入站消息写入 gateway.inbound，由 worker 异步处理
func PublishInbound(ctx context.Context, msg *model.InboundMessage) error {
	if msg.MessageID == "" {
		return fmt.Errorf("inbound message without id")
	}

	if err := mq.PublishMessage(ctx, mq.ExchangeGateway, mq.RoutingKeyInbound, msg.MessageID, msg); err != nil {
		logger.Logger.Error("Failed to publish inbound message",
			zap.String("message_id", msg.MessageID),
			zap.Error(err),
		)
		return err
	}

	logger.Logger.Debug("Published inbound message",
		zap.String("message_id", msg.MessageID),
		zap.String("identity", msg.Identity),
	)
	return nil
}
