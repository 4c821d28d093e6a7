package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"DailyPrompt/internal/model"
	"DailyPrompt/pkg/errors"
	"DailyPrompt/storage/mq"
)

// InboundHandler 处理一条入站消息，返回 error 时消息会重投一次
type InboundHandler func(ctx context.Context, msg *model.InboundMessage) error

const inboundConsumerTag = "gateway_inbound_consumer"

// StartInboundConsumer 阻塞直到 ctx 取消
func StartInboundConsumer(ctx context.Context, prefetch int, handler InboundHandler) error {
	return mq.Consume(ctx, mq.ConsumeOptions{
		Queue:         mq.QueueInbound,
		ConsumerTag:   inboundConsumerTag,
		PrefetchCount: prefetch,
		Handler:       decodeInbound(handler),
	})
}

// decodeInbound 无法解析的消息直接丢弃，重投也不会成功
func decodeInbound(handler InboundHandler) mq.MessageHandler {
	return func(ctx context.Context, body []byte) error {
		var msg model.InboundMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return &errors.SkipMessageError{Reason: fmt.Sprintf("malformed inbound message: %v", err)}
		}
		if msg.Identity == "" {
			return &errors.SkipMessageError{Reason: "inbound message without identity"}
		}
		return handler(ctx, &msg)
	}
}
