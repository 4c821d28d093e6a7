package queue

import (
	"strconv"
	"strings"
	"time"

	"DailyPrompt/internal/model"
	"DailyPrompt/pkg/telegram"
)

const messageIDPrefix = "tg:"

// FromUpdate 把 webhook 推送转成入站消息，非文本消息返回 false
func FromUpdate(u *telegram.Update, receivedAt time.Time) (*model.InboundMessage, bool) {
	if u == nil || u.Message == nil || strings.TrimSpace(u.Message.Text) == "" {
		return nil, false
	}

	return &model.InboundMessage{
		MessageID:  messageIDPrefix + strconv.FormatInt(u.UpdateID, 10),
		Identity:   u.Message.SenderIdentity(),
		Text:       u.Message.Text,
		ReceivedAt: receivedAt.UTC().Format(time.RFC3339),
		UpdateID:   u.UpdateID,
	}, true
}
