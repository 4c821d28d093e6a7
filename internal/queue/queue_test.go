package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DailyPrompt/internal/model"
	pkgerrors "DailyPrompt/pkg/errors"
	"DailyPrompt/pkg/telegram"
)

func TestFromUpdate(t *testing.T) {
	at := time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC)
	u := &telegram.Update{UpdateID: 77, Message: &telegram.Message{Text: "hello", Chat: telegram.Chat{ID: 1001}}}

	msg, ok := FromUpdate(u, at)
	require.True(t, ok)
	assert.Equal(t, "tg:77", msg.MessageID)
	assert.Equal(t, "1001", msg.Identity)
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, "2026-03-10T01:00:00Z", msg.ReceivedAt)

	_, ok = FromUpdate(&telegram.Update{UpdateID: 78}, at)
	assert.False(t, ok)

	_, ok = FromUpdate(&telegram.Update{UpdateID: 79, Message: &telegram.Message{Text: "  "}}, at)
	assert.False(t, ok)
}

func TestDecodeInbound(t *testing.T) {
	var got *model.InboundMessage
	handler := decodeInbound(func(_ context.Context, msg *model.InboundMessage) error {
		got = msg
		if msg.Text == "boom" {
			return errors.New("db down")
		}
		return nil
	})
	ctx := context.Background()

	body, err := json.Marshal(model.InboundMessage{MessageID: "tg:1", Identity: "1001", Text: "hi"})
	require.NoError(t, err)
	require.NoError(t, handler(ctx, body))
	require.NotNil(t, got)
	assert.Equal(t, "hi", got.Text)

	body, _ = json.Marshal(model.InboundMessage{MessageID: "tg:2", Identity: "1001", Text: "boom"})
	err = handler(ctx, body)
	require.Error(t, err)
	assert.False(t, pkgerrors.IsSkipMessageError(err))

	err = handler(ctx, []byte("{not json"))
	assert.True(t, pkgerrors.IsSkipMessageError(err))

	body, _ = json.Marshal(model.InboundMessage{MessageID: "tg:3", Text: "orphan"})
	err = handler(ctx, body)
	assert.True(t, pkgerrors.IsSkipMessageError(err))
}
