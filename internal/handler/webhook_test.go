package handler

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/cloudwego/hertz/pkg/route"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "DailyPrompt/config"
	"DailyPrompt/internal/model"
	"DailyPrompt/pkg/telegram"
)

const testUpdate = `{"update_id":42,"message":{"message_id":1,"text":"hello","chat":{"id":1001,"type":"private"}}}`

type webhookCalls struct {
	handled   []*model.InboundMessage
	published []*model.InboundMessage
}

func setupWebhook(t *testing.T, mode string, publishErr error) (*route.Engine, *webhookCalls) {
	t.Helper()

	prevCfg := appconfig.Cfg
	prevPublish, prevHandle := publishInbound, handleInbound
	t.Cleanup(func() {
		appconfig.Cfg = prevCfg
		publishInbound, handleInbound = prevPublish, prevHandle
	})

	appconfig.Cfg.TelegramWebhookSecret = "hook-secret"
	appconfig.Cfg.InboundMode = mode

	calls := &webhookCalls{}
	publishInbound = func(_ context.Context, msg *model.InboundMessage) error {
		if publishErr != nil {
			return publishErr
		}
		calls.published = append(calls.published, msg)
		return nil
	}
	handleInbound = func(_ context.Context, msg *model.InboundMessage) error {
		calls.handled = append(calls.handled, msg)
		return errors.New("handler failure never reaches the gateway")
	}

	engine := route.NewEngine(config.NewOptions([]config.Option{}))
	engine.POST("/webhooks/telegram", TelegramWebhook)
	return engine, calls
}

func postUpdate(engine *route.Engine, secret, body string) *ut.ResponseRecorder {
	return ut.PerformRequest(engine, consts.MethodPost, "/webhooks/telegram",
		&ut.Body{Body: bytes.NewBufferString(body), Len: len(body)},
		ut.Header{Key: telegram.SecretTokenHeader, Value: secret},
		ut.Header{Key: "Content-Type", Value: "application/json"},
	)
}

func TestTelegramWebhookRejectsBadSecretWithOK(t *testing.T) {
	engine, calls := setupWebhook(t, "inline", nil)

	w := postUpdate(engine, "wrong", testUpdate)
	assert.Equal(t, consts.StatusOK, w.Result().StatusCode())
	assert.JSONEq(t, `{"ok":true}`, string(w.Result().Body()))
	assert.Empty(t, calls.handled)

	w = postUpdate(engine, "", testUpdate)
	assert.Equal(t, consts.StatusOK, w.Result().StatusCode())
	assert.Empty(t, calls.handled)
}

func TestTelegramWebhookHandlesInline(t *testing.T) {
	engine, calls := setupWebhook(t, "inline", nil)

	w := postUpdate(engine, "hook-secret", testUpdate)
	assert.Equal(t, consts.StatusOK, w.Result().StatusCode())
	assert.JSONEq(t, `{"ok":true}`, string(w.Result().Body()))

	require.Len(t, calls.handled, 1)
	assert.Equal(t, "tg:42", calls.handled[0].MessageID)
	assert.Equal(t, "1001", calls.handled[0].Identity)
	assert.Equal(t, "hello", calls.handled[0].Text)
	assert.Empty(t, calls.published)
}

func TestTelegramWebhookIgnoresMalformedAndNonText(t *testing.T) {
	engine, calls := setupWebhook(t, "inline", nil)

	w := postUpdate(engine, "hook-secret", "{not json")
	assert.Equal(t, consts.StatusOK, w.Result().StatusCode())

	w = postUpdate(engine, "hook-secret", `{"update_id":43}`)
	assert.Equal(t, consts.StatusOK, w.Result().StatusCode())

	assert.Empty(t, calls.handled)
}

func TestTelegramWebhookQueueMode(t *testing.T) {
	engine, calls := setupWebhook(t, "queue", nil)

	postUpdate(engine, "hook-secret", testUpdate)
	require.Len(t, calls.published, 1)
	assert.Empty(t, calls.handled)
}

func TestTelegramWebhookQueueFallsBackInline(t *testing.T) {
	engine, calls := setupWebhook(t, "queue", errors.New("broker down"))

	w := postUpdate(engine, "hook-secret", testUpdate)
	assert.Equal(t, consts.StatusOK, w.Result().StatusCode())
	assert.Empty(t, calls.published)
	require.Len(t, calls.handled, 1)
}
