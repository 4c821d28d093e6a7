package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMarkdown(t *testing.T) {
	var got sendMessageRequest
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":42}}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, Token: "123:abc"})
	require.NoError(t, err)

	id, err := c.SendMarkdown(context.Background(), "1001", `*hi* \.`)
	require.NoError(t, err)

	assert.Equal(t, "42", id)
	assert.Equal(t, "/bot123:abc/sendMessage", path)
	assert.Equal(t, "1001", got.ChatID)
	assert.Equal(t, ParseModeMarkdownV2, got.ParseMode)
	assert.Equal(t, `*hi* \.`, got.Text)
}

func TestSendMarkdownAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":429,"description":"Too Many Requests","parameters":{"retry_after":3}}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, Token: "t"})
	require.NoError(t, err)

	_, err = c.SendMarkdown(context.Background(), "1", "x")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 429, apiErr.ErrorCode)
	assert.Equal(t, 3, apiErr.RetryAfter)
	assert.True(t, apiErr.Temporary())
}

func TestSendWithoutToken(t *testing.T) {
	c, err := NewClient(Config{BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)

	_, err = c.SendPlain(context.Background(), "1", "x")
	assert.Error(t, err)
}

func TestParseUpdate(t *testing.T) {
	u, err := ParseUpdate([]byte(`{"update_id":7,"message":{"message_id":3,"text":"123456","chat":{"id":-99,"type":"private"}}}`))
	require.NoError(t, err)
	require.NotNil(t, u.Message)

	assert.Equal(t, int64(7), u.UpdateID)
	assert.Equal(t, "-99", u.Message.SenderIdentity())
	assert.Equal(t, "123456", u.Message.Text)

	_, err = ParseUpdate([]byte(`not json`))
	assert.Error(t, err)
}
