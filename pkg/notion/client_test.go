package notion

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{BaseURL: srv.URL, Version: "2022-06-28"})
	require.NoError(t, err)
	return c
}

func TestQueryByDateAndSlot(t *testing.T) {
	var filter map[string]interface{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/databases/db1/query", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "2022-06-28", r.Header.Get("Notion-Version"))

		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &filter))
		_, _ = w.Write([]byte(`{"results":[{"id":"page-1","properties":{"Name":{"type":"title","title":[{"plain_text":"Gratitude"}]}}}]}`))
	})

	pages, err := c.QueryByDateAndSlot(context.Background(), "secret", "db1", "2026-10-14", "morning")
	require.NoError(t, err)
	require.Len(t, pages, 1)

	assert.Equal(t, "page-1", pages[0].ID)
	assert.Equal(t, "Gratitude", pages[0].Title())
	assert.Contains(t, filter, "filter")
}

func TestChildrenFollowsCursor(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Query().Get("start_cursor") == "" {
			_, _ = w.Write([]byte(`{"results":[{"type":"bulleted_list_item","bulleted_list_item":{"rich_text":[{"plain_text":"A"}]}}],"has_more":true,"next_cursor":"c2"}`))
			return
		}
		_, _ = w.Write([]byte(`{"results":[{"type":"paragraph","paragraph":{"rich_text":[{"plain_text":"B "},{"plain_text":"tail"}]}}],"has_more":false}`))
	})

	blocks, err := c.Children(context.Background(), "secret", "page-1")
	require.NoError(t, err)
	require.Len(t, blocks, 2)

	assert.Equal(t, 2, calls)
	assert.True(t, blocks[0].IsListItem())
	assert.Equal(t, "A", blocks[0].Text())
	assert.Equal(t, "B tail", blocks[1].Text())
}

func TestAppendParagraphSplitsLongText(t *testing.T) {
	var payload struct {
		Children []Block `json:"children"`
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &payload))
		_, _ = w.Write([]byte(`{}`))
	})

	err := c.AppendParagraph(context.Background(), "secret", "page-1", strings.Repeat("x", maxRichTextLength+10))
	require.NoError(t, err)
	require.Len(t, payload.Children, 1)
	require.NotNil(t, payload.Children[0].Paragraph)
	assert.Len(t, payload.Children[0].Paragraph.RichText, 2)
}

func TestAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"object":"error","status":401,"code":"unauthorized","message":"API token is invalid."}`))
	})

	err := c.SetStatus(context.Background(), "bad", "page-1", "sent")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "unauthorized", apiErr.Code)
}
