package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

const (
	ParseModeMarkdownV2 = "MarkdownV2"

	// SecretTokenHeader 是 setWebhook(secret_token) 后 Telegram 每次回调携带的请求头
	SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"
)

// Client Bot API 的最小封装，只覆盖 sendMessage
type Client struct {
	hc      *client.Client
	baseURL string
	token   string
	timeout time.Duration
}

type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// APIError 表示 Telegram 返回 ok=false
type APIError struct {
	StatusCode  int
	ErrorCode   int
	Description string
	RetryAfter  int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram api error %d: %s", e.ErrorCode, e.Description)
}

// Temporary 429 和 5xx 可以在下一次调度时重试
func (e *APIError) Temporary() bool {
	return e.StatusCode == consts.StatusTooManyRequests || e.StatusCode >= 500
}

func NewClient(cfg Config) (*Client, error) {
	hc, err := client.NewClient(client.WithDialTimeout(5 * time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to create hertz client: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		hc:      hc,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		timeout: timeout,
	}, nil
}

type sendMessageRequest struct {
	ChatID             string `json:"chat_id"`
	Text               string `json:"text"`
	ParseMode          string `json:"parse_mode,omitempty"`
	DisableLinkPreview bool   `json:"disable_web_page_preview,omitempty"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// SendMarkdown 以 MarkdownV2 发送，text 必须已经按 EscapeMarkdownV2 处理过动态片段
func (c *Client) SendMarkdown(ctx context.Context, chatID, text string) (string, error) {
	return c.send(ctx, sendMessageRequest{
		ChatID:             chatID,
		Text:               text,
		ParseMode:          ParseModeMarkdownV2,
		DisableLinkPreview: true,
	})
}

// SendPlain 发送纯文本，用于机器人回执
func (c *Client) SendPlain(ctx context.Context, chatID, text string) (string, error) {
	return c.send(ctx, sendMessageRequest{ChatID: chatID, Text: text})
}

func (c *Client) send(ctx context.Context, payload sendMessageRequest) (string, error) {
	if c.token == "" {
		return "", fmt.Errorf("telegram bot token is not configured")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal sendMessage: %w", err)
	}

	req := protocol.AcquireRequest()
	resp := protocol.AcquireResponse()
	defer protocol.ReleaseRequest(req)
	defer protocol.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + "/bot" + c.token + "/sendMessage")
	req.SetMethod(consts.MethodPost)
	req.Header.SetContentTypeBytes([]byte("application/json"))
	req.SetBody(body)

	if err := c.hc.DoTimeout(ctx, req, resp, c.timeout); err != nil {
		return "", fmt.Errorf("telegram sendMessage: %w", err)
	}

	var out apiResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", fmt.Errorf("telegram sendMessage: decode response (status %d): %w", resp.StatusCode(), err)
	}
	if !out.OK {
		apiErr := &APIError{
			StatusCode:  resp.StatusCode(),
			ErrorCode:   out.ErrorCode,
			Description: out.Description,
		}
		if out.Parameters != nil {
			apiErr.RetryAfter = out.Parameters.RetryAfter
		}
		return "", apiErr
	}

	var msg struct {
		MessageID int64 `json:"message_id"`
	}
	if err := json.Unmarshal(out.Result, &msg); err != nil {
		return "", fmt.Errorf("telegram sendMessage: decode result: %w", err)
	}

	return strconv.FormatInt(msg.MessageID, 10), nil
}
