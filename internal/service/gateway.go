package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"DailyPrompt/config"
	"DailyPrompt/internal/cache"
	"DailyPrompt/pkg/logger"
	"DailyPrompt/pkg/metrics"
	"DailyPrompt/pkg/notion"
	"DailyPrompt/pkg/telegram"
)

// Messenger 网关发送能力，返回网关侧的消息 id
type Messenger interface {
	SendMarkdown(ctx context.Context, chatID, text string) (string, error)
	SendPlain(ctx context.Context, chatID, text string) (string, error)
}

// guardedMessenger 熔断 + 指标，客户端错误（4xx）不计入熔断
type guardedMessenger struct {
	next    Messenger
	breaker *cache.CircuitBreaker
}

func NewGuardedMessenger(next Messenger, breaker *cache.CircuitBreaker) Messenger {
	return &guardedMessenger{next: next, breaker: breaker}
}

func (g *guardedMessenger) SendMarkdown(ctx context.Context, chatID, text string) (string, error) {
	return g.send(ctx, "markdown", func(ctx context.Context) (string, error) {
		return g.next.SendMarkdown(ctx, chatID, text)
	})
}

func (g *guardedMessenger) SendPlain(ctx context.Context, chatID, text string) (string, error) {
	return g.send(ctx, "plain", func(ctx context.Context) (string, error) {
		return g.next.SendPlain(ctx, chatID, text)
	})
}

func (g *guardedMessenger) send(ctx context.Context, mode string, fn func(ctx context.Context) (string, error)) (string, error) {
	start := time.Now()
	var id string
	err := g.breaker.Call(ctx, func(ctx context.Context) error {
		var sendErr error
		id, sendErr = fn(ctx)
		return sendErr
	}, isPermanentGatewayError)

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordGatewaySend(ctx, mode, status, time.Since(start).Seconds())
	return id, err
}

func isPermanentGatewayError(err error) bool {
	var apiErr *telegram.APIError
	return errors.As(err, &apiErr) && !apiErr.Temporary()
}

// guardedNotion 包装 Notion 客户端，401/404 等错误属于接收者配置问题，不触发熔断
type guardedNotion struct {
	next    *notion.Client
	breaker *cache.CircuitBreaker
}

func isPermanentNotionError(err error) bool {
	var apiErr *notion.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode < 500 && apiErr.StatusCode != 429
}

func (g *guardedNotion) QueryByDateAndSlot(ctx context.Context, token, databaseID, date, slot string) ([]notion.Page, error) {
	var pages []notion.Page
	err := g.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		pages, err = g.next.QueryByDateAndSlot(ctx, token, databaseID, date, slot)
		return err
	}, isPermanentNotionError)
	return pages, err
}

func (g *guardedNotion) Children(ctx context.Context, token, blockID string) ([]notion.Block, error) {
	var blocks []notion.Block
	err := g.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		blocks, err = g.next.Children(ctx, token, blockID)
		return err
	}, isPermanentNotionError)
	return blocks, err
}

func (g *guardedNotion) AppendParagraph(ctx context.Context, token, blockID, text string) error {
	return g.breaker.Call(ctx, func(ctx context.Context) error {
		return g.next.AppendParagraph(ctx, token, blockID, text)
	}, isPermanentNotionError)
}

func (g *guardedNotion) SetStatus(ctx context.Context, token, pageID, status string) error {
	return g.breaker.Call(ctx, func(ctx context.Context) error {
		return g.next.SetStatus(ctx, token, pageID, status)
	}, isPermanentNotionError)
}

var (
	messengerOnce sync.Once
	messengerInst Messenger

	notionOnce sync.Once
	notionInst *guardedNotion
)

// DefaultMessenger 基于配置的 Telegram 客户端
func DefaultMessenger() Messenger {
	messengerOnce.Do(func() {
		c, err := telegram.NewClient(telegram.Config{
			BaseURL: config.Cfg.TelegramAPIBase,
			Token:   config.Cfg.TelegramBotToken,
			Timeout: config.Cfg.GatewayTimeout,
		})
		if err != nil {
			logger.Logger.Fatal("Failed to create telegram client", zap.Error(err))
		}
		messengerInst = NewGuardedMessenger(c, cache.GatewayBreaker)
	})
	return messengerInst
}

func defaultNotion() *guardedNotion {
	notionOnce.Do(func() {
		c, err := notion.NewClient(notion.Config{
			BaseURL: config.Cfg.NotionAPIBase,
			Version: config.Cfg.NotionVersion,
		})
		if err != nil {
			logger.Logger.Fatal("Failed to create notion client", zap.Error(err))
		}
		notionInst = &guardedNotion{next: c, breaker: cache.NotionBreaker}
	})
	return notionInst
}
