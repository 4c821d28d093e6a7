package content

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"DailyPrompt/internal/model"
)

var (
	// ErrContentAbsent 当天该时间槽没有可投递的内容，属于正常业务状态
	ErrContentAbsent = errors.New("content absent")
	// ErrSourceMisconfigured 接收者选择的内容源缺少凭据
	ErrSourceMisconfigured = errors.New("content source misconfigured")
)

// Content 与来源无关的投递内容
type Content struct {
	Label         string
	CorrelationID string
	Source        model.ContentSource
	Prompts       []string
}

// Body 每条 prompt 一行
func (c *Content) Body() string {
	return strings.Join(c.Prompts, "\n")
}

// Resolver 按 (recipient, date, slot) 读取内容，不做缓存和重试
type Resolver interface {
	Resolve(ctx context.Context, r *model.Recipient, date string, slot model.Slot) (*Content, error)
}

// ReplyAppender 把回复追加到 correlation id 指向的内容
type ReplyAppender interface {
	AppendReply(ctx context.Context, r *model.Recipient, correlationID, text string) error
}

// SentMarker 投递成功后推进内容状态
type SentMarker interface {
	MarkSent(ctx context.Context, r *model.Recipient, correlationID string) error
}

// Source 一个完整的内容源
type Source interface {
	Resolver
	ReplyAppender
	SentMarker
}

// Router 按接收者配置选择内容源
type Router struct {
	sources map[model.ContentSource]Source
}

func NewRouter(store, notion Source) *Router {
	return &Router{sources: map[model.ContentSource]Source{
		model.ContentSourceStore:  store,
		model.ContentSourceNotion: notion,
	}}
}

func (rt *Router) source(kind model.ContentSource) (Source, error) {
	src, ok := rt.sources[kind]
	if !ok || src == nil {
		return nil, fmt.Errorf("%w: unknown source %q", ErrSourceMisconfigured, kind)
	}
	return src, nil
}

func (rt *Router) Resolve(ctx context.Context, r *model.Recipient, date string, slot model.Slot) (*Content, error) {
	src, err := rt.source(r.Source)
	if err != nil {
		return nil, err
	}
	return src.Resolve(ctx, r, date, slot)
}

// AppendReplyTo 回复写到投递时记录的来源，接收者之后切换来源不影响已投递的内容
func (rt *Router) AppendReplyTo(ctx context.Context, kind model.ContentSource, r *model.Recipient, correlationID, text string) error {
	src, err := rt.source(kind)
	if err != nil {
		return err
	}
	return src.AppendReply(ctx, r, correlationID, text)
}

func (rt *Router) MarkSentIn(ctx context.Context, kind model.ContentSource, r *model.Recipient, correlationID string) error {
	src, err := rt.source(kind)
	if err != nil {
		return err
	}
	return src.MarkSent(ctx, r, correlationID)
}
