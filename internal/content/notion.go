package content

import (
	"context"
	"fmt"
	"strings"

	"DailyPrompt/internal/model"
	"DailyPrompt/pkg/notion"
	"DailyPrompt/utils"
)

// NotionStatusSent 投递后写回页面的 Status 选项
const NotionStatusSent = "Sent"

// NotionAPI 用到的 Notion 调用
type NotionAPI interface {
	QueryByDateAndSlot(ctx context.Context, token, databaseID, date, slot string) ([]notion.Page, error)
	Children(ctx context.Context, token, blockID string) ([]notion.Block, error)
	AppendParagraph(ctx context.Context, token, blockID, text string) error
	SetStatus(ctx context.Context, token, pageID, status string) error
}

// NotionSource 接收者自己的 Notion 数据库，每页一条内容，Date + Slot 两个属性定位
type NotionSource struct {
	api     NotionAPI
	decrypt func(string) (string, error)
}

func NewNotionSource(api NotionAPI) *NotionSource {
	return &NotionSource{api: api, decrypt: utils.DecryptSecret}
}

func (s *NotionSource) credentials(r *model.Recipient) (token, databaseID string, err error) {
	if r.NotionToken == nil || *r.NotionToken == "" || r.NotionDatabaseID == nil || *r.NotionDatabaseID == "" {
		return "", "", fmt.Errorf("%w: recipient %d has no notion credentials", ErrSourceMisconfigured, r.ID)
	}
	token, err = s.decrypt(*r.NotionToken)
	if err != nil {
		return "", "", fmt.Errorf("%w: decrypt notion token: %v", ErrSourceMisconfigured, err)
	}
	return token, *r.NotionDatabaseID, nil
}

func (s *NotionSource) Resolve(ctx context.Context, r *model.Recipient, date string, slot model.Slot) (*Content, error) {
	token, databaseID, err := s.credentials(r)
	if err != nil {
		return nil, err
	}

	pages, err := s.api.QueryByDateAndSlot(ctx, token, databaseID, date, string(slot))
	if err != nil {
		return nil, fmt.Errorf("query notion database: %w", err)
	}
	if len(pages) == 0 {
		return nil, ErrContentAbsent
	}
	page := pages[0]

	blocks, err := s.api.Children(ctx, token, page.ID)
	if err != nil {
		return nil, fmt.Errorf("fetch notion page %s: %w", page.ID, err)
	}

	var prompts []string
	for _, b := range blocks {
		if text := strings.TrimSpace(b.Text()); text != "" {
			prompts = append(prompts, text)
		}
	}
	if len(prompts) == 0 {
		return nil, ErrContentAbsent
	}

	return &Content{
		Label:         page.Title(),
		CorrelationID: page.ID,
		Source:        model.ContentSourceNotion,
		Prompts:       prompts,
	}, nil
}

func (s *NotionSource) AppendReply(ctx context.Context, r *model.Recipient, correlationID, text string) error {
	token, _, err := s.credentials(r)
	if err != nil {
		return err
	}
	return s.api.AppendParagraph(ctx, token, correlationID, text)
}

func (s *NotionSource) MarkSent(ctx context.Context, r *model.Recipient, correlationID string) error {
	token, _, err := s.credentials(r)
	if err != nil {
		return err
	}
	return s.api.SetStatus(ctx, token, correlationID, NotionStatusSent)
}
