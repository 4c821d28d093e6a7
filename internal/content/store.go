package content

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"DailyPrompt/internal/model"
	"DailyPrompt/internal/repository"
)

// StoreSource 内部 content_items 表
type StoreSource struct {
	repo *repository.ContentRepository
	now  func() time.Time
}

func NewStoreSource(repo *repository.ContentRepository) *StoreSource {
	return &StoreSource{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

func (s *StoreSource) Resolve(ctx context.Context, r *model.Recipient, date string, slot model.Slot) (*Content, error) {
	item, err := s.repo.GetBySlot(ctx, r.ID, date, slot)
	if err != nil {
		return nil, fmt.Errorf("load content item: %w", err)
	}
	// sent 仍然可投递：账本写入失败后的重试要重发同一条
	if item == nil || !item.Deliverable() {
		return nil, ErrContentAbsent
	}

	prompts := make([]string, 0, len(item.Prompts))
	for _, p := range item.Prompts {
		if p = strings.TrimSpace(p); p != "" {
			prompts = append(prompts, p)
		}
	}
	if len(prompts) == 0 {
		return nil, ErrContentAbsent
	}

	return &Content{
		Label:         item.Theme,
		CorrelationID: strconv.FormatInt(item.PublicID, 10),
		Source:        model.ContentSourceStore,
		Prompts:       prompts,
	}, nil
}

func (s *StoreSource) AppendReply(ctx context.Context, _ *model.Recipient, correlationID, text string) error {
	id, err := strconv.ParseInt(correlationID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid store correlation id %q: %w", correlationID, err)
	}
	ok, err := s.repo.AppendReply(ctx, id, text, s.now())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("content item %d not found", id)
	}
	return nil
}

func (s *StoreSource) MarkSent(ctx context.Context, _ *model.Recipient, correlationID string) error {
	id, err := strconv.ParseInt(correlationID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid store correlation id %q: %w", correlationID, err)
	}
	return s.repo.MarkSent(ctx, id, s.now())
}
