package content

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"DailyPrompt/internal/model"
	"DailyPrompt/internal/repository"
	"DailyPrompt/pkg/notion"
	"DailyPrompt/storage/database"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenMemory(strings.ReplaceAll(t.Name(), "/", "_"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func strPtr(s string) *string { return &s }

func TestStoreSourceResolve(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewContentRepository(db)
	src := NewStoreSource(repo)
	ctx := context.Background()

	r := &model.Recipient{Source: model.ContentSourceStore}
	r.ID = 7

	_, err := src.Resolve(ctx, r, "2026-10-14", model.SlotMorning)
	assert.ErrorIs(t, err, ErrContentAbsent)

	item := &model.ContentItem{
		PublicID:    1001,
		RecipientID: 7,
		SlotDate:    "2026-10-14",
		Slot:        model.SlotMorning,
		Prompts:     datatypes.JSONSlice[string]{"A", " ", "B"},
		Theme:       "Gratitude",
	}
	require.NoError(t, repo.UpsertScheduled(ctx, item))

	got, err := src.Resolve(ctx, r, "2026-10-14", model.SlotMorning)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, got.Prompts)
	assert.Equal(t, "Gratitude", got.Label)
	assert.Equal(t, "1001", got.CorrelationID)
	assert.Equal(t, model.ContentSourceStore, got.Source)

	// 其它时间槽仍然没有内容
	_, err = src.Resolve(ctx, r, "2026-10-14", model.SlotEvening)
	assert.ErrorIs(t, err, ErrContentAbsent)
}

func TestStoreSourceDraftIsAbsent(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&model.ContentItem{
		PublicID:    1,
		RecipientID: 1,
		SlotDate:    "2026-10-14",
		Slot:        model.SlotEvening,
		Prompts:     datatypes.JSONSlice[string]{"draft prompt"},
		Status:      model.ContentStatusDraft,
	}).Error)

	src := NewStoreSource(repository.NewContentRepository(db))
	r := &model.Recipient{}
	r.ID = 1

	_, err := src.Resolve(context.Background(), r, "2026-10-14", model.SlotEvening)
	assert.ErrorIs(t, err, ErrContentAbsent)
}

func TestStoreSourceReplyAndMarkSent(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewContentRepository(db)
	src := NewStoreSource(repo)
	ctx := context.Background()

	require.NoError(t, repo.UpsertScheduled(ctx, &model.ContentItem{
		PublicID: 55, RecipientID: 3, SlotDate: "2026-10-14", Slot: model.SlotMorning,
		Prompts: datatypes.JSONSlice[string]{"A"},
	}))

	r := &model.Recipient{}
	require.NoError(t, src.MarkSent(ctx, r, "55"))
	require.NoError(t, src.AppendReply(ctx, r, "55", "first"))
	require.NoError(t, src.AppendReply(ctx, r, "55", "second"))

	item, err := repo.GetByPublicID(ctx, 55)
	require.NoError(t, err)
	assert.Equal(t, model.ContentStatusSent, item.Status)
	assert.NotNil(t, item.SentAt)
	assert.Equal(t, "first\n\nsecond", item.Reply)

	// sent 之后不能被重新生成覆盖，但仍可解析以便重发
	err = repo.UpsertScheduled(ctx, &model.ContentItem{
		PublicID: 56, RecipientID: 3, SlotDate: "2026-10-14", Slot: model.SlotMorning,
		Prompts: datatypes.JSONSlice[string]{"other"},
	})
	assert.ErrorIs(t, err, repository.ErrContentLocked)

	r.ID = 3
	got, err := src.Resolve(ctx, r, "2026-10-14", model.SlotMorning)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, got.Prompts)

	assert.Error(t, src.AppendReply(ctx, r, "not-a-number", "x"))
}

type fakeNotion struct {
	pages    []notion.Page
	blocks   []notion.Block
	appended []string
	status   map[string]string
	token    string
	err      error
}

func (f *fakeNotion) QueryByDateAndSlot(_ context.Context, token, _, _, _ string) ([]notion.Page, error) {
	f.token = token
	return f.pages, f.err
}

func (f *fakeNotion) Children(context.Context, string, string) ([]notion.Block, error) {
	return f.blocks, nil
}

func (f *fakeNotion) AppendParagraph(_ context.Context, _, blockID, text string) error {
	f.appended = append(f.appended, blockID+":"+text)
	return nil
}

func (f *fakeNotion) SetStatus(_ context.Context, _, pageID, status string) error {
	if f.status == nil {
		f.status = map[string]string{}
	}
	f.status[pageID] = status
	return nil
}

func paragraph(text string) notion.Block {
	return notion.Block{Type: "paragraph", Paragraph: &notion.BlockText{RichText: []notion.RichText{{PlainText: text}}}}
}

func newNotionRecipient() *model.Recipient {
	return &model.Recipient{
		Source:           model.ContentSourceNotion,
		NotionToken:      strPtr("sealed"),
		NotionDatabaseID: strPtr("db-1"),
	}
}

func TestNotionSourceResolve(t *testing.T) {
	api := &fakeNotion{
		pages: []notion.Page{{ID: "page-1", Properties: map[string]notion.Property{
			notion.PropertyTitle: {Type: "title", Title: []notion.RichText{{PlainText: "Reflect"}}},
		}}},
		blocks: []notion.Block{paragraph("What went well?"), paragraph(" "), paragraph("What's next?")},
	}
	src := NewNotionSource(api)
	src.decrypt = func(s string) (string, error) { return "plain-" + s, nil }

	got, err := src.Resolve(context.Background(), newNotionRecipient(), "2026-10-14", model.SlotEvening)
	require.NoError(t, err)

	assert.Equal(t, "plain-sealed", api.token)
	assert.Equal(t, []string{"What went well?", "What's next?"}, got.Prompts)
	assert.Equal(t, "Reflect", got.Label)
	assert.Equal(t, "page-1", got.CorrelationID)
	assert.Equal(t, model.ContentSourceNotion, got.Source)
}

func TestNotionSourceAbsentAndMisconfigured(t *testing.T) {
	src := NewNotionSource(&fakeNotion{})
	src.decrypt = func(s string) (string, error) { return s, nil }

	_, err := src.Resolve(context.Background(), newNotionRecipient(), "2026-10-14", model.SlotMorning)
	assert.ErrorIs(t, err, ErrContentAbsent)

	_, err = src.Resolve(context.Background(), &model.Recipient{Source: model.ContentSourceNotion}, "2026-10-14", model.SlotMorning)
	assert.ErrorIs(t, err, ErrSourceMisconfigured)

	src.decrypt = func(string) (string, error) { return "", errors.New("bad key") }
	_, err = src.Resolve(context.Background(), newNotionRecipient(), "2026-10-14", model.SlotMorning)
	assert.ErrorIs(t, err, ErrSourceMisconfigured)
}

func TestRouterDispatch(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewContentRepository(db)
	store := NewStoreSource(repo)
	api := &fakeNotion{}
	ns := NewNotionSource(api)
	ns.decrypt = func(s string) (string, error) { return s, nil }
	rt := NewRouter(store, ns)
	ctx := context.Background()

	r := newNotionRecipient()
	require.NoError(t, rt.AppendReplyTo(ctx, model.ContentSourceNotion, r, "page-9", "hello"))
	require.NoError(t, rt.MarkSentIn(ctx, model.ContentSourceNotion, r, "page-9"))
	assert.Equal(t, []string{"page-9:hello"}, api.appended)
	assert.Equal(t, NotionStatusSent, api.status["page-9"])

	require.NoError(t, repo.UpsertScheduled(ctx, &model.ContentItem{
		PublicID: 77, RecipientID: 1, SlotDate: "2026-10-14", Slot: model.SlotMorning,
		Prompts: datatypes.JSONSlice[string]{"A"},
	}))
	require.NoError(t, rt.AppendReplyTo(ctx, model.ContentSourceStore, r, strconv.Itoa(77), "reply"))

	_, err := rt.Resolve(ctx, &model.Recipient{Source: "ftp"}, "2026-10-14", model.SlotMorning)
	assert.ErrorIs(t, err, ErrSourceMisconfigured)
}
