package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"DailyPrompt/config"
	"DailyPrompt/internal/content"
	"DailyPrompt/internal/model"
	"DailyPrompt/internal/repository"
	"DailyPrompt/internal/schedule"
	"DailyPrompt/pkg/snowflake"
	"DailyPrompt/storage/database"
	"DailyPrompt/storage/redis"
)

const testTimezone = "Asia/Shanghai"

type sentMessage struct {
	chatID string
	text   string
}

type fakeMessenger struct {
	mu       sync.Mutex
	markdown []sentMessage
	plain    []sentMessage
	failures int // 前 n 次发送失败
}

func (f *fakeMessenger) SendMarkdown(_ context.Context, chatID, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return "", errors.New("gateway unavailable")
	}
	f.markdown = append(f.markdown, sentMessage{chatID: chatID, text: text})
	return "1", nil
}

func (f *fakeMessenger) SendPlain(_ context.Context, chatID, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plain = append(f.plain, sentMessage{chatID: chatID, text: text})
	return "2", nil
}

func (f *fakeMessenger) markdownCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.markdown)
}

func (f *fakeMessenger) lastPlain() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.plain) == 0 {
		return ""
	}
	return f.plain[len(f.plain)-1].text
}

func setupTest(t *testing.T) *gorm.DB {
	t.Helper()

	config.Cfg.CodeHashSalt = "test-salt"
	config.Cfg.EncryptionKey = "0123456789abcdef0123456789abcdef"
	require.NoError(t, snowflake.Init(1, 1))

	mr := miniredis.RunT(t)
	redis.Use(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))

	db, err := database.OpenMemory(strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func strPtr(s string) *string { return &s }

func createRecipient(t *testing.T, db *gorm.DB, accountID, identity string) *model.Recipient {
	t.Helper()
	r := &model.Recipient{
		AccountID: accountID,
		Timezone:  testTimezone,
		MorningAt: "09:00",
		EveningAt: "21:00",
		Source:    model.ContentSourceStore,
		Active:    true,
	}
	if identity != "" {
		r.GatewayIdentity = strPtr(identity)
	}
	require.NoError(t, repository.NewRecipientRepository(db).Create(context.Background(), r))
	return r
}

func seedContent(t *testing.T, db *gorm.DB, recipientID int64, date string, slot model.Slot, prompts ...string) *model.ContentItem {
	t.Helper()
	id, err := snowflake.NextID()
	require.NoError(t, err)

	item := &model.ContentItem{
		PublicID:    id,
		RecipientID: recipientID,
		SlotDate:    date,
		Slot:        slot,
		Theme:       "Gratitude",
		Prompts:     prompts,
	}
	require.NoError(t, repository.NewContentRepository(db).UpsertScheduled(context.Background(), item))
	return item
}

// localUTC 把接收者本地时间换成 UTC
func localUTC(t *testing.T, local string) time.Time {
	t.Helper()
	loc, err := time.LoadLocation(testTimezone)
	require.NoError(t, err)
	ts, err := time.ParseInLocation("2006-01-02 15:04", local, loc)
	require.NoError(t, err)
	return ts.UTC()
}

func storeRouter(db *gorm.DB) *content.Router {
	return content.NewRouter(content.NewStoreSource(repository.NewContentRepository(db)), nil)
}

func newTestDelivery(db *gorm.DB, messenger Messenger, now time.Time) *DeliveryService {
	s := NewDeliveryService(db, storeRouter(db), messenger, schedule.NewEvaluator(5*time.Minute), 5*time.Minute)
	s.now = func() time.Time { return now }
	return s
}
