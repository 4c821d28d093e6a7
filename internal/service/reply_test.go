package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"DailyPrompt/internal/model"
	"DailyPrompt/internal/repository"
)

func deliverOnce(t *testing.T, db *gorm.DB, r *model.Recipient, at string) *model.ContentItem {
	t.Helper()
	now := localUTC(t, at)
	item := seedContent(t, db, r.ID, now.In(mustLoc(t)).Format("2006-01-02"), model.SlotMorning, "How are you?")
	res, err := newTestDelivery(db, &fakeMessenger{}, now).Deliver(context.Background(), r, model.SlotMorning, now)
	require.NoError(t, err)
	require.True(t, res.Sent)
	return item
}

func mustLoc(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(testTimezone)
	require.NoError(t, err)
	return loc
}

func TestCorrelateAppendsToLatestDelivery(t *testing.T) {
	db := setupTest(t)
	ctx := context.Background()
	r := createRecipient(t, db, "acct-1", "1001")
	item := deliverOnce(t, db, r, "2026-03-10 09:00")

	svc := NewReplyService(db, storeRouter(db), 0)

	res, err := svc.Correlate(ctx, "1001", "fine")
	require.NoError(t, err)
	assert.Equal(t, ReplyApplied, res.Status)
	assert.True(t, res.SourceSynced)

	// 重复回复追加两次
	_, err = svc.Correlate(ctx, "1001", "fine")
	require.NoError(t, err)

	entry, err := repository.NewLedgerRepository(db).Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "fine\n\nfine", entry.ReplyBuffer)

	stored, err := repository.NewContentRepository(db).GetByPublicID(ctx, item.PublicID)
	require.NoError(t, err)
	assert.Equal(t, "fine\n\nfine", stored.Reply)
}

func TestCorrelateBindsToNewestItem(t *testing.T) {
	db := setupTest(t)
	ctx := context.Background()
	r := createRecipient(t, db, "acct-1", "1001")
	first := deliverOnce(t, db, r, "2026-03-10 09:00")
	second := deliverOnce(t, db, r, "2026-03-11 09:00")

	res, err := NewReplyService(db, storeRouter(db), 0).Correlate(ctx, "1001", "late answer")
	require.NoError(t, err)
	assert.Equal(t, ReplyApplied, res.Status)
	assert.Equal(t, "2026-03-11", res.SlotDate)

	repo := repository.NewContentRepository(db)
	old, err := repo.GetByPublicID(ctx, first.PublicID)
	require.NoError(t, err)
	assert.Empty(t, old.Reply)

	latest, err := repo.GetByPublicID(ctx, second.PublicID)
	require.NoError(t, err)
	assert.Equal(t, "late answer", latest.Reply)
}

func TestCorrelateNoOps(t *testing.T) {
	db := setupTest(t)
	ctx := context.Background()
	createRecipient(t, db, "acct-1", "1001")
	svc := NewReplyService(db, storeRouter(db), 0)

	res, err := svc.Correlate(ctx, "9999", "who am i")
	require.NoError(t, err)
	assert.Equal(t, ReplyUnrecognizedIdentity, res.Status)

	res, err = svc.Correlate(ctx, "1001", "nothing sent yet")
	require.NoError(t, err)
	assert.Equal(t, ReplyNoPendingDelivery, res.Status)
}

func TestCorrelateReplyWindow(t *testing.T) {
	db := setupTest(t)
	ctx := context.Background()
	r := createRecipient(t, db, "acct-1", "1001")
	deliverOnce(t, db, r, "2026-03-10 09:00")

	svc := NewReplyService(db, storeRouter(db), time.Hour)
	svc.now = func() time.Time { return localUTC(t, "2026-03-10 09:30") }

	res, err := svc.Correlate(ctx, "1001", "in time")
	require.NoError(t, err)
	assert.Equal(t, ReplyApplied, res.Status)

	svc.now = func() time.Time { return localUTC(t, "2026-03-10 11:00") }
	res, err = svc.Correlate(ctx, "1001", "too late")
	require.NoError(t, err)
	assert.Equal(t, ReplyNoPendingDelivery, res.Status)
}
