package service

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DailyPrompt/internal/content"
	"DailyPrompt/internal/model"
	"DailyPrompt/internal/repository"
	"DailyPrompt/internal/schedule"
)

func TestDeliverEndToEnd(t *testing.T) {
	db := setupTest(t)
	ctx := context.Background()

	r := createRecipient(t, db, "acct-1", "1001")
	item := seedContent(t, db, r.ID, "2026-03-10", model.SlotMorning, "A", "B")

	messenger := &fakeMessenger{}
	now := localUTC(t, "2026-03-10 09:02")
	runner := schedule.NewTickRunner(repository.NewRecipientRepository(db), newTestDelivery(db, messenger, now), schedule.NewEvaluator(5*time.Minute), 4)

	report, err := runner.Tick(ctx, []model.Slot{model.SlotMorning}, now)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Due)
	assert.Equal(t, 1, report.Sent)

	require.Equal(t, 1, messenger.markdownCount())
	msg := messenger.markdown[0]
	assert.Equal(t, "1001", msg.chatID)
	assert.Contains(t, msg.text, "1\\. A\n2\\. B")
	assert.Contains(t, msg.text, "2026\\-03\\-10")

	entry, err := repository.NewLedgerRepository(db).Get(ctx, r.ID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, model.SlotMorning, entry.Slot)
	assert.Equal(t, "2026-03-10", entry.SlotDate)
	assert.Equal(t, strconv.FormatInt(item.PublicID, 10), entry.CorrelationID)
	assert.Equal(t, model.ContentSourceStore, entry.Source)

	stored, err := repository.NewContentRepository(db).GetByPublicID(ctx, item.PublicID)
	require.NoError(t, err)
	assert.Equal(t, model.ContentStatusSent, stored.Status)

	later := localUTC(t, "2026-03-10 09:04")
	report, err = runner.Tick(ctx, []model.Slot{model.SlotMorning}, later)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Sent)
	assert.Equal(t, 1, report.Skipped[model.SkipAlreadySent])
	assert.Equal(t, 1, messenger.markdownCount())
}

func TestDeliverConcurrentClaimsSendOnce(t *testing.T) {
	db := setupTest(t)
	r := createRecipient(t, db, "acct-1", "1001")
	seedContent(t, db, r.ID, "2026-03-10", model.SlotMorning, "A")

	messenger := &fakeMessenger{}
	now := localUTC(t, "2026-03-10 09:00")
	svc := newTestDelivery(db, messenger, now)

	const workers = 8
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		sent  int
		skips []model.SkipReason
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Deliver(context.Background(), r, model.SlotMorning, now)
			assert.NoError(t, err)

			mu.Lock()
			defer mu.Unlock()
			if res.Sent {
				sent++
			} else {
				skips = append(skips, res.SkippedReason)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, sent)
	assert.Equal(t, 1, messenger.markdownCount())
	for _, reason := range skips {
		assert.Contains(t, []model.SkipReason{model.SkipAlreadySent, model.SkipInFlight}, reason)
	}
}

func TestDeliverRetriesAfterGatewayFailure(t *testing.T) {
	db := setupTest(t)
	ctx := context.Background()
	r := createRecipient(t, db, "acct-1", "1001")
	seedContent(t, db, r.ID, "2026-03-10", model.SlotMorning, "A")

	messenger := &fakeMessenger{failures: 1}
	now := localUTC(t, "2026-03-10 08:57")
	svc := newTestDelivery(db, messenger, now)

	_, err := svc.Deliver(ctx, r, model.SlotMorning, now)
	require.Error(t, err)

	var claim model.DeliveryClaim
	require.NoError(t, db.Where("recipient_id = ?", r.ID).First(&claim).Error)
	assert.Equal(t, model.ClaimStatusFailed, claim.Status)
	assert.Contains(t, claim.LastError, "gateway unavailable")

	res, err := svc.Deliver(ctx, r, model.SlotMorning, now.Add(5*time.Minute))
	require.NoError(t, err)
	assert.True(t, res.Sent)
	assert.Equal(t, 1, messenger.markdownCount())

	require.NoError(t, db.Where("recipient_id = ?", r.ID).First(&claim).Error)
	assert.Equal(t, model.ClaimStatusSent, claim.Status)
	assert.Equal(t, 2, claim.Attempts)
}

func TestDeliverSkips(t *testing.T) {
	db := setupTest(t)
	ctx := context.Background()
	now := localUTC(t, "2026-03-10 09:00")
	messenger := &fakeMessenger{}
	svc := newTestDelivery(db, messenger, now)

	t.Run("no content releases claim", func(t *testing.T) {
		r := createRecipient(t, db, "acct-empty", "2001")

		res, err := svc.Deliver(ctx, r, model.SlotMorning, now)
		require.NoError(t, err)
		assert.Equal(t, model.SkipNoContent, res.SkippedReason)

		var n int64
		require.NoError(t, db.Model(&model.DeliveryClaim{}).Where("recipient_id = ?", r.ID).Count(&n).Error)
		assert.Zero(t, n)

		seedContent(t, db, r.ID, "2026-03-10", model.SlotMorning, "late import")
		res, err = svc.Deliver(ctx, r, model.SlotMorning, now)
		require.NoError(t, err)
		assert.True(t, res.Sent)
	})

	t.Run("not linked", func(t *testing.T) {
		r := createRecipient(t, db, "acct-unlinked", "")
		res, err := svc.Deliver(ctx, r, model.SlotMorning, now)
		require.NoError(t, err)
		assert.Equal(t, model.SkipNotLinked, res.SkippedReason)
	})

	t.Run("inactive", func(t *testing.T) {
		r := createRecipient(t, db, "acct-paused", "2002")
		r.Active = false
		res, err := svc.Deliver(ctx, r, model.SlotMorning, now)
		require.NoError(t, err)
		assert.Equal(t, model.SkipInactive, res.SkippedReason)
	})

	t.Run("draft is absent", func(t *testing.T) {
		r := createRecipient(t, db, "acct-draft", "2003")
		item := seedContent(t, db, r.ID, "2026-03-10", model.SlotMorning, "A")
		require.NoError(t, db.Model(&model.ContentItem{}).Where("id = ?", item.ID).Update("status", model.ContentStatusDraft).Error)

		res, err := svc.Deliver(ctx, r, model.SlotMorning, now)
		require.NoError(t, err)
		assert.Equal(t, model.SkipNoContent, res.SkippedReason)
	})
}

func TestDeliverOccurrenceAcrossMidnight(t *testing.T) {
	db := setupTest(t)
	ctx := context.Background()

	r := createRecipient(t, db, "acct-1", "1001")
	r.MorningAt = "00:00"
	require.NoError(t, repository.NewRecipientRepository(db).UpdateSettings(ctx, r))
	seedContent(t, db, r.ID, "2026-03-11", model.SlotMorning, "midnight")

	now := localUTC(t, "2026-03-10 23:58")
	res, err := newTestDelivery(db, &fakeMessenger{}, now).Deliver(ctx, r, model.SlotMorning, now)
	require.NoError(t, err)
	assert.True(t, res.Sent)
	assert.Equal(t, "2026-03-11", res.SlotDate)
}

func TestFormatMessageEscapesFragments(t *testing.T) {
	c := &content.Content{Label: "Wins_(daily)", Prompts: []string{"What *worked*?", "1+1=2!"}}
	text := FormatMessage(model.SlotEvening, "2026-03-10", c)

	assert.Contains(t, text, "_Wins\\_\\(daily\\)_")
	assert.Contains(t, text, "1\\. What \\*worked\\*?")
	assert.Contains(t, text, "2\\. 1\\+1\\=2\\!")
	assert.Contains(t, text, "Good evening")
}

func TestDeliverUTCRecipientOncePerSlot(t *testing.T) {
	db := setupTest(t)
	ctx := context.Background()

	r := &model.Recipient{
		AccountID:       "acct-utc",
		GatewayIdentity: strPtr("2002"),
		Timezone:        "UTC",
		MorningAt:       "09:00",
		EveningAt:       "21:00",
		Source:          model.ContentSourceStore,
		Active:          true,
	}
	require.NoError(t, repository.NewRecipientRepository(db).Create(ctx, r))
	seedContent(t, db, r.ID, "2026-05-01", model.SlotMorning, "A", "B")

	messenger := &fakeMessenger{}
	first := time.Date(2026, 5, 1, 9, 2, 0, 0, time.UTC)

	res, err := newTestDelivery(db, messenger, first).Deliver(ctx, r, model.SlotMorning, first)
	require.NoError(t, err)
	assert.True(t, res.Sent)
	assert.Equal(t, "2026-05-01", res.SlotDate)

	second := time.Date(2026, 5, 1, 9, 4, 0, 0, time.UTC)
	res, err = newTestDelivery(db, messenger, second).Deliver(ctx, r, model.SlotMorning, second)
	require.NoError(t, err)
	assert.False(t, res.Sent)
	assert.Equal(t, model.SkipAlreadySent, res.SkippedReason)

	require.Equal(t, 1, messenger.markdownCount())
	assert.Contains(t, messenger.markdown[0].text, "1\\. A\n2\\. B")
}
