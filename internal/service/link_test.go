package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"DailyPrompt/internal/repository"
	pkgerrors "DailyPrompt/pkg/errors"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLink(db *gorm.DB, clock *testClock) *LinkService {
	s := NewLinkService(db, LinkOptions{
		Passphrase:     "open sesame",
		TTL:            10 * time.Minute,
		Window:         15 * time.Minute,
		MaxAttempts:    10,
		IssuePerMinute: 5,
	})
	s.now = clock.Now
	return s
}

func wrongCode(code string) string {
	if code == "111111" {
		return "222222"
	}
	return "111111"
}

func TestLinkWithCode(t *testing.T) {
	db := setupTest(t)
	ctx := context.Background()
	createRecipient(t, db, "acct-1", "")
	clock := &testClock{now: time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC)}
	svc := newTestLink(db, clock)

	issued, err := svc.IssueCode(ctx, "acct-1")
	require.NoError(t, err)
	assert.Len(t, issued.Code, 6)
	assert.Equal(t, clock.Now().Add(10*time.Minute), issued.ExpiresAt.UTC())

	res, err := svc.AttemptLink(ctx, "1001", "/start "+issued.Code)
	require.NoError(t, err)
	assert.Equal(t, LinkLinked, res.Status)
	assert.Equal(t, "acct-1", res.AccountID)

	r, err := repository.NewRecipientRepository(db).GetByAccountID(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "1001", r.Identity())

	// 单次有效
	res, err = svc.AttemptLink(ctx, "1002", issued.Code)
	require.NoError(t, err)
	assert.Equal(t, LinkInvalidCode, res.Status)
	assert.Equal(t, LinkReasonConsumedOrExpired, res.Reason)
}

func TestLinkCodeExpires(t *testing.T) {
	db := setupTest(t)
	ctx := context.Background()
	createRecipient(t, db, "acct-1", "")
	clock := &testClock{now: time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC)}
	svc := newTestLink(db, clock)

	issued, err := svc.IssueCode(ctx, "acct-1")
	require.NoError(t, err)

	clock.Advance(11 * time.Minute)
	res, err := svc.AttemptLink(ctx, "1001", issued.Code)
	require.NoError(t, err)
	assert.Equal(t, LinkInvalidCode, res.Status)
	assert.Equal(t, LinkReasonConsumedOrExpired, res.Reason)
}

func TestIssueCodeInvalidatesPrevious(t *testing.T) {
	db := setupTest(t)
	ctx := context.Background()
	createRecipient(t, db, "acct-1", "")
	clock := &testClock{now: time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC)}
	svc := newTestLink(db, clock)

	first, err := svc.IssueCode(ctx, "acct-1")
	require.NoError(t, err)
	clock.Advance(time.Second)
	second, err := svc.IssueCode(ctx, "acct-1")
	require.NoError(t, err)

	if first.Code != second.Code {
		res, err := svc.AttemptLink(ctx, "1001", first.Code)
		require.NoError(t, err)
		assert.Equal(t, LinkInvalidCode, res.Status)
	}

	res, err := svc.AttemptLink(ctx, "1001", second.Code)
	require.NoError(t, err)
	assert.Equal(t, LinkLinked, res.Status)
}

func TestLinkLockout(t *testing.T) {
	db := setupTest(t)
	ctx := context.Background()
	createRecipient(t, db, "acct-1", "")
	clock := &testClock{now: time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC)}
	svc := newTestLink(db, clock)

	issued, err := svc.IssueCode(ctx, "acct-1")
	require.NoError(t, err)
	bad := wrongCode(issued.Code)

	for i := 1; i <= 10; i++ {
		res, err := svc.AttemptLink(ctx, "1001", bad)
		require.NoError(t, err)
		assert.Equal(t, LinkInvalidCode, res.Status, "attempt %d", i)
		assert.Equal(t, 10-i, res.AttemptsRemaining, "attempt %d", i)
	}

	// 锁定期间正确的码也被拒绝，且不计数
	res, err := svc.AttemptLink(ctx, "1001", issued.Code)
	require.NoError(t, err)
	assert.Equal(t, LinkRateLimited, res.Status)
	assert.Equal(t, 15*time.Minute, res.RetryAfter)

	counter, err := repository.NewLinkRepository(db).GetCounter(ctx, "1001")
	require.NoError(t, err)
	assert.Equal(t, 10, counter.AttemptCount)

	// 其他身份不受影响
	res, err = svc.AttemptLink(ctx, "1002", bad)
	require.NoError(t, err)
	assert.Equal(t, LinkInvalidCode, res.Status)

	clock.Advance(16 * time.Minute)
	res, err = svc.AttemptLink(ctx, "1001", bad)
	require.NoError(t, err)
	assert.Equal(t, LinkInvalidCode, res.Status)
	assert.Equal(t, 9, res.AttemptsRemaining)
}

func TestLinkWithPassphrase(t *testing.T) {
	db := setupTest(t)
	ctx := context.Background()
	createRecipient(t, db, "acct-1", "")
	clock := &testClock{now: time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC)}
	svc := newTestLink(db, clock)

	res, err := svc.AttemptLink(ctx, "1001", "open sesame")
	require.NoError(t, err)
	assert.Equal(t, LinkInvalidCode, res.Status)

	_, err = svc.IssueCode(ctx, "acct-1")
	require.NoError(t, err)

	res, err = svc.AttemptLink(ctx, "1001", "  open sesame ")
	require.NoError(t, err)
	assert.Equal(t, LinkLinked, res.Status)
	assert.Equal(t, "acct-1", res.AccountID)
}

func TestRelinkMovesIdentity(t *testing.T) {
	db := setupTest(t)
	ctx := context.Background()
	createRecipient(t, db, "acct-old", "1001")
	createRecipient(t, db, "acct-new", "")
	clock := &testClock{now: time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC)}
	svc := newTestLink(db, clock)

	issued, err := svc.IssueCode(ctx, "acct-new")
	require.NoError(t, err)
	res, err := svc.AttemptLink(ctx, "1001", issued.Code)
	require.NoError(t, err)
	require.Equal(t, LinkLinked, res.Status)

	repo := repository.NewRecipientRepository(db)
	old, err := repo.GetByAccountID(ctx, "acct-old")
	require.NoError(t, err)
	assert.False(t, old.IsLinked())

	current, err := repo.GetByIdentity(ctx, "1001")
	require.NoError(t, err)
	assert.Equal(t, "acct-new", current.AccountID)
}

func TestIssueCodeErrors(t *testing.T) {
	db := setupTest(t)
	ctx := context.Background()
	clock := &testClock{now: time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC)}
	svc := newTestLink(db, clock)

	_, err := svc.IssueCode(ctx, "missing")
	assert.ErrorIs(t, err, pkgerrors.RecipientNotFound)

	createRecipient(t, db, "acct-1", "")
	for i := 0; i < 5; i++ {
		_, err := svc.IssueCode(ctx, "acct-1")
		require.NoError(t, err)
	}
	_, err = svc.IssueCode(ctx, "acct-1")
	assert.ErrorIs(t, err, pkgerrors.LinkCodeIssueLimited)
}

func TestNormalizeLinkText(t *testing.T) {
	assert.Equal(t, "123456", NormalizeLinkText(" /start 123456 "))
	assert.Equal(t, "123456", NormalizeLinkText("123456"))
	assert.Equal(t, "", NormalizeLinkText("/start"))
	assert.Equal(t, "hello", NormalizeLinkText("hello"))
}
