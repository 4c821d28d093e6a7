package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DailyPrompt/storage/redis"
)

func setupRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	redis.Use(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	return mr
}

func TestMessageDedupe(t *testing.T) {
	setupRedis(t)
	ctx := context.Background()

	first, err := TryMarkMessageProcessing(ctx, "tg:1", 0)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := TryMarkMessageProcessing(ctx, "tg:1", 0)
	require.NoError(t, err)
	assert.False(t, again)

	require.NoError(t, UnmarkMessageProcessing(ctx, "tg:1"))
	retry, err := TryMarkMessageProcessing(ctx, "tg:1", 0)
	require.NoError(t, err)
	assert.True(t, retry)

	require.NoError(t, MarkMessageProcessed(ctx, "tg:1", time.Hour))
	done, err := TryMarkMessageProcessing(ctx, "tg:1", 0)
	require.NoError(t, err)
	assert.False(t, done)
}

func TestLockOnlyReleasedByOwner(t *testing.T) {
	setupRedis(t)
	ctx := context.Background()

	ok, err := TryLock(ctx, "tick", "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = TryLock(ctx, "tick", "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, Unlock(ctx, "tick", "b"))
	ok, err = TryLock(ctx, "tick", "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, Unlock(ctx, "tick", "a"))
	ok, err = TryLock(ctx, "tick", "b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIncrLinkIssueCount(t *testing.T) {
	mr := setupRedis(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 30, 0, time.UTC)

	for i := 1; i <= 3; i++ {
		n, err := IncrLinkIssueCount(ctx, "acct-1", now)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}

	n, err := IncrLinkIssueCount(ctx, "acct-1", now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	key := redis.Key(linkIssuePrefix, "acct-1", "202603100900")
	assert.True(t, mr.TTL(key) > 0)
}

func TestProtectedCache(t *testing.T) {
	setupRedis(t)
	ctx := context.Background()
	pc := NewProtectedCache("test", time.Minute)
	pc.jitter = 0

	type payload struct {
		Name string `json:"name"`
	}

	var got payload
	hit, _, err := pc.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, pc.Set(ctx, "k", payload{Name: "x"}))
	hit, empty, err := pc.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.False(t, empty)
	assert.Equal(t, "x", got.Name)

	require.NoError(t, pc.Set(ctx, "none", nil))
	hit, empty, err = pc.Get(ctx, "none", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.True(t, empty)

	require.NoError(t, pc.Delete(ctx, "k"))
	hit, _, err = pc.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCircuitBreaker(t *testing.T) {
	clock := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("test", 2, 10*time.Second)
	cb.now = func() time.Time { return clock }

	boom := errors.New("boom")
	fail := func(context.Context) error { return boom }
	ok := func(context.Context) error { return nil }
	ctx := context.Background()

	assert.ErrorIs(t, cb.Call(ctx, fail), boom)
	assert.ErrorIs(t, cb.Call(ctx, fail), boom)
	assert.Equal(t, StateOpen, cb.GetState())
	assert.ErrorIs(t, cb.Call(ctx, ok), ErrBreakerOpen)

	clock = clock.Add(11 * time.Second)
	require.NoError(t, cb.Call(ctx, ok))
	assert.Equal(t, StateClosed, cb.GetState())

	ignored := errors.New("bad request")
	for i := 0; i < 5; i++ {
		_ = cb.Call(ctx, func(context.Context) error { return ignored }, func(err error) bool { return errors.Is(err, ignored) })
	}
	assert.Equal(t, StateClosed, cb.GetState())
}
