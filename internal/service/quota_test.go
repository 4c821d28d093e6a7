package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DailyPrompt/internal/model"
	pkgerrors "DailyPrompt/pkg/errors"
)

func TestDecrementConcurrentNeverOverdraws(t *testing.T) {
	db := setupTest(t)
	ctx := context.Background()
	svc := NewQuotaService(db)

	balance, err := svc.Credit(ctx, "acct-1", 4, model.QuotaReasonManual)
	require.NoError(t, err)
	assert.Equal(t, 4, balance)

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		ok           int
		insufficient int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.DecrementIfAvailable(ctx, "acct-1", model.QuotaReasonGeneration)
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			if res.OK {
				ok++
			}
			if res.Insufficient {
				insufficient++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, ok)
	assert.Equal(t, 1, insufficient)

	balance, err = svc.Balance(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, 0, balance)

	txns, err := svc.Transactions(ctx, "acct-1", 0)
	require.NoError(t, err)
	assert.Len(t, txns, 5)
}

func TestDecrementWithoutBalance(t *testing.T) {
	db := setupTest(t)
	svc := NewQuotaService(db)

	res, err := svc.DecrementIfAvailable(context.Background(), "nobody", model.QuotaReasonGeneration)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.True(t, res.Insufficient)
	assert.Equal(t, 0, res.Balance)
}

func TestCreditRejectsNonPositive(t *testing.T) {
	db := setupTest(t)
	svc := NewQuotaService(db)

	_, err := svc.Credit(context.Background(), "acct-1", 0, model.QuotaReasonManual)
	assert.ErrorIs(t, err, pkgerrors.QuotaAmountInvalid)

	_, err = svc.Credit(context.Background(), "acct-1", -3, model.QuotaReasonManual)
	assert.ErrorIs(t, err, pkgerrors.QuotaAmountInvalid)
}
