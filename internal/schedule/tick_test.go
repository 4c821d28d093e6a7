package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DailyPrompt/internal/model"
)

type staticLister []model.Recipient

func (s staticLister) ListActive(context.Context) ([]model.Recipient, error) {
	return s, nil
}

type recordingDeliverer struct {
	mu    sync.Mutex
	calls map[int64][]model.Slot
	fn    func(r *model.Recipient, slot model.Slot) (model.DeliveryResult, error)
}

func (d *recordingDeliverer) Deliver(_ context.Context, r *model.Recipient, slot model.Slot, _ time.Time) (model.DeliveryResult, error) {
	d.mu.Lock()
	if d.calls == nil {
		d.calls = make(map[int64][]model.Slot)
	}
	d.calls[r.ID] = append(d.calls[r.ID], slot)
	d.mu.Unlock()
	return d.fn(r, slot)
}

func recipient(id int64, tz, morning, evening string) model.Recipient {
	r := model.Recipient{Timezone: tz, MorningAt: morning, EveningAt: evening, Active: true}
	r.ID = id
	return r
}

func TestTickDeliversOnlyDueSlots(t *testing.T) {
	lister := staticLister{
		recipient(1, "UTC", "09:00", "21:00"),
		recipient(2, "UTC", "09:03", "09:04"),
		recipient(3, "UTC", "12:00", "21:00"),
		recipient(4, "Bad/Zone", "09:00", "21:00"),
	}
	d := &recordingDeliverer{fn: func(r *model.Recipient, slot model.Slot) (model.DeliveryResult, error) {
		switch r.ID {
		case 2:
			if slot == model.SlotEvening {
				return model.Skipped("2026-03-10", model.SkipNoContent), nil
			}
			return model.DeliveryResult{}, errors.New("gateway down")
		}
		return model.Sent("2026-03-10", "1"), nil
	}}

	runner := NewTickRunner(lister, d, NewEvaluator(5*time.Minute), 2)
	report, err := runner.Tick(context.Background(), nil, time.Date(2026, 3, 10, 9, 2, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, 8, report.Evaluated)
	assert.Equal(t, 3, report.Due)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Skipped[model.SkipNoContent])
	assert.Equal(t, 2, report.Invalid)

	assert.Equal(t, []model.Slot{model.SlotMorning}, d.calls[1])
	assert.ElementsMatch(t, []model.Slot{model.SlotMorning, model.SlotEvening}, d.calls[2])
	assert.NotContains(t, d.calls, int64(3))
	assert.NotContains(t, d.calls, int64(4))
}

func TestTickRestrictsSlots(t *testing.T) {
	lister := staticLister{recipient(1, "UTC", "09:00", "09:00")}
	d := &recordingDeliverer{fn: func(*model.Recipient, model.Slot) (model.DeliveryResult, error) {
		return model.Sent("2026-03-10", "1"), nil
	}}

	runner := NewTickRunner(lister, d, NewEvaluator(5*time.Minute), 4)
	report, err := runner.Tick(context.Background(), []model.Slot{model.SlotEvening}, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, 1, report.Evaluated)
	assert.Equal(t, []model.Slot{model.SlotEvening}, d.calls[1])
}

func TestLoopRunOnceSkipsWhileRunning(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	d := &recordingDeliverer{fn: func(*model.Recipient, model.Slot) (model.DeliveryResult, error) {
		close(started)
		<-release
		return model.Sent("2026-03-10", "1"), nil
	}}
	runner := NewTickRunner(staticLister{recipient(1, "UTC", "09:00", "21:00")}, d, NewEvaluator(5*time.Minute), 1)

	loop := NewLoop(runner, nil, time.Minute)
	loop.now = func() time.Time { return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC) }

	done := make(chan bool)
	go func() { done <- loop.RunOnce(context.Background()) }()

	<-started
	assert.False(t, loop.RunOnce(context.Background()))
	close(release)
	assert.True(t, <-done)
}
