package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DailyPrompt/internal/model"
)

func at(t *testing.T, tz, local string) time.Time {
	t.Helper()
	loc, err := time.LoadLocation(tz)
	require.NoError(t, err)
	ts, err := time.ParseInLocation("2006-01-02 15:04", local, loc)
	require.NoError(t, err)
	return ts.UTC()
}

func TestIsDueWindow(t *testing.T) {
	e := NewEvaluator(5 * time.Minute)

	cases := []struct {
		local string
		due   bool
	}{
		{"2026-03-10 08:54", false},
		{"2026-03-10 08:55", true},
		{"2026-03-10 09:00", true},
		{"2026-03-10 09:05", true},
		{"2026-03-10 09:06", false},
		{"2026-03-10 21:00", false},
	}
	for _, tc := range cases {
		t.Run(tc.local, func(t *testing.T) {
			now := at(t, "Asia/Shanghai", tc.local)
			assert.Equal(t, tc.due, e.IsDue("09:00", "Asia/Shanghai", model.SlotMorning, now))
		})
	}
}

func TestOccurrenceAcrossMidnight(t *testing.T) {
	e := NewEvaluator(5 * time.Minute)

	before, err := e.Occurrence("00:00", "America/New_York", at(t, "America/New_York", "2026-03-10 23:58"))
	require.NoError(t, err)
	assert.True(t, before.Due)
	assert.Equal(t, -2, before.DiffMinutes)
	assert.Equal(t, "2026-03-11", before.Date)

	after, err := e.Occurrence("00:00", "America/New_York", at(t, "America/New_York", "2026-03-11 00:02"))
	require.NoError(t, err)
	assert.True(t, after.Due)
	assert.Equal(t, "2026-03-11", after.Date)

	late, err := e.Occurrence("23:59", "America/New_York", at(t, "America/New_York", "2026-03-11 00:03"))
	require.NoError(t, err)
	assert.True(t, late.Due)
	assert.Equal(t, "2026-03-10", late.Date)
}

func TestOccurrenceUsesRecipientTimezone(t *testing.T) {
	e := NewEvaluator(5 * time.Minute)
	now := time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC)

	assert.True(t, e.IsDue("09:00", "Asia/Shanghai", model.SlotMorning, now))
	assert.False(t, e.IsDue("09:00", "Europe/London", model.SlotMorning, now))
}

func TestOccurrenceInvalidInput(t *testing.T) {
	e := NewEvaluator(5 * time.Minute)
	now := time.Now().UTC()

	_, err := e.Occurrence("9am", "UTC", now)
	assert.Error(t, err)
	_, err = e.Occurrence("09:00", "Mars/Olympus", now)
	assert.Error(t, err)
	_, err = e.Occurrence("09:00", "", now)
	assert.Error(t, err)

	assert.False(t, e.IsDue("25:00", "UTC", model.SlotMorning, now))
}
