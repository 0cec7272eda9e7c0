package analysis

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"remindcal/internal/models"
	"remindcal/internal/reconcile"
	"remindcal/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeek(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
	}{
		{name: "monday", now: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)},
		{name: "wednesday", now: time.Date(2026, 3, 4, 13, 0, 0, 0, time.UTC)},
		{name: "sunday night", now: time.Date(2026, 3, 8, 23, 59, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := Week(tt.now, time.UTC)
			assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), start)
			assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), end)
		})
	}
}

func TestCurrentWeek(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := reconcile.NewEngine(logger, store.NewMemoryEventStore())

	add := func(owner int64, title string, start time.Time, reminders bool) {
		e := models.NewEvent(title, start, start.Add(time.Hour))
		e.RemindersEnabled = reminders
		_, _, err := engine.Reconcile(ctx, e, owner)
		require.NoError(t, err)
	}
	monday := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	add(1, "Mon A", monday, true)
	add(1, "Mon B", monday.Add(2*time.Hour), false)
	add(1, "Wed", monday.AddDate(0, 0, 2), true)
	add(1, "Fri A", monday.AddDate(0, 0, 4), true)
	add(1, "Fri B", monday.AddDate(0, 0, 4).Add(time.Hour), true)
	add(1, "Next week", monday.AddDate(0, 0, 7), true)
	add(2, "Other owner", monday, true)

	a := NewAnalyzer(engine, time.UTC)
	a.now = func() time.Time { return monday.AddDate(0, 0, 3) }

	report, err := a.CurrentWeek(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, report.Total)
	assert.Equal(t, 4, report.WithReminders)
	assert.Equal(t, 1, report.WithoutReminders)
	assert.Equal(t, []string{"Monday", "Friday"}, report.BusiestDays)

	empty, err := a.CurrentWeek(ctx, 3)
	require.NoError(t, err)
	assert.Zero(t, empty.Total)
	assert.Empty(t, empty.BusiestDays)
}
