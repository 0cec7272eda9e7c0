package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventValidate(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		event   Event
		wantErr error
	}{
		{name: "valid", event: NewEvent("Standup", start, start.Add(30*time.Minute))},
		{name: "zero length", event: NewEvent("Ping", start, start)},
		{name: "blank title", event: NewEvent("  ", start, start.Add(time.Hour)), wantErr: ErrInvalidEvent},
		{name: "missing end", event: NewEvent("Lunch", start, time.Time{}), wantErr: ErrInvalidEvent},
		{name: "end before start", event: NewEvent("Lunch", start, start.Add(-time.Minute)), wantErr: ErrInvalidTimeRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestEventReminderDue(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	e := NewEvent("Standup", now, now.Add(time.Hour))
	assert.False(t, e.ReminderDue(now), "no reminder time")

	e.ReminderTime = &future
	assert.False(t, e.ReminderDue(now), "reminder in the future")

	e.ReminderTime = &now
	assert.True(t, e.ReminderDue(now), "reminder exactly now")

	e.ReminderTime = &past
	assert.True(t, e.ReminderDue(now))

	e.ReminderSent = true
	assert.False(t, e.ReminderDue(now), "already sent")

	e.ReminderSent = false
	e.RemindersEnabled = false
	assert.False(t, e.ReminderDue(now), "reminders disabled")
}

func TestEventCloneDetachesReminderTime(t *testing.T) {
	at := time.Date(2026, 3, 2, 8, 55, 0, 0, time.UTC)
	e := Event{ReminderTime: &at}

	c := e.Clone()
	*c.ReminderTime = c.ReminderTime.Add(time.Hour)

	assert.True(t, e.ReminderTime.Equal(at))
	assert.False(t, SameReminderTime(e.ReminderTime, c.ReminderTime))
	assert.True(t, SameReminderTime(nil, nil))
	assert.False(t, SameReminderTime(&at, nil))
}
