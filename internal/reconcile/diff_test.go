package reconcile

import (
	"testing"
	"time"

	"remindcal/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestChangedFields(t *testing.T) {
	at := start.Add(-5 * time.Minute)
	other := at.Add(time.Minute)

	stored := models.NewEvent("Sync", start, start.Add(time.Hour))
	stored.ID = "local-1"
	stored.ExternalID = "g1"
	stored.OwnerID = 7
	stored.Description = "notes"
	stored.Location = "room"
	stored.ReminderTime = &at
	stored.ReminderSent = true
	stored.Version = 4

	tests := []struct {
		name   string
		mutate func(*models.Event)
		want   []string
	}{
		{name: "identical", mutate: func(*models.Event) {}},
		{
			name: "identity and sent state are ignored",
			mutate: func(e *models.Event) {
				e.ID = ""
				e.OwnerID = 0
				e.ReminderSent = false
				e.Version = 0
			},
		},
		{
			name:   "same instant in another zone",
			mutate: func(e *models.Event) { e.StartTime = e.StartTime.In(time.FixedZone("X", 3600)) },
		},
		{name: "title", mutate: func(e *models.Event) { e.Title = "Sync v2" }, want: []string{"title"}},
		{name: "description", mutate: func(e *models.Event) { e.Description = "" }, want: []string{"description"}},
		{name: "location", mutate: func(e *models.Event) { e.Location = "hall" }, want: []string{"location"}},
		{
			name:   "times",
			mutate: func(e *models.Event) { e.StartTime = e.StartTime.Add(time.Minute); e.EndTime = e.EndTime.Add(time.Minute) },
			want:   []string{"startTime", "endTime"},
		},
		{name: "reminders toggled", mutate: func(e *models.Event) { e.RemindersEnabled = false }, want: []string{"remindersEnabled"}},
		{name: "reminder moved", mutate: func(e *models.Event) { e.ReminderTime = &other }, want: []string{"reminderTime"}},
		{name: "reminder cleared", mutate: func(e *models.Event) { e.ReminderTime = nil }, want: []string{"reminderTime"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidate := stored.Clone()
			tt.mutate(&candidate)

			assert.Equal(t, tt.want, ChangedFields(candidate, stored))
			assert.Equal(t, len(tt.want) > 0, Changed(candidate, stored))
		})
	}
}
