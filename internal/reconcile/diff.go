package reconcile

import (
	"remindcal/internal/models"
)

// Changed reports whether any reconcilable field differs between candidate and stored.
// The compared set is fixed: title, description, start, end, location, remindersEnabled
// and reminderTime. Identity, ownership and sent state are not part of it.
func Changed(candidate, stored models.Event) bool {
	return len(ChangedFields(candidate, stored)) > 0
}

// ChangedFields lists the names of the reconcilable fields that differ, in a stable order.
func ChangedFields(candidate, stored models.Event) []string {
	var fields []string
	if candidate.Title != stored.Title {
		fields = append(fields, "title")
	}
	if candidate.Description != stored.Description {
		fields = append(fields, "description")
	}
	if !candidate.StartTime.Equal(stored.StartTime) {
		fields = append(fields, "startTime")
	}
	if !candidate.EndTime.Equal(stored.EndTime) {
		fields = append(fields, "endTime")
	}
	if candidate.Location != stored.Location {
		fields = append(fields, "location")
	}
	if candidate.RemindersEnabled != stored.RemindersEnabled {
		fields = append(fields, "remindersEnabled")
	}
	if !models.SameReminderTime(candidate.ReminderTime, stored.ReminderTime) {
		fields = append(fields, "reminderTime")
	}
	return fields
}
