package models

import (
	"fmt"
	"strings"
	"time"
)

// Event represents a calendar event owned by a single tenant.
// It is the internal representation, independent of any specific calendar provider.
type Event struct {
	ID          string // Local identifier, assigned by the store on creation
	ExternalID  string // Identifier from the external provider; empty for local events
	OwnerID     int64  // Tenant this event belongs to; 0 means no owner
	Title       string
	Description string
	Location    string
	StartTime   time.Time
	EndTime     time.Time

	ReminderTime     *time.Time // When to remind the owner; nil disables the reminder
	RemindersEnabled bool
	ReminderSent     bool

	// Version is incremented by the store on every successful update.
	// Updates carrying a non-zero Version only apply if it matches the stored one.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewEvent returns an event with reminders enabled, which is the default for new events.
func NewEvent(title string, start, end time.Time) Event {
	return Event{
		Title:            title,
		StartTime:        start,
		EndTime:          end,
		RemindersEnabled: true,
	}
}

// Validate checks the fields every stored event must carry.
func (e Event) Validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidEvent)
	}
	if e.StartTime.IsZero() || e.EndTime.IsZero() {
		return fmt.Errorf("%w: start and end time are required", ErrInvalidEvent)
	}
	if e.EndTime.Before(e.StartTime) {
		return fmt.Errorf("%w: end %s is before start %s", ErrInvalidTimeRange,
			e.EndTime.Format(time.RFC3339), e.StartTime.Format(time.RFC3339))
	}
	return nil
}

// IsExternal reports whether the event was imported from an external provider.
func (e Event) IsExternal() bool {
	return strings.TrimSpace(e.ExternalID) != ""
}

// ReminderDue reports whether a reminder should fire at now.
func (e Event) ReminderDue(now time.Time) bool {
	if !e.RemindersEnabled || e.ReminderSent || e.ReminderTime == nil {
		return false
	}
	return !e.ReminderTime.After(now)
}

// Clone returns a copy that shares no pointers with e.
func (e Event) Clone() Event {
	if e.ReminderTime != nil {
		t := *e.ReminderTime
		e.ReminderTime = &t
	}
	return e
}

// SameReminderTime reports whether two optional reminder instants are equal.
func SameReminderTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// PermissionGrant lets ObserverID read (never write) the events of OwnerID.
type PermissionGrant struct {
	ObserverID int64
	OwnerID    int64
	CreatedAt  time.Time
}
