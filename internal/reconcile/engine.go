// Package reconcile decides how candidate events are merged into an owner's store:
// create, update in place, or leave untouched.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"remindcal/internal/models"
	"remindcal/internal/store"
)

// maxAttempts bounds read-modify-write retries after a version conflict.
const maxAttempts = 3

// Outcome describes what Reconcile did with a candidate.
type Outcome int

const (
	OutcomeCreated Outcome = iota + 1
	OutcomeUpdated
	OutcomeUnchanged
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeUpdated:
		return "updated"
	case OutcomeUnchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// Engine is the only writer of event content. The reminder scheduler writes the
// sent flag directly through the store's update path.
type Engine struct {
	logger *slog.Logger
	events store.EventStore
}

// NewEngine creates an Engine over the given event store.
func NewEngine(logger *slog.Logger, events store.EventStore) *Engine {
	return &Engine{logger: logger, events: events}
}

// Reconcile merges candidate into ownerID's events.
//
// Candidates with an external id are matched on (externalID, ownerID): a match with equal
// fields is returned untouched without a store write, a match with different fields is
// updated in place, and no match creates a new event. Candidates without an external id
// are always created. Any caller-supplied owner or id is overridden.
func (e *Engine) Reconcile(ctx context.Context, candidate models.Event, ownerID int64) (models.Event, Outcome, error) {
	candidate = candidate.Clone()
	candidate.OwnerID = ownerID
	candidate.ExternalID = strings.TrimSpace(candidate.ExternalID)
	candidate.Version = 0
	candidate.CreatedAt = time.Time{}
	candidate.UpdatedAt = time.Time{}

	if err := candidate.Validate(); err != nil {
		return models.Event{}, 0, fmt.Errorf("reconcile event: %w", err)
	}

	if !candidate.IsExternal() {
		created, err := e.create(ctx, candidate)
		if err != nil {
			return models.Event{}, 0, err
		}
		return created, OutcomeCreated, nil
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ev, outcome, err := e.reconcileExternal(ctx, candidate)
		if err == nil {
			return ev, outcome, nil
		}
		if !errors.Is(err, models.ErrConflict) {
			return models.Event{}, 0, err
		}
		lastErr = err
		e.logger.Debug("Reconcile raced with a concurrent write, retrying.",
			"externalID", candidate.ExternalID, "ownerID", ownerID, "attempt", attempt)
	}
	return models.Event{}, 0, lastErr
}

func (e *Engine) reconcileExternal(ctx context.Context, candidate models.Event) (models.Event, Outcome, error) {
	existing, found, err := e.events.FindByExternalID(ctx, candidate.ExternalID, candidate.OwnerID)
	if err != nil {
		return models.Event{}, 0, fmt.Errorf("reconcile event %q: %w", candidate.ExternalID, err)
	}

	if !found {
		created, err := e.create(ctx, candidate)
		if err != nil {
			return models.Event{}, 0, err
		}
		return created, OutcomeCreated, nil
	}

	candidate.ID = existing.ID
	fields := ChangedFields(candidate, existing)
	if len(fields) == 0 {
		e.logger.Debug("No changes detected for event, skipping update.",
			"eventID", existing.ID, "externalID", existing.ExternalID, "ownerID", existing.OwnerID)
		return existing, OutcomeUnchanged, nil
	}

	candidate.ReminderSent = carrySentFlag(candidate, existing)
	candidate.Version = existing.Version

	updated, err := e.events.Update(ctx, candidate)
	if err != nil {
		return models.Event{}, 0, fmt.Errorf("reconcile event %q: %w", candidate.ExternalID, err)
	}
	e.logger.Info("Updated event from external source.",
		"eventID", updated.ID, "externalID", updated.ExternalID, "ownerID", updated.OwnerID, "fields", fields)
	return updated, OutcomeUpdated, nil
}

func (e *Engine) create(ctx context.Context, candidate models.Event) (models.Event, error) {
	candidate.ID = ""
	candidate.ReminderSent = false

	created, err := e.events.Create(ctx, candidate)
	if err != nil {
		return models.Event{}, fmt.Errorf("create event: %w", err)
	}
	e.logger.Info("Created event.",
		"eventID", created.ID, "externalID", created.ExternalID, "ownerID", created.OwnerID, "title", created.Title)
	return created, nil
}

// ApplyEdit replaces an existing event of ownerID with the edited payload.
// The stored external id is kept when the payload omits one, and the sent flag
// survives unless the reminder time changed.
func (e *Engine) ApplyEdit(ctx context.Context, edited models.Event, ownerID int64) (models.Event, error) {
	if edited.ID == "" {
		return models.Event{}, fmt.Errorf("edit event: %w: id is required", models.ErrInvalidEvent)
	}
	if err := edited.Validate(); err != nil {
		return models.Event{}, fmt.Errorf("edit event %s: %w", edited.ID, err)
	}

	existing, err := e.Get(ctx, edited.ID, ownerID)
	if err != nil {
		return models.Event{}, fmt.Errorf("edit event: %w", err)
	}

	edited = edited.Clone()
	edited.OwnerID = ownerID
	if strings.TrimSpace(edited.ExternalID) == "" {
		edited.ExternalID = existing.ExternalID
	}
	edited.ReminderSent = carrySentFlag(edited, existing)

	updated, err := e.events.Update(ctx, edited)
	if err != nil {
		return models.Event{}, fmt.Errorf("edit event %s: %w", edited.ID, err)
	}
	e.logger.Info("Edited event.", "eventID", updated.ID, "ownerID", ownerID)
	return updated, nil
}

// SetReminder sets or clears the reminder time. The sent flag is always reset.
func (e *Engine) SetReminder(ctx context.Context, eventID string, ownerID int64, at *time.Time) (models.Event, error) {
	updated, err := e.mutate(ctx, eventID, ownerID, func(ev *models.Event) {
		ev.ReminderTime = nil
		if at != nil {
			t := *at
			ev.ReminderTime = &t
		}
		ev.ReminderSent = false
	})
	if err != nil {
		return models.Event{}, fmt.Errorf("set reminder: %w", err)
	}
	e.logger.Info("Reminder time set.", "eventID", eventID, "ownerID", ownerID, "reminderTime", at)
	return updated, nil
}

// SetRemindersEnabled turns reminders for one event on or off.
func (e *Engine) SetRemindersEnabled(ctx context.Context, eventID string, ownerID int64, enabled bool) (models.Event, error) {
	updated, err := e.mutate(ctx, eventID, ownerID, func(ev *models.Event) {
		ev.RemindersEnabled = enabled
	})
	if err != nil {
		return models.Event{}, fmt.Errorf("set reminders enabled: %w", err)
	}
	e.logger.Info("Reminders toggled.", "eventID", eventID, "ownerID", ownerID, "enabled", enabled)
	return updated, nil
}

// mutate applies fn to the stored event and writes it back conditionally on the
// version it read, retrying when a concurrent writer got there first.
func (e *Engine) mutate(ctx context.Context, eventID string, ownerID int64, fn func(*models.Event)) (models.Event, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ev, err := e.Get(ctx, eventID, ownerID)
		if err != nil {
			return models.Event{}, err
		}
		fn(&ev)

		updated, err := e.events.Update(ctx, ev)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, models.ErrConflict) {
			return models.Event{}, err
		}
		lastErr = err
	}
	return models.Event{}, lastErr
}

// Delete removes an owner's event. Missing and foreign events are a silent no-op.
func (e *Engine) Delete(ctx context.Context, eventID string, ownerID int64) error {
	removed, err := e.events.DeleteByID(ctx, eventID, ownerID)
	if err != nil {
		return fmt.Errorf("delete event %s: %w", eventID, err)
	}
	if removed {
		e.logger.Info("Deleted event.", "eventID", eventID, "ownerID", ownerID)
	} else {
		e.logger.Debug("No event to delete.", "eventID", eventID, "ownerID", ownerID)
	}
	return nil
}

// Get returns one of ownerID's events or models.ErrNotFound.
func (e *Engine) Get(ctx context.Context, eventID string, ownerID int64) (models.Event, error) {
	ev, found, err := e.events.FindByID(ctx, eventID, ownerID)
	if err != nil {
		return models.Event{}, err
	}
	if !found {
		return models.Event{}, fmt.Errorf("event %s for owner %d: %w", eventID, ownerID, models.ErrNotFound)
	}
	return ev, nil
}

// ListForOwner returns all of ownerID's events ordered by start time.
func (e *Engine) ListForOwner(ctx context.Context, ownerID int64) ([]models.Event, error) {
	return e.events.FindAllForOwner(ctx, ownerID)
}

// ListBetween returns ownerID's events overlapping [start, end).
func (e *Engine) ListBetween(ctx context.Context, start, end time.Time, ownerID int64) ([]models.Event, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("list events: %w", models.ErrInvalidTimeRange)
	}
	return e.events.FindBetween(ctx, start, end, ownerID)
}

// carrySentFlag keeps the stored sent flag only while the reminder time is unchanged.
func carrySentFlag(next, stored models.Event) bool {
	if models.SameReminderTime(next.ReminderTime, stored.ReminderTime) {
		return stored.ReminderSent
	}
	return false
}
