package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"remindcal/internal/models"
	"remindcal/internal/syncer"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	primaryCalendar = "primary"
	untitledEvent   = "(No title)"
	allDayLayout    = "2006-01-02"
)

// Source imports an owner's primary Google Calendar. Every owner authenticates
// separately; their tokens live in a TokenStore.
type Source struct {
	logger  *slog.Logger
	config  *oauth2.Config
	tokens  *TokenStore
	loc     *time.Location
	options []option.ClientOption
}

var _ syncer.Source = (*Source)(nil)

// NewSource creates a Google Calendar source. All-day events are placed at midnight in loc.
// Extra client options are appended to the calendar service options.
func NewSource(logger *slog.Logger, config *oauth2.Config, tokens *TokenStore, loc *time.Location, opts ...option.ClientOption) *Source {
	if loc == nil {
		loc = time.UTC
	}
	return &Source{logger: logger, config: config, tokens: tokens, loc: loc, options: opts}
}

func (s *Source) Name() string { return "google" }

// FetchEvents lists the owner's events in r, expanded into single instances.
func (s *Source) FetchEvents(ctx context.Context, ownerID int64, r syncer.DateRange) ([]models.Event, error) {
	service, err := s.service(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Fetching Google Calendar events", "ownerID", ownerID, "from", r.Start, "to", r.End)
	var items []*calendar.Event
	err = service.Events.List(primaryCalendar).
		ShowDeleted(false).
		SingleEvents(true).
		TimeMin(r.Start.Format(time.RFC3339)).
		TimeMax(r.End.Format(time.RFC3339)).
		OrderBy("startTime").
		Pages(ctx, func(page *calendar.Events) error {
			items = append(items, page.Items...)
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve events: %w", authError(err))
	}

	events := make([]models.Event, 0, len(items))
	for _, item := range items {
		e, ok := toCandidate(item, s.loc)
		if !ok {
			s.logger.Debug("Skipping Google event without usable times", "id", item.Id)
			continue
		}
		events = append(events, e)
	}
	s.logger.Info("Fetched events from Google Calendar", "ownerID", ownerID, "count", len(events))
	return events, nil
}

// service builds a calendar client authenticated as ownerID.
func (s *Source) service(ctx context.Context, ownerID int64) (*calendar.Service, error) {
	token, err := s.tokens.Load(ownerID)
	if err != nil {
		return nil, err
	}
	opts := append([]option.ClientOption{option.WithHTTPClient(s.config.Client(ctx, token))}, s.options...)
	service, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return service, nil
}

// authError marks a rejected or unrefreshable token as models.ErrNotAuthenticated.
func authError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized {
		return fmt.Errorf("%w: %w", models.ErrNotAuthenticated, err)
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return fmt.Errorf("%w: token refresh failed: %w", models.ErrNotAuthenticated, err)
	}
	return err
}

// toCandidate converts a Google event. It reports false for cancelled events and
// events whose times cannot be read.
func toCandidate(item *calendar.Event, loc *time.Location) (models.Event, bool) {
	if item == nil || item.Status == "cancelled" {
		return models.Event{}, false
	}
	start, ok := parseEventTime(item.Start, loc)
	if !ok {
		return models.Event{}, false
	}
	end, ok := parseEventTime(item.End, loc)
	if !ok {
		end = start
	}

	title := strings.TrimSpace(item.Summary)
	if title == "" {
		title = untitledEvent
	}

	e := models.NewEvent(title, start, end)
	e.ExternalID = item.Id
	e.Description = item.Description
	e.Location = item.Location
	applyReminders(&e, item.Reminders)
	return e, true
}

func parseEventTime(t *calendar.EventDateTime, loc *time.Location) (time.Time, bool) {
	if t == nil {
		return time.Time{}, false
	}
	if t.DateTime != "" {
		parsed, err := time.Parse(time.RFC3339, t.DateTime)
		return parsed, err == nil
	}
	if t.Date != "" {
		parsed, err := time.ParseInLocation(allDayLayout, t.Date, loc)
		return parsed, err == nil
	}
	return time.Time{}, false
}

// applyReminders maps Google's reminder settings. Without defaults and overrides the
// event has reminders switched off; with overrides the one closest to the start sets
// the reminder time.
func applyReminders(e *models.Event, r *calendar.EventReminders) {
	if r == nil || r.UseDefault {
		return
	}
	if len(r.Overrides) == 0 {
		e.RemindersEnabled = false
		return
	}
	minutes := r.Overrides[0].Minutes
	for _, o := range r.Overrides[1:] {
		if o.Minutes < minutes {
			minutes = o.Minutes
		}
	}
	at := e.StartTime.Add(-time.Duration(minutes) * time.Minute)
	e.ReminderTime = &at
}
