// Package caldav imports events from a named calendar on a CalDAV server.
package caldav

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"remindcal/internal/ics"
	"remindcal/internal/models"
	"remindcal/internal/syncer"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
)

const untitledEvent = "(No title)"

// basicAuthTransport adds Basic Auth and a user agent to each request. A 401 from the
// server is returned as models.ErrNotAuthenticated.
type basicAuthTransport struct {
	Username  string
	Password  string
	Transport http.RoundTripper
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.SetBasicAuth(t.Username, t.Password)
	req.Header.Set("User-Agent", "remindcal/1.0")

	resp, err := t.Transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		return nil, fmt.Errorf("caldav server rejected credentials for %q: %w", t.Username, models.ErrNotAuthenticated)
	}
	return resp, nil
}

// Config locates one calendar.
type Config struct {
	Endpoint string
	Username string
	Password string
	Calendar string
}

// Source reads events from one CalDAV calendar. It never writes to the server.
type Source struct {
	logger   *slog.Logger
	client   *caldav.Client
	endpoint string
	calendar string
	loc      *time.Location

	mu          sync.Mutex
	calendarURL string
}

var _ syncer.Source = (*Source)(nil)

// NewSource creates a CalDAV source. The calendar is looked up lazily on first fetch.
func NewSource(logger *slog.Logger, cfg Config, loc *time.Location) (*Source, error) {
	if loc == nil {
		loc = time.UTC
	}
	httpClient := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &basicAuthTransport{
			Username:  cfg.Username,
			Password:  cfg.Password,
			Transport: http.DefaultTransport,
		},
	}

	client, err := caldav.NewClient(httpClient, cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}

	return &Source{
		logger:   logger,
		client:   client,
		endpoint: cfg.Endpoint,
		calendar: cfg.Calendar,
		loc:      loc,
	}, nil
}

func (s *Source) Name() string { return "caldav" }

func (s *Source) FetchEvents(ctx context.Context, ownerID int64, r syncer.DateRange) ([]models.Event, error) {
	calendarPath, err := s.calendarPath(ctx)
	if err != nil {
		return nil, err
	}

	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:  ical.CompCalendar,
			Props: []string{ical.PropVersion},
			Comps: []caldav.CalendarCompRequest{{
				Name:     ical.CompEvent,
				AllProps: true,
				AllComps: true,
			}},
		},
		CompFilter: caldav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldav.CompFilter{{
				Name:  ical.CompEvent,
				Start: r.Start,
				End:   r.End,
			}},
		},
	}

	objects, err := s.client.QueryCalendar(ctx, calendarPath, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query calendar %q: %w", s.calendar, err)
	}

	var events []models.Event
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		events = append(events, toCandidates(s.logger, obj.Data, r, s.loc)...)
	}
	s.logger.Info("Fetched events from CalDAV calendar", "ownerID", ownerID, "calendar", s.calendar, "count", len(events))
	return events, nil
}

func (s *Source) calendarPath(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calendarURL != "" {
		return s.calendarURL, nil
	}

	s.logger.Info("Finding CalDAV calendar", "endpoint", s.endpoint, "calendarName", s.calendar)
	p, err := s.findCalendar(ctx, s.calendar)
	if err != nil {
		return "", fmt.Errorf("could not find calendar '%s': %w", s.calendar, err)
	}
	s.calendarURL = p
	s.logger.Info("Successfully found CalDAV calendar", "path", p)
	return p, nil
}

// findCalendar discovers the user's calendars and returns the path of the one with the matching name.
func (s *Source) findCalendar(ctx context.Context, name string) (string, error) {
	principalPath, err := s.client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to find principal path: %w", err)
	}

	homeSetPath, err := s.client.FindCalendarHomeSet(ctx, principalPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendar home set: %w", err)
	}

	calendars, err := s.client.FindCalendars(ctx, homeSetPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendars: %w", err)
	}

	for _, cal := range calendars {
		if cal.Name == name {
			return cal.Path, nil
		}
	}
	return "", fmt.Errorf("no calendar found with name '%s'", name)
}

// toCandidates converts the VEVENTs of one calendar object. A recurring master is
// expanded within r; each instance gets an occurrence id.
func toCandidates(logger *slog.Logger, cal *ical.Calendar, r syncer.DateRange, loc *time.Location) []models.Event {
	var out []models.Event
	overridden := make(map[string]bool)
	for _, ev := range cal.Events() {
		if rid := ev.Props.Get(ical.PropRecurrenceID); rid != nil {
			if uid, err := ev.Props.Text(ical.PropUID); err == nil {
				if t, err := rid.DateTime(loc); err == nil {
					overridden[ics.OccurrenceID(uid, t)] = true
				}
			}
		}
	}

	for _, ev := range cal.Events() {
		base, err := toEvent(ev, loc)
		if err != nil {
			logger.Warn("Skipping unreadable CalDAV event.", "error", err)
			continue
		}
		if status, _ := ev.Props.Text(ical.PropStatus); strings.EqualFold(status, "CANCELLED") {
			continue
		}

		if rid := ev.Props.Get(ical.PropRecurrenceID); rid != nil {
			t, err := rid.DateTime(loc)
			if err != nil {
				continue
			}
			base.ExternalID = ics.OccurrenceID(base.ExternalID, t)
			out = append(out, base)
			continue
		}

		rule := ev.Props.Get(ical.PropRecurrenceRule)
		if rule == nil {
			out = append(out, base)
			continue
		}

		var exdates []time.Time
		for _, p := range ev.Props.Values(ical.PropExceptionDates) {
			if t, err := p.DateTime(loc); err == nil {
				exdates = append(exdates, t)
			}
		}
		duration := base.EndTime.Sub(base.StartTime)
		starts, err := ics.Expand(rule.Value, base.StartTime, duration, exdates, r.Start, r.End)
		if err != nil {
			logger.Warn("Skipping recurring CalDAV event with bad rule.", "uid", base.ExternalID, "error", err)
			continue
		}
		for _, start := range starts {
			id := ics.OccurrenceID(base.ExternalID, start)
			if overridden[id] {
				continue
			}
			occ := base.Clone()
			occ.ExternalID = id
			shift := start.Sub(base.StartTime)
			occ.StartTime = start
			occ.EndTime = start.Add(duration)
			if occ.ReminderTime != nil {
				at := occ.ReminderTime.Add(shift)
				occ.ReminderTime = &at
			}
			out = append(out, occ)
		}
	}
	return out
}

// toEvent converts an ical.Event to a candidate keyed by its UID.
func toEvent(ev ical.Event, loc *time.Location) (models.Event, error) {
	uid, err := ev.Props.Text(ical.PropUID)
	if err != nil || strings.TrimSpace(uid) == "" {
		return models.Event{}, fmt.Errorf("event without UID")
	}
	start, err := ev.DateTimeStart(loc)
	if err != nil {
		return models.Event{}, fmt.Errorf("event %s: %w", uid, err)
	}
	end, err := ev.DateTimeEnd(loc)
	if err != nil || end.IsZero() {
		end = start
	}

	title, _ := ev.Props.Text(ical.PropSummary)
	if strings.TrimSpace(title) == "" {
		title = untitledEvent
	}

	e := models.NewEvent(strings.TrimSpace(title), start, end)
	e.ExternalID = strings.TrimSpace(uid)
	e.Description, _ = ev.Props.Text(ical.PropDescription)
	e.Location, _ = ev.Props.Text(ical.PropLocation)
	e.ReminderTime = reminderTime(ev.Component, start, loc)
	return e, nil
}

// reminderTime picks the VALARM that fires closest to the start.
func reminderTime(comp *ical.Component, start time.Time, loc *time.Location) *time.Time {
	var best *time.Time
	for _, child := range comp.Children {
		if child.Name != ical.CompAlarm {
			continue
		}
		trigger := child.Props.Get(ical.PropTrigger)
		if trigger == nil {
			continue
		}
		var at time.Time
		if d, err := trigger.Duration(); err == nil {
			at = start.Add(d)
		} else if t, err := trigger.DateTime(loc); err == nil {
			at = t
		} else {
			continue
		}
		if at.After(start) {
			continue
		}
		if best == nil || at.After(*best) {
			t := at
			best = &t
		}
	}
	return best
}
