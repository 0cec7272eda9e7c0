package ics

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"remindcal/internal/models"
	"remindcal/internal/syncer"

	ical "github.com/arran4/golang-ical"
)

const untitledEvent = "(No title)"

// vevent is the subset of a VEVENT needed to build candidates.
type vevent struct {
	uid         string
	summary     string
	description string
	location    string
	start       time.Time
	end         time.Time
	rrule       string
	exdates     []time.Time
	recurrence  *time.Time
	cancelled   bool
}

// Parse converts an ICS payload into candidates overlapping r. Recurring events are
// expanded into one candidate per occurrence; instances overridden by a RECURRENCE-ID
// component are taken from the override. Floating and all-day times are read in loc.
func Parse(logger *slog.Logger, body []byte, r syncer.DateRange, loc *time.Location) ([]models.Event, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	if loc == nil {
		loc = time.UTC
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse calendar: %w", err)
	}

	var parsed []vevent
	overridden := make(map[string]bool)
	for _, comp := range cal.Events() {
		ev, err := parseVEvent(comp, loc)
		if err != nil {
			logger.Warn("Skipping unreadable VEVENT.", "error", err)
			continue
		}
		if ev.recurrence != nil {
			overridden[OccurrenceID(ev.uid, *ev.recurrence)] = true
		}
		parsed = append(parsed, ev)
	}

	var out []models.Event
	for _, ev := range parsed {
		if ev.cancelled {
			continue
		}
		switch {
		case ev.recurrence != nil:
			if overlaps(ev.start, ev.end, r.Start, r.End) {
				out = append(out, ev.candidate(OccurrenceID(ev.uid, *ev.recurrence), ev.start))
			}
		case ev.rrule != "":
			duration := ev.end.Sub(ev.start)
			starts, err := Expand(ev.rrule, ev.start, duration, ev.exdates, r.Start, r.End)
			if err != nil {
				logger.Warn("Skipping recurring event with bad rule.", "uid", ev.uid, "error", err)
				continue
			}
			for _, s := range starts {
				id := OccurrenceID(ev.uid, s)
				if overridden[id] {
					continue
				}
				out = append(out, ev.candidate(id, s))
			}
		default:
			if overlaps(ev.start, ev.end, r.Start, r.End) {
				out = append(out, ev.candidate(ev.uid, ev.start))
			}
		}
	}
	return out, nil
}

func (v vevent) candidate(externalID string, start time.Time) models.Event {
	title := strings.TrimSpace(v.summary)
	if title == "" {
		title = untitledEvent
	}
	e := models.NewEvent(title, start, start.Add(v.end.Sub(v.start)))
	e.ExternalID = externalID
	e.Description = v.description
	e.Location = v.location
	return e
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) (vevent, error) {
	var out vevent

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || strings.TrimSpace(uidProp.Value) == "" {
		return out, errors.New("missing UID")
	}
	out.uid = strings.TrimSpace(uidProp.Value)

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.location = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil {
		out.cancelled = strings.EqualFold(strings.TrimSpace(p.Value), "CANCELLED")
	}

	start, err := propTime(ve.GetProperty(ical.ComponentPropertyDtStart), loc)
	if err != nil {
		return out, fmt.Errorf("event %s: DTSTART: %w", out.uid, err)
	}
	out.start = start

	out.end = start
	if p := ve.GetProperty(ical.ComponentPropertyDtEnd); p != nil {
		end, err := propTime(p, loc)
		if err != nil {
			return out, fmt.Errorf("event %s: DTEND: %w", out.uid, err)
		}
		out.end = end
	} else if isDate(ve.GetProperty(ical.ComponentPropertyDtStart)) {
		out.end = start.AddDate(0, 0, 1)
	}
	if out.end.Before(out.start) {
		return out, fmt.Errorf("event %s: %w", out.uid, models.ErrInvalidTimeRange)
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.rrule = strings.TrimSpace(p.Value)
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseValue(strings.TrimSpace(part), tzid(p), loc); err == nil {
				out.exdates = append(out.exdates, t)
			}
		}
	}
	if p := ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")); p != nil {
		t, err := propTime(p, loc)
		if err != nil {
			return out, fmt.Errorf("event %s: RECURRENCE-ID: %w", out.uid, err)
		}
		out.recurrence = &t
	}
	return out, nil
}

func propTime(p *ical.IANAProperty, loc *time.Location) (time.Time, error) {
	if p == nil {
		return time.Time{}, errors.New("missing")
	}
	return parseValue(strings.TrimSpace(p.Value), tzid(p), loc)
}

func tzid(p *ical.IANAProperty) string {
	if vs, ok := p.ICalParameters["TZID"]; ok && len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func isDate(p *ical.IANAProperty) bool {
	return p != nil && !strings.Contains(p.Value, "T")
}

// parseValue reads DATE, UTC DATE-TIME and local DATE-TIME forms. Local times use
// the TZID when it names a known zone and loc otherwise.
func parseValue(v, tz string, loc *time.Location) (time.Time, error) {
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if tz != "" {
		if zone, err := time.LoadLocation(tz); err == nil {
			loc = zone
		}
	}
	switch {
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}
