package ics

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"remindcal/internal/syncer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rawFeed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VEVENT
UID:single-1
DTSTAMP:20260301T000000Z
DTSTART:20260303T090000Z
DTEND:20260303T100000Z
SUMMARY:Dentist
LOCATION:Main St
END:VEVENT
BEGIN:VEVENT
UID:weekly-1
DTSTAMP:20260301T000000Z
DTSTART:20260302T080000Z
DTEND:20260302T083000Z
RRULE:FREQ=DAILY;COUNT=10
EXDATE:20260304T080000Z
SUMMARY:Standup
END:VEVENT
BEGIN:VEVENT
UID:weekly-1
DTSTAMP:20260301T000000Z
RECURRENCE-ID:20260305T080000Z
DTSTART:20260305T110000Z
DTEND:20260305T113000Z
SUMMARY:Standup (late)
END:VEVENT
BEGIN:VEVENT
UID:allday-1
DTSTAMP:20260301T000000Z
DTSTART;VALUE=DATE:20260306
SUMMARY:Holiday
END:VEVENT
BEGIN:VEVENT
UID:cancelled-1
DTSTAMP:20260301T000000Z
DTSTART:20260303T120000Z
DTEND:20260303T130000Z
STATUS:CANCELLED
SUMMARY:Dropped
END:VEVENT
BEGIN:VEVENT
UID:outside-1
DTSTAMP:20260301T000000Z
DTSTART:20260401T090000Z
DTEND:20260401T100000Z
SUMMARY:Later
END:VEVENT
END:VCALENDAR
`

var feed = strings.ReplaceAll(rawFeed, "\n", "\r\n")

var window = syncer.DateRange{
	Start: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC),
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParse(t *testing.T) {
	events, err := Parse(discard(), []byte(feed), window, time.UTC)
	require.NoError(t, err)

	byID := make(map[string]string)
	for _, e := range events {
		byID[e.ExternalID] = e.Title
		assert.NoError(t, e.Validate())
	}

	assert.Equal(t, map[string]string{
		"single-1":                      "Dentist",
		"weekly-1/2026-03-02T08:00:00Z": "Standup",
		"weekly-1/2026-03-03T08:00:00Z": "Standup",
		"weekly-1/2026-03-05T08:00:00Z": "Standup (late)",
		"weekly-1/2026-03-06T08:00:00Z": "Standup",
		"allday-1":                      "Holiday",
	}, byID)
}

func TestParse_AllDayUsesLocation(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	events, err := Parse(discard(), []byte(feed), window, loc)
	require.NoError(t, err)

	for _, e := range events {
		if e.ExternalID == "allday-1" {
			assert.True(t, e.StartTime.Equal(time.Date(2026, 3, 6, 0, 0, 0, 0, loc)))
			assert.Equal(t, 24*time.Hour, e.EndTime.Sub(e.StartTime))
			return
		}
	}
	t.Fatal("all-day event missing")
}

func TestParse_RejectsGarbage(t *testing.T) {
	_, err := Parse(discard(), nil, window, time.UTC)
	assert.Error(t, err)
}

func TestExpand_IncludesOccurrenceOverlappingWindowStart(t *testing.T) {
	start := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	starts, err := Expand("FREQ=DAILY;COUNT=3", start, 2*time.Hour, nil, window.Start, window.End)
	require.NoError(t, err)
	require.Len(t, starts, 3)
	assert.True(t, starts[0].Equal(start), "the first occurrence runs past midnight into the window")

	_, err = Expand("FREQ=NEVER", start, time.Hour, nil, window.Start, window.End)
	assert.Error(t, err)
}

func TestSource_UsesConditionalRequests(t *testing.T) {
	var hits, notModified atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			notModified.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = io.WriteString(w, feed)
	}))
	defer srv.Close()

	src := NewSource(discard(), srv.URL, time.Second, time.UTC)
	first, err := src.FetchEvents(context.Background(), 1, window)
	require.NoError(t, err)
	second, err := src.FetchEvents(context.Background(), 1, window)
	require.NoError(t, err)

	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, int32(1), notModified.Load())
	assert.Equal(t, len(first), len(second))
	assert.NotEmpty(t, first)
}

func TestSource_FailsOnErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	_, err := NewSource(discard(), srv.URL, time.Second, time.UTC).FetchEvents(context.Background(), 1, window)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "410")
}
