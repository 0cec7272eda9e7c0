package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"remindcal/internal/analysis"
	"remindcal/internal/models"
	"remindcal/internal/syncer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sampleEvent() models.Event {
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	at := start.Add(-10 * time.Minute)
	e := models.NewEvent("Standup", start, start.Add(15*time.Minute))
	e.ID = "ev-1"
	e.OwnerID = 42
	e.ReminderTime = &at
	return e
}

func TestPrinterEventsText(t *testing.T) {
	var buf bytes.Buffer
	p := &printer{w: &buf, format: "text"}

	require.NoError(t, p.events([]models.Event{sampleEvent()}, time.UTC))

	out := buf.String()
	assert.Contains(t, out, "START")
	assert.Contains(t, out, "2024-03-04 09:00")
	assert.Contains(t, out, "Standup")
	assert.Contains(t, out, "2024-03-04 08:50")
	assert.Contains(t, out, "ev-1")
}

func TestPrinterEventsEmpty(t *testing.T) {
	var buf bytes.Buffer
	p := &printer{w: &buf, format: "text"}

	require.NoError(t, p.events(nil, time.UTC))
	assert.Equal(t, "No events.\n", buf.String())
}

func TestPrinterEventsJSON(t *testing.T) {
	var buf bytes.Buffer
	p := &printer{w: &buf, format: "json"}

	require.NoError(t, p.events([]models.Event{sampleEvent()}, time.UTC))

	var got []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "Standup", got[0]["title"])
	assert.Equal(t, float64(42), got[0]["ownerId"])
	assert.Equal(t, "2024-03-04T08:50:00Z", got[0]["reminderTime"])
}

func TestPrinterResultsYAML(t *testing.T) {
	var buf bytes.Buffer
	p := &printer{w: &buf, format: "yaml"}

	results := []syncer.Result{{OwnerID: 7, Source: "google", Fetched: 3, Created: 1, Updated: 1, Unchanged: 1}}
	require.NoError(t, p.results(results))

	var got []resultView
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, resultView{OwnerID: 7, Source: "google", Fetched: 3, Created: 1, Updated: 1, Unchanged: 1}, got[0])
}

func TestPrinterReportText(t *testing.T) {
	var buf bytes.Buffer
	p := &printer{w: &buf, format: "text"}

	r := analysis.Report{
		OwnerID:          42,
		WeekStart:        time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		WeekEnd:          time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC),
		Total:            3,
		WithReminders:    2,
		WithoutReminders: 1,
		BusiestDays:      []string{"Monday"},
	}
	require.NoError(t, p.report(r, time.UTC))

	out := buf.String()
	assert.Contains(t, out, "Week 2024-03-04 to 2024-03-10 for owner 42")
	assert.Contains(t, out, "Busiest days:      Monday")
}

func TestParseRange(t *testing.T) {
	loc := time.FixedZone("CET", 3600)

	_, _, ok, err := parseRange("", "", loc)
	require.NoError(t, err)
	assert.False(t, ok)

	start, end, ok, err := parseRange("2024-03-04", "2024-03-05", loc)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, start.Equal(time.Date(2024, 3, 4, 0, 0, 0, 0, loc)))
	assert.True(t, end.Equal(time.Date(2024, 3, 6, 0, 0, 0, 0, loc)))

	start, end, _, err = parseRange("2024-03-04T09:00:00Z", "2024-03-04T10:00:00Z", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, end.Sub(start))

	_, _, _, err = parseRange("2024-03-04", "", loc)
	assert.Error(t, err)

	_, _, _, err = parseRange("yesterday", "2024-03-04", loc)
	assert.Error(t, err)
}
