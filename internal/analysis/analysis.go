// Package analysis summarizes how busy an owner's week is.
package analysis

import (
	"context"
	"fmt"
	"time"

	"remindcal/internal/models"
)

// EventLister reads an owner's events overlapping [start, end).
type EventLister interface {
	ListBetween(ctx context.Context, start, end time.Time, ownerID int64) ([]models.Event, error)
}

// Report is the weekly summary. BusiestDays lists the weekdays with the most event
// starts, Monday first; it is empty for a week without events.
type Report struct {
	OwnerID          int64     `json:"ownerId" yaml:"ownerId"`
	WeekStart        time.Time `json:"weekStart" yaml:"weekStart"`
	WeekEnd          time.Time `json:"weekEnd" yaml:"weekEnd"`
	Total            int       `json:"total" yaml:"total"`
	WithReminders    int       `json:"withReminders" yaml:"withReminders"`
	WithoutReminders int       `json:"withoutReminders" yaml:"withoutReminders"`
	BusiestDays      []string  `json:"busiestDays" yaml:"busiestDays"`
}

type Analyzer struct {
	events EventLister
	loc    *time.Location
	now    func() time.Time
}

func NewAnalyzer(events EventLister, loc *time.Location) *Analyzer {
	if loc == nil {
		loc = time.UTC
	}
	return &Analyzer{events: events, loc: loc, now: time.Now}
}

// CurrentWeek analyzes the Monday to Sunday week containing now.
func (a *Analyzer) CurrentWeek(ctx context.Context, ownerID int64) (Report, error) {
	start, end := Week(a.now(), a.loc)
	return a.Analyze(ctx, ownerID, start, end)
}

// Analyze summarizes ownerID's events overlapping [start, end).
func (a *Analyzer) Analyze(ctx context.Context, ownerID int64, start, end time.Time) (Report, error) {
	events, err := a.events.ListBetween(ctx, start, end, ownerID)
	if err != nil {
		return Report{}, fmt.Errorf("analyze week of owner %d: %w", ownerID, err)
	}

	report := Report{OwnerID: ownerID, WeekStart: start, WeekEnd: end, Total: len(events), BusiestDays: []string{}}
	var perDay [7]int
	for _, e := range events {
		if e.RemindersEnabled {
			report.WithReminders++
		}
		perDay[e.StartTime.In(a.loc).Weekday()]++
	}
	report.WithoutReminders = report.Total - report.WithReminders

	busiest := 0
	for _, n := range perDay {
		busiest = max(busiest, n)
	}
	if busiest == 0 {
		return report, nil
	}
	for i := 0; i < 7; i++ {
		day := time.Weekday((i + 1) % 7) // Monday first
		if perDay[day] == busiest {
			report.BusiestDays = append(report.BusiestDays, day.String())
		}
	}
	return report, nil
}

// Week returns the Monday 00:00 to next Monday 00:00 range containing t in loc.
func Week(t time.Time, loc *time.Location) (time.Time, time.Time) {
	t = t.In(loc)
	offset := (int(t.Weekday()) + 6) % 7
	start := time.Date(t.Year(), t.Month(), t.Day()-offset, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 7)
}
