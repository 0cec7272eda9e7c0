package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"remindcal/internal/analysis"
	"remindcal/internal/models"
	"remindcal/internal/syncer"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

const textTimeLayout = "2006-01-02 15:04"

// printer writes command output as text tables, JSON or YAML.
type printer struct {
	w      io.Writer
	format string
}

func newPrinter(c *cli.Context) *printer {
	return &printer{w: c.App.Writer, format: strings.ToLower(c.String("format"))}
}

type eventView struct {
	ID               string     `json:"id" yaml:"id"`
	ExternalID       string     `json:"externalId,omitempty" yaml:"externalId,omitempty"`
	OwnerID          int64      `json:"ownerId" yaml:"ownerId"`
	Title            string     `json:"title" yaml:"title"`
	Description      string     `json:"description,omitempty" yaml:"description,omitempty"`
	Location         string     `json:"location,omitempty" yaml:"location,omitempty"`
	StartTime        time.Time  `json:"startTime" yaml:"startTime"`
	EndTime          time.Time  `json:"endTime" yaml:"endTime"`
	ReminderTime     *time.Time `json:"reminderTime,omitempty" yaml:"reminderTime,omitempty"`
	RemindersEnabled bool       `json:"remindersEnabled" yaml:"remindersEnabled"`
	ReminderSent     bool       `json:"reminderSent" yaml:"reminderSent"`
}

type resultView struct {
	OwnerID   int64  `json:"ownerId" yaml:"ownerId"`
	Source    string `json:"source" yaml:"source"`
	Fetched   int    `json:"fetched" yaml:"fetched"`
	Created   int    `json:"created" yaml:"created"`
	Updated   int    `json:"updated" yaml:"updated"`
	Unchanged int    `json:"unchanged" yaml:"unchanged"`
	Failed    int    `json:"failed" yaml:"failed"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
}

func (p *printer) events(events []models.Event, loc *time.Location) error {
	views := make([]eventView, 0, len(events))
	for _, e := range events {
		views = append(views, eventView{
			ID:               e.ID,
			ExternalID:       e.ExternalID,
			OwnerID:          e.OwnerID,
			Title:            e.Title,
			Description:      e.Description,
			Location:         e.Location,
			StartTime:        e.StartTime.In(loc),
			EndTime:          e.EndTime.In(loc),
			ReminderTime:     inLocation(e.ReminderTime, loc),
			RemindersEnabled: e.RemindersEnabled,
			ReminderSent:     e.ReminderSent,
		})
	}
	if p.structured() {
		return p.encode(views)
	}

	if len(views) == 0 {
		_, err := fmt.Fprintln(p.w, "No events.")
		return err
	}
	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "START\tEND\tTITLE\tREMINDER\tID")
	for _, v := range views {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			v.StartTime.Format(textTimeLayout), v.EndTime.Format(textTimeLayout), v.Title, reminderColumn(v), v.ID)
	}
	return tw.Flush()
}

func (p *printer) results(results []syncer.Result) error {
	views := make([]resultView, 0, len(results))
	for _, r := range results {
		v := resultView{
			OwnerID:   r.OwnerID,
			Source:    r.Source,
			Fetched:   r.Fetched,
			Created:   r.Created,
			Updated:   r.Updated,
			Unchanged: r.Unchanged,
			Failed:    r.Failed,
		}
		if r.Err != nil {
			v.Error = r.Err.Error()
		}
		views = append(views, v)
	}
	if p.structured() {
		return p.encode(views)
	}

	if len(views) == 0 {
		_, err := fmt.Fprintln(p.w, "No sources configured.")
		return err
	}
	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "OWNER\tSOURCE\tFETCHED\tCREATED\tUPDATED\tUNCHANGED\tFAILED\tERROR")
	for _, v := range views {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			v.OwnerID, v.Source, v.Fetched, v.Created, v.Updated, v.Unchanged, v.Failed, v.Error)
	}
	return tw.Flush()
}

func (p *printer) report(r analysis.Report, loc *time.Location) error {
	if p.structured() {
		return p.encode(r)
	}

	busiest := "-"
	if len(r.BusiestDays) > 0 {
		busiest = strings.Join(r.BusiestDays, ", ")
	}
	_, err := fmt.Fprintf(p.w, "Week %s to %s for owner %d\n  Events:            %d\n  With reminders:    %d\n  Without reminders: %d\n  Busiest days:      %s\n",
		r.WeekStart.In(loc).Format(time.DateOnly), r.WeekEnd.In(loc).AddDate(0, 0, -1).Format(time.DateOnly), r.OwnerID,
		r.Total, r.WithReminders, r.WithoutReminders, busiest)
	return err
}

func (p *printer) structured() bool {
	return p.format == "json" || p.format == "yaml"
}

func (p *printer) encode(v any) error {
	if p.format == "yaml" {
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	}
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func reminderColumn(v eventView) string {
	switch {
	case !v.RemindersEnabled:
		return "off"
	case v.ReminderTime == nil:
		return "-"
	case v.ReminderSent:
		return v.ReminderTime.Format(textTimeLayout) + " (sent)"
	default:
		return v.ReminderTime.Format(textTimeLayout)
	}
}

func inLocation(t *time.Time, loc *time.Location) *time.Time {
	if t == nil {
		return nil
	}
	local := t.In(loc)
	return &local
}
