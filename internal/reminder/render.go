package reminder

import (
	"fmt"
	"strings"
	"time"

	"remindcal/internal/models"
	"remindcal/internal/notify"
)

const displayLayout = "Mon, 02 Jan 2006 15:04 MST"

// Render builds the plain-text reminder for e with times shown in loc.
// A nil loc means UTC.
func Render(e models.Event, loc *time.Location) notify.Payload {
	if loc == nil {
		loc = time.UTC
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", e.Title)
	fmt.Fprintf(&b, "Starts: %s\n", e.StartTime.In(loc).Format(displayLayout))
	fmt.Fprintf(&b, "Ends:   %s\n", e.EndTime.In(loc).Format(displayLayout))
	if where := strings.TrimSpace(e.Location); where != "" {
		fmt.Fprintf(&b, "Where:  %s\n", where)
	}
	if desc := strings.TrimSpace(e.Description); desc != "" {
		fmt.Fprintf(&b, "\n%s\n", desc)
	}

	return notify.Payload{
		EventID:   e.ID,
		Subject:   "Reminder: " + e.Title,
		Body:      b.String(),
		StartTime: e.StartTime,
	}
}
