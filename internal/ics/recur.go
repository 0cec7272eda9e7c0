package ics

import (
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"
)

// Expand returns the starts of the occurrences of a recurring event that overlap
// [windowStart, windowEnd). start and duration describe the first occurrence; exdates
// are excluded. A rule that cannot be parsed yields an error.
func Expand(rule string, start time.Time, duration time.Duration, exdates []time.Time, windowStart, windowEnd time.Time) ([]time.Time, error) {
	opt, err := rrule.StrToROption(rule)
	if err != nil {
		return nil, fmt.Errorf("invalid RRULE %q: %w", rule, err)
	}
	opt.Dtstart = start
	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, fmt.Errorf("invalid RRULE %q: %w", rule, err)
	}

	set := &rrule.Set{}
	set.RRule(r)
	for _, ex := range exdates {
		set.ExDate(ex)
	}

	// An occurrence starting before the window can still overlap it.
	candidates := set.Between(windowStart.Add(-duration), windowEnd, true)
	starts := make([]time.Time, 0, len(candidates))
	for _, s := range candidates {
		if overlaps(s, s.Add(duration), windowStart, windowEnd) {
			starts = append(starts, s)
		}
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })
	return starts, nil
}

// OccurrenceID is the external id of one instance of a recurring event.
func OccurrenceID(uid string, start time.Time) string {
	return uid + "/" + start.UTC().Format(time.RFC3339)
}

func overlaps(start, end, windowStart, windowEnd time.Time) bool {
	if !end.After(start) {
		end = start.Add(time.Nanosecond)
	}
	return end.After(windowStart) && start.Before(windowEnd)
}
