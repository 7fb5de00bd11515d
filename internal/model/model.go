package model

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format of an all-day boundary.
const DateLayout = "2006-01-02"

// RawEvent is a single event as returned by a calendar source query.
// Start and End are ISO-8601 strings; a date-only value marks an all-day
// boundary.
type RawEvent struct {
	Start       string `json:"start"`
	End         string `json:"end"`
	Summary     string `json:"summary,omitempty"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
}

// Event is one upcoming event held by the aggregator for a single refresh
// cycle.
type Event struct {
	// Calendar is the id of the source that produced the event.
	Calendar string `json:"calendar"`

	Summary     string `json:"summary"`
	Description string `json:"description"`
	Location    string `json:"location"`

	// AllDay events have midnight-aligned boundaries in the display zone
	// and are rendered with date-only values.
	AllDay bool      `json:"all_day"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`

	// Filled by the absolute formatting branch and reused by the markdown
	// renderer.
	StartFormatted string `json:"start_time_formatted"`
	EndFormatted   string `json:"end_time_formatted"`
}

// IsDayEvent reports whether the event spans exactly one calendar day with
// both boundaries on midnight.
func (e Event) IsDayEvent() bool {
	if !e.Start.AddDate(0, 0, 1).Equal(e.End) {
		return false
	}
	return atMidnight(e.Start) && atMidnight(e.End)
}

func atMidnight(t time.Time) bool {
	h, m, _ := t.Clock()
	return h == 0 && m == 0
}

// FormatBoundary renders t the way a source would put it on the wire.
func FormatBoundary(t time.Time, allDay bool) string {
	if allDay {
		return t.Format(DateLayout)
	}
	return t.Format(time.RFC3339)
}

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
}

// ParseBoundary parses an ISO-8601 date or date-time. Date-only values are
// placed at midnight in loc and reported as allDay. Values without an offset
// are interpreted in loc; values with an offset are converted into loc.
func ParseBoundary(v string, loc *time.Location) (t time.Time, allDay bool, err error) {
	if loc == nil {
		loc = time.Local
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false, fmt.Errorf("empty time value")
	}

	if len(v) == len(DateLayout) {
		d, err := time.ParseInLocation(DateLayout, v, loc)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("parse date %q: %w", v, err)
		}
		return d, true, nil
	}

	for _, layout := range dateTimeLayouts {
		parsed, perr := time.ParseInLocation(layout, v, loc)
		if perr == nil {
			return parsed.In(loc), false, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("parse date-time %q: unsupported format", v)
}

// ParseRawEvent converts a wire event from calendar into an Event in loc.
func ParseRawEvent(calendar string, raw RawEvent, loc *time.Location) (Event, error) {
	start, allDay, err := ParseBoundary(raw.Start, loc)
	if err != nil {
		return Event{}, fmt.Errorf("start: %w", err)
	}
	end, _, err := ParseBoundary(raw.End, loc)
	if err != nil {
		return Event{}, fmt.Errorf("end: %w", err)
	}
	return Event{
		Calendar:    calendar,
		Summary:     raw.Summary,
		Description: raw.Description,
		Location:    raw.Location,
		AllDay:      allDay,
		Start:       start,
		End:         end,
	}, nil
}
