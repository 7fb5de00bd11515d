package entity

import (
	"encoding/json"
	"time"

	"calevents/internal/model"
)

// CalendarEvent is an event as exposed by the calendar view. All-day events
// carry date-only boundaries on the wire.
type CalendarEvent struct {
	Summary     string
	Description string
	Location    string
	AllDay      bool
	Start       time.Time
	End         time.Time
}

type calendarEventJSON struct {
	Summary     string `json:"summary"`
	Description string `json:"description"`
	Location    string `json:"location"`
	AllDay      bool   `json:"all_day"`
	Start       string `json:"start"`
	End         string `json:"end"`
}

func (e CalendarEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(calendarEventJSON{
		Summary:     e.Summary,
		Description: e.Description,
		Location:    e.Location,
		AllDay:      e.AllDay,
		Start:       model.FormatBoundary(e.Start, e.AllDay),
		End:         model.FormatBoundary(e.End, e.AllDay),
	})
}

// Calendar is the calendar view of one entry.
type Calendar struct {
	entryID string
	title   string
	src     EventSource
}

func NewCalendar(entryID, title string, src EventSource) *Calendar {
	return &Calendar{entryID: entryID, title: title, src: src}
}

func (c *Calendar) UniqueID() string { return c.entryID + "calendar" }
func (c *Calendar) Name() string     { return c.title }

// Event returns the soonest aggregated event, nil when there is none.
func (c *Calendar) Event() *CalendarEvent {
	ev, ok := c.src.Event(0)
	if !ok {
		return nil
	}
	out := toCalendarEvent(ev, ev.Start.Location())
	return &out
}

// Events returns the aggregated events intersecting [start, end). Timed
// events are converted into the zone of start. The result is bounded by the
// aggregated list, so events beyond max_events or days_ahead never appear.
func (c *Calendar) Events(start, end time.Time) []CalendarEvent {
	loc := start.Location()
	out := []CalendarEvent{}
	for _, ev := range c.src.Events() {
		if !intersects(ev, start, end) {
			continue
		}
		out = append(out, toCalendarEvent(ev, loc))
	}
	return out
}

func intersects(ev model.Event, start, end time.Time) bool {
	if !ev.Start.Before(end) {
		return false
	}
	if ev.End.Equal(ev.Start) {
		return !ev.Start.Before(start)
	}
	return ev.End.After(start)
}

func toCalendarEvent(ev model.Event, loc *time.Location) CalendarEvent {
	out := CalendarEvent{
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		AllDay:      ev.AllDay,
		Start:       ev.Start,
		End:         ev.End,
	}
	if !ev.AllDay {
		out.Start = ev.Start.In(loc)
		out.End = ev.End.In(loc)
	}
	return out
}
