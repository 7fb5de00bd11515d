// Package events aggregates upcoming events from calendar sources and
// renders them as text for the sensors of one entry.
package events

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"calevents/internal/config"
	"calevents/internal/locale"
	appLog "calevents/internal/log"
	"calevents/internal/model"
	"calevents/internal/source"
)

// Querier fetches raw events for several sources at once.
type Querier interface {
	Query(ctx context.Context, req source.Request) (source.Response, error)
}

// Handler owns the aggregated event list of one entry. The list is replaced
// wholesale by Refresh and read by the sensors and the calendar view.
type Handler struct {
	querier  Querier
	now      func() time.Time
	location *time.Location
	log      appLog.Logger

	mu        sync.RWMutex
	events    []model.Event
	settings  config.Settings
	formatter *locale.Formatter
}

// Option configures a Handler.
type Option func(*Handler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// WithLocation sets the display zone of events. Default time.Local.
func WithLocation(loc *time.Location) Option {
	return func(h *Handler) { h.location = loc }
}

// WithLogger scopes log lines, typically to an entry.
func WithLogger(l appLog.Logger) Option {
	return func(h *Handler) { h.log = l }
}

func NewHandler(q Querier, opts ...Option) *Handler {
	h := &Handler{
		querier:   q,
		now:       time.Now,
		location:  time.Local,
		settings:  config.DefaultSettings(),
		formatter: locale.New(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Refresh fetches events of calendars within the lookahead window, collapses
// recurring instances when enabled, sorts by start and truncates to
// MaxEvents. hostLanguage is used when the settings carry no language.
//
// A failed query is logged and returned; the list is cleared unless
// KeepEventsOnFailure is set. A query cut short by ctx leaves the list
// untouched.
func (h *Handler) Refresh(ctx context.Context, calendars []string, settings config.Settings, hostLanguage string) error {
	settings = settings.Clone()
	settings.Normalize()
	formatter := locale.New(settings.FormatLanguage, hostLanguage)

	if len(calendars) == 0 {
		h.replace(nil, settings, formatter)
		return nil
	}

	now := h.now().In(h.location)
	resp, err := h.querier.Query(ctx, source.Request{
		EntityIDs: calendars,
		Start:     now,
		End:       now.AddDate(0, 0, settings.DaysAhead),
	})
	if err != nil && ctx.Err() != nil {
		// Abandoned by the caller; the previous list stays as it was.
		h.log.Debug("calendar events query abandoned", "reason", ctx.Err().Error())
		return fmt.Errorf("calendar events query abandoned: %w", ctx.Err())
	}
	if err != nil {
		h.log.Error("calendar events query failed", err, "calendars", len(calendars))
		if settings.KeepEventsOnFailure {
			h.mu.Lock()
			h.settings, h.formatter = settings, formatter
			h.mu.Unlock()
		} else {
			h.replace(nil, settings, formatter)
		}
		return err
	}

	var fetched []model.Event
	// Walk the requested order so that ties keep a deterministic fetch order.
	for _, id := range calendars {
		for _, raw := range resp[id] {
			ev, perr := model.ParseRawEvent(id, raw, h.location)
			if perr != nil {
				h.log.Warn("calendar event skipped", "calendar", id, "summary", raw.Summary, "reason", perr.Error())
				continue
			}
			fetched = append(fetched, ev)
		}
	}

	list := Aggregate(fetched, settings.MaxEvents, settings.RemoveRecurringEvents)
	h.replace(list, settings, formatter)
	h.log.Debug("calendar events refreshed", "fetched", len(fetched), "kept", len(list), "language", formatter.Tag().String())
	return nil
}

func (h *Handler) replace(list []model.Event, settings config.Settings, formatter *locale.Formatter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = list
	h.settings = settings
	h.formatter = formatter
}

// Events returns a copy of the aggregated list.
func (h *Handler) Events() []model.Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]model.Event(nil), h.events...)
}

// Len is the number of aggregated events.
func (h *Handler) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.events)
}

// Event returns the event at slot i.
func (h *Handler) Event(i int) (model.Event, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if i < 0 || i >= len(h.events) {
		return model.Event{}, false
	}
	return h.events[i], true
}

// Settings returns the settings of the last refresh.
func (h *Handler) Settings() config.Settings {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.settings.Clone()
}

// Aggregate applies recurring-instance collapse (when dedup is set), a
// stable sort by start and truncation to max. The input is not modified.
func Aggregate(in []model.Event, max int, dedup bool) []model.Event {
	out := append([]model.Event(nil), in...)
	sortByStart(out)
	if dedup {
		out = RemoveRecurring(out)
	}
	if max >= 0 && len(out) > max {
		out = out[:max]
	}
	return out
}

func sortByStart(evs []model.Event) {
	sort.SliceStable(evs, func(i, j int) bool {
		return evs[i].Start.Before(evs[j].Start)
	})
}

// recurringKey identifies instances of the same recurring event: same
// calendar, summary, description and time-of-day of both boundaries.
type recurringKey struct {
	calendar    string
	summary     string
	description string
	startClock  time.Duration
	endClock    time.Duration
}

func keyOf(e model.Event) recurringKey {
	return recurringKey{
		calendar:    e.Calendar,
		summary:     e.Summary,
		description: e.Description,
		startClock:  clock(e.Start),
		endClock:    clock(e.End),
	}
}

// clock is the wall-clock offset from midnight of t in its own location.
func clock(t time.Time) time.Duration {
	h, m, s := t.Clock()
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second + time.Duration(t.Nanosecond())
}

// RemoveRecurring keeps the first of every group of events sharing a
// recurringKey. Given a list sorted by start, the earliest instance wins and
// order is preserved.
func RemoveRecurring(evs []model.Event) []model.Event {
	seen := make(map[recurringKey]struct{}, len(evs))
	out := make([]model.Event, 0, len(evs))
	for _, e := range evs {
		k := keyOf(e)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, e)
	}
	return out
}
