// Package entry wires one configured entry: its aggregator, sensors,
// calendar view and refresh coordinator.
package entry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"calevents/internal/config"
	"calevents/internal/coordinator"
	"calevents/internal/entity"
	"calevents/internal/events"
	"calevents/internal/issues"
	appLog "calevents/internal/log"
	"calevents/internal/source"
)

// ErrNotFound is returned for an unknown entry id.
var ErrNotFound = errors.New("entry not found")

// IssueReporter records and clears advisories.
type IssueReporter interface {
	Report(ctx context.Context, is issues.Issue) error
	DeleteEntry(ctx context.Context, entryID string) error
}

// Deps are the host services shared by every entry.
type Deps struct {
	Registry *source.Registry
	Store    *config.Store
	Issues   IssueReporter

	// Location is the display zone; Language the host language used when
	// an entry sets no format_language.
	Location *time.Location
	Language string
	Schedule string
	Now      func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Location == nil {
		d.Location = time.Local
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Schedule == "" {
		d.Schedule = coordinator.DefaultSchedule
	}
	return d
}

// Entry is one running calendar-events entry.
type Entry struct {
	id    string
	title string
	deps  Deps
	log   appLog.Logger

	handler  *events.Handler
	coord    *coordinator.Coordinator
	summary  *entity.SummarySensor
	slots    []*entity.EventSensor
	calendar *entity.Calendar

	mu       sync.Mutex
	settings config.Settings
	active   []string
}

// New builds a stopped entry from its stored config. One slot sensor is
// created per max_events.
func New(cfg config.EntryConfig, deps Deps) *Entry {
	deps = deps.withDefaults()
	settings := cfg.Options.Clone()
	settings.Normalize()

	e := &Entry{
		id:       cfg.ID,
		title:    cfg.Title,
		deps:     deps,
		log:      appLog.With("entry", cfg.ID),
		settings: settings,
		active:   append([]string(nil), settings.Calendars...),
	}
	e.handler = events.NewHandler(deps.Registry,
		events.WithClock(deps.Now),
		events.WithLocation(deps.Location),
		events.WithLogger(e.log),
	)
	e.coord = coordinator.New(cfg.ID, e.update,
		coordinator.WithSchedule(deps.Schedule),
		coordinator.WithLocation(deps.Location),
		coordinator.WithLogger(e.log),
	)
	e.summary = entity.NewSummarySensor(e.id, e.title, e.handler, e.coord)
	for i := 0; i < settings.MaxEvents; i++ {
		e.slots = append(e.slots, entity.NewEventSensor(e.id, e.title, i, e.handler))
	}
	e.calendar = entity.NewCalendar(e.id, e.title, e.handler)
	return e
}

func (e *Entry) ID() string    { return e.id }
func (e *Entry) Title() string { return e.title }

// Settings returns the options in effect, including unsaved toggles.
func (e *Entry) Settings() config.Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings.Clone()
}

// ActiveCalendars are the selected sources not yet dropped as missing.
func (e *Entry) ActiveCalendars() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.active...)
}

// Sensors returns the summary sensor followed by the slot sensors.
func (e *Entry) Sensors() []entity.Sensor {
	out := make([]entity.Sensor, 0, len(e.slots)+1)
	out = append(out, e.summary)
	for _, s := range e.slots {
		out = append(out, s)
	}
	return out
}

func (e *Entry) Summary() *entity.SummarySensor { return e.summary }
func (e *Entry) Calendar() *entity.Calendar     { return e.calendar }

// Available mirrors the outcome of the last refresh.
func (e *Entry) Available() bool { return e.coord.LastUpdateSuccess() }

// Setup starts the schedule and runs the startup refresh. A failing first
// refresh only marks the entry unavailable.
func (e *Entry) Setup(ctx context.Context) error {
	if err := e.coord.Start(); err != nil {
		return fmt.Errorf("entry %s: %w", e.id, err)
	}
	if err := e.coord.Refresh(ctx); err != nil {
		e.log.Warn("startup refresh failed", "error", err.Error())
	}
	e.log.Info("entry set up", "title", e.title, "calendars", len(e.ActiveCalendars()))
	return nil
}

// Refresh runs a cycle now, serialized with scheduled ones.
func (e *Entry) Refresh(ctx context.Context) error {
	return e.coord.Refresh(ctx)
}

// ToggleShowAsTimeTo flips show_event_as_time_to, optionally persists it
// and refreshes immediately. Only a failed save is returned; the refresh
// outcome is reflected by Available.
func (e *Entry) ToggleShowAsTimeTo(ctx context.Context, persist bool) error {
	e.mu.Lock()
	e.settings.ShowEventAsTimeTo = !e.settings.ShowEventAsTimeTo
	settings := e.settings.Clone()
	e.mu.Unlock()

	e.log.Info("show_event_as_time_to toggled", "value", settings.ShowEventAsTimeTo, "persist", persist)
	if persist && e.deps.Store != nil {
		if err := e.deps.Store.UpdateEntrySettings(e.id, settings); err != nil {
			return fmt.Errorf("entry %s: save settings: %w", e.id, err)
		}
	}
	if err := e.coord.Refresh(ctx); err != nil {
		e.log.Debug("refresh after toggle failed", "error", err.Error())
	}
	return nil
}

// Teardown stops the schedule and abandons any in-flight refresh.
func (e *Entry) Teardown() {
	e.coord.Stop()
	e.log.Info("entry torn down")
}

func (e *Entry) update(ctx context.Context) error {
	calendars := e.resolve(ctx)

	e.mu.Lock()
	settings := e.settings.Clone()
	e.mu.Unlock()

	err := e.handler.Refresh(ctx, calendars, settings, e.deps.Language)
	if err != nil && ctx.Err() != nil {
		return err
	}
	// Sensors always mirror the handler, even if ctx ends from here on.
	sctx := context.WithoutCancel(ctx)
	for _, s := range e.Sensors() {
		if serr := s.Refresh(sctx); serr != nil && err == nil {
			err = serr
		}
	}
	return err
}

// resolve drops selected sources that are not registered and reports an
// advisory for each. Dropped sources stay dropped for the life of the
// entry.
func (e *Entry) resolve(ctx context.Context) []string {
	e.mu.Lock()
	live, missing := e.deps.Registry.Resolve(e.active)
	e.active = live
	e.mu.Unlock()

	for _, id := range missing {
		e.log.Warn("calendar source missing, dropped from entry", "calendar", id)
		if e.deps.Issues == nil {
			continue
		}
		if err := e.deps.Issues.Report(ctx, issues.MissingEntity(e.id, e.title, id)); err != nil {
			e.log.Error("report missing calendar source", err, "calendar", id)
		}
	}
	return live
}
