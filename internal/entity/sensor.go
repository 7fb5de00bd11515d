// Package entity adapts the aggregated event list of an entry into the
// sensors and the calendar view served to clients.
package entity

import (
	"context"
	"strconv"
	"sync"

	"calevents/internal/config"
	"calevents/internal/model"
)

// EventSource is the read side of an events.Handler.
type EventSource interface {
	Len() int
	Events() []model.Event
	Event(i int) (model.Event, bool)
	FormatEvent(i int) (string, bool)
	Markdown() string
	Settings() config.Settings
}

// Availability reports the outcome of the last refresh cycle.
type Availability interface {
	LastUpdateSuccess() bool
}

// Sensor is one named value derived from the event list. Refresh
// recomputes the cached state after a refresh cycle.
type Sensor interface {
	UniqueID() string
	Name() string
	State() any
	Attributes() map[string]any
	Available() bool
	Refresh(ctx context.Context) error
}

// Attribute names of the summary sensor.
const (
	AttrEvents       = "events"
	AttrMarkdownText = "markdown_text"
)

// SummarySensor exposes the number of aggregated events, the events
// themselves and the rendered markdown.
type SummarySensor struct {
	entryID string
	title   string
	src     EventSource
	avail   Availability

	mu       sync.RWMutex
	events   []model.Event
	markdown string
}

var _ Sensor = (*SummarySensor)(nil)

func NewSummarySensor(entryID, title string, src EventSource, avail Availability) *SummarySensor {
	return &SummarySensor{entryID: entryID, title: title, src: src, avail: avail, events: []model.Event{}}
}

func (s *SummarySensor) UniqueID() string { return s.entryID }
func (s *SummarySensor) Name() string     { return s.title }

func (s *SummarySensor) State() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

func (s *SummarySensor) Attributes() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]any{
		AttrEvents:       append([]model.Event(nil), s.events...),
		AttrMarkdownText: s.markdown,
	}
}

// Markdown is the cached markdown_text attribute.
func (s *SummarySensor) Markdown() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.markdown
}

func (s *SummarySensor) Available() bool {
	if s.avail == nil {
		return true
	}
	return s.avail.LastUpdateSuccess()
}

func (s *SummarySensor) Refresh(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	markdown := s.src.Markdown()
	events := s.src.Events()
	if events == nil {
		events = []model.Event{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = events
	s.markdown = markdown
	return nil
}

// EventSensor shows the formatted text of one slot of the list.
type EventSensor struct {
	entryID string
	title   string
	slot    int
	src     EventSource

	mu    sync.RWMutex
	state *string
	name  string
}

var _ Sensor = (*EventSensor)(nil)

func NewEventSensor(entryID, title string, slot int, src EventSource) *EventSensor {
	s := &EventSensor{entryID: entryID, title: title, slot: slot, src: src}
	s.name = s.defaultName()
	return s
}

func (s *EventSensor) defaultName() string {
	return s.title + "_event_" + strconv.Itoa(s.slot)
}

// Slot is the zero-based list position the sensor is bound to.
func (s *EventSensor) Slot() int { return s.slot }

func (s *EventSensor) UniqueID() string {
	return s.entryID + "_event_" + strconv.Itoa(s.slot)
}

func (s *EventSensor) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

// State is the formatted event, or nil when the slot is empty.
func (s *EventSensor) State() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == nil {
		return nil
	}
	return *s.state
}

func (s *EventSensor) Attributes() map[string]any {
	return map[string]any{}
}

func (s *EventSensor) Available() bool { return true }

func (s *EventSensor) Refresh(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var state *string
	if text, ok := s.src.FormatEvent(s.slot); ok {
		state = &text
	}
	name := s.defaultName()
	if s.src.Settings().UseSummaryAsEntityName {
		if ev, ok := s.src.Event(s.slot); ok {
			name = ev.Summary
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.name = name
	return nil
}
