package events

import (
	"fmt"
	"strings"
	"text/template"

	"calevents/internal/config"
	"calevents/internal/model"
)

// FormatEvent renders the display line of slot i: a "now" phrase for an
// all-day event that has begun, a relative duration when
// ShowEventAsTimeTo is set, or the formatted start (and end). The summary
// is appended when ShowSummary is set.
func (h *Handler) FormatEvent(i int) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if i < 0 || i >= len(h.events) {
		return "", false
	}
	s := h.formatTimeLocked(i)
	if h.settings.ShowSummary {
		s += " - " + h.events[i].Summary
	}
	return s, true
}

func (h *Handler) formatTimeLocked(i int) string {
	ev := &h.events[i]
	f := h.formatter

	now := h.now().In(ev.Start.Location())
	diff := ev.Start.Sub(now)

	if ev.IsDayEvent() && diff <= 0 {
		return f.Now()
	}
	if h.settings.ShowEventAsTimeTo {
		return f.TimeDelta(diff)
	}

	if ev.AllDay {
		ev.StartFormatted = f.Date(ev.Start)
		ev.EndFormatted = f.Date(ev.End)
	} else {
		ev.StartFormatted = f.DateTime(ev.Start)
		ev.EndFormatted = f.DateTime(ev.End)
	}
	s := ev.StartFormatted
	if h.settings.ShowEndDate {
		s += " - " + ev.EndFormatted
	}
	return s
}

// MarkdownItem is the data of one item template execution. The template
// functions summary, description, location and formatted_event_time return
// the same values.
type MarkdownItem struct {
	Summary            string
	Description        string
	Location           string
	FormattedEventTime string
	Event              model.Event
}

// Markdown renders the header template once and the item template for every
// aggregated event. A template that fails to parse or execute is logged and
// the default templates are used instead.
func (h *Handler) Markdown() string {
	h.mu.Lock()
	items := make([]MarkdownItem, len(h.events))
	for i := range h.events {
		formatted := h.formatTimeLocked(i)
		ev := h.events[i]
		items[i] = MarkdownItem{
			Summary:            ev.Summary,
			Description:        ev.Description,
			Location:           ev.Location,
			FormattedEventTime: formatted,
			Event:              ev,
		}
	}
	header, item := h.settings.MDHeaderTemplate, h.settings.MDItemTemplate
	h.mu.Unlock()

	out, err := RenderMarkdown(header, item, items)
	if err != nil {
		h.log.Error("markdown template failed, using defaults", err)
		out, _ = RenderMarkdown(config.DefaultMDHeaderTemplate, config.DefaultMDItemTemplate, items)
	}
	return out
}

// RenderMarkdown executes header once and item for each of items.
func RenderMarkdown(header, item string, items []MarkdownItem) (string, error) {
	var cur MarkdownItem
	funcs := template.FuncMap{
		"summary":              func() string { return cur.Summary },
		"description":          func() string { return cur.Description },
		"location":             func() string { return cur.Location },
		"formatted_event_time": func() string { return cur.FormattedEventTime },
	}

	headerTmpl, err := template.New("header").Funcs(funcs).Parse(header)
	if err != nil {
		return "", fmt.Errorf("parse header template: %w", err)
	}
	itemTmpl, err := template.New("item").Funcs(funcs).Parse(item)
	if err != nil {
		return "", fmt.Errorf("parse item template: %w", err)
	}

	var b strings.Builder
	if err := headerTmpl.Execute(&b, nil); err != nil {
		return "", fmt.Errorf("execute header template: %w", err)
	}
	for _, cur = range items {
		if err := itemTmpl.Execute(&b, cur); err != nil {
			return "", fmt.Errorf("execute item template: %w", err)
		}
	}
	return b.String(), nil
}
