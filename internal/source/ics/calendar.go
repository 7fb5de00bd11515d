package ics

import (
	"context"
	"fmt"
	"time"

	"calevents/internal/model"
)

// Calendar is a source.Source backed by an ICS subscription.
type Calendar struct {
	id      string
	url     string
	fetcher *Fetcher
	loc     *time.Location
}

// NewCalendar returns a source for the feed at url. Floating times are read
// and timed occurrences reported in loc.
func NewCalendar(id, url string, fetcher *Fetcher, loc *time.Location) *Calendar {
	if loc == nil {
		loc = time.Local
	}
	return &Calendar{id: id, url: url, fetcher: fetcher, loc: loc}
}

func (c *Calendar) ID() string {
	return c.id
}

// Events fetches, parses and expands the feed.
func (c *Calendar) Events(ctx context.Context, start, end time.Time) ([]model.RawEvent, error) {
	res, err := c.fetcher.Fetch(ctx, c.id, c.url)
	if err != nil {
		return nil, err
	}

	parsed, err := ParseICS(c.id, res.Body, c.loc)
	if err != nil {
		return nil, err
	}

	occs, err := ExpandOccurrences(parsed, ExpandConfig{
		DisplayLocation: c.loc,
		RangeStart:      start,
		RangeEnd:        end,
	})
	if err != nil {
		return nil, fmt.Errorf("ics %s: %w", c.id, err)
	}

	out := make([]model.RawEvent, 0, len(occs))
	for _, o := range occs {
		out = append(out, model.RawEvent{
			Start:       model.FormatBoundary(o.Start, o.AllDay),
			End:         model.FormatBoundary(o.End, o.AllDay),
			Summary:     o.Summary,
			Description: o.Description,
			Location:    o.Location,
		})
	}
	return out, nil
}
