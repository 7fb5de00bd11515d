// Package google exposes a Google Calendar as a calendar source.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	appLog "calevents/internal/log"
	"calevents/internal/model"
)

const (
	defaultSleep = 5 * time.Second
	maxRetries   = 3
)

// Calendar is a source.Source reading single (already expanded) events of
// one Google calendar.
type Calendar struct {
	id         string
	calendarID string
	svc        *calendar.Service
	loc        *time.Location
}

// NewCalendar builds a read-only calendar client from an OAuth client
// credentials file and a stored token.
func NewCalendar(ctx context.Context, id, calendarID, credentialsFile, tokenFile string, loc *time.Location) (*Calendar, error) {
	credJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("google: reading credentials file: %w", err)
	}
	oauthCfg, err := googleoauth.ConfigFromJSON(credJSON, calendar.CalendarReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("google: parsing credentials file: %w", err)
	}

	tokJSON, err := os.ReadFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("google: reading token file: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(tokJSON, &tok); err != nil {
		return nil, fmt.Errorf("google: parsing token file: %w", err)
	}

	svc, err := calendar.NewService(ctx, option.WithHTTPClient(oauthCfg.Client(ctx, &tok)))
	if err != nil {
		return nil, fmt.Errorf("google: creating service: %w", err)
	}
	return NewCalendarWithService(id, calendarID, svc, loc), nil
}

// NewCalendarWithService wraps an existing service, e.g. one pointed at a
// test server.
func NewCalendarWithService(id, calendarID string, svc *calendar.Service, loc *time.Location) *Calendar {
	if loc == nil {
		loc = time.Local
	}
	return &Calendar{id: id, calendarID: calendarID, svc: svc, loc: loc}
}

func (c *Calendar) ID() string {
	return c.id
}

// Events lists single events overlapping [start, end), following pages.
func (c *Calendar) Events(ctx context.Context, start, end time.Time) ([]model.RawEvent, error) {
	call := c.svc.Events.
		List(c.calendarID).
		Context(ctx).
		ShowDeleted(false).
		SingleEvents(true).
		OrderBy("startTime").
		TimeMin(start.Format(time.RFC3339)).
		TimeMax(end.Format(time.RFC3339))

	var (
		out           []model.RawEvent
		nextPageToken string
		retries       int
	)
	for {
		events, err := call.PageToken(nextPageToken).Do()
		if err != nil {
			if shouldRetry(err) && retries < maxRetries {
				retries++
				appLog.Warn("google: rate limited, retrying", "id", c.id, "attempt", retries)
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(defaultSleep):
				}
				continue
			}
			return nil, fmt.Errorf("google: listing events of %s: %w", c.calendarID, err)
		}

		for _, item := range events.Items {
			if item.Status == "cancelled" {
				continue
			}
			raw, ok := c.newRawEvent(item)
			if !ok {
				appLog.Warn("google: event without start/end skipped", "id", c.id, "event_id", item.Id)
				continue
			}
			out = append(out, raw)
		}

		nextPageToken = events.NextPageToken
		if nextPageToken == "" {
			break
		}
	}
	return out, nil
}

func (c *Calendar) newRawEvent(item *calendar.Event) (model.RawEvent, bool) {
	start, ok := c.boundary(item.Start)
	if !ok {
		return model.RawEvent{}, false
	}
	end, ok := c.boundary(item.End)
	if !ok {
		return model.RawEvent{}, false
	}
	return model.RawEvent{
		Start:       start,
		End:         end,
		Summary:     item.Summary,
		Description: item.Description,
		Location:    item.Location,
	}, true
}

// boundary keeps all-day dates as dates and converts date-times into the
// display zone.
func (c *Calendar) boundary(dt *calendar.EventDateTime) (string, bool) {
	if dt == nil {
		return "", false
	}
	if dt.Date != "" {
		return dt.Date, true
	}
	t, err := time.Parse(time.RFC3339, dt.DateTime)
	if err != nil {
		return "", false
	}
	return model.FormatBoundary(t.In(c.loc), false), true
}

func shouldRetry(err error) bool {
	return errIsReason(err, "rateLimitExceeded") || errIsReason(err, "userRateLimitExceeded")
}

func errIsReason(err error, reason string) bool {
	var gErr *googleapi.Error
	if !errors.As(err, &gErr) {
		return false
	}
	for _, e := range gErr.Errors {
		if e.Reason == reason {
			return true
		}
	}
	return false
}
