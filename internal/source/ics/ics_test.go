package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calevents/internal/model"
)

const feed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//calevents//test//EN
BEGIN:VEVENT
UID:standup@test
DTSTAMP:20240101T000000Z
DTSTART:20240108T090000Z
DTEND:20240108T091500Z
RRULE:FREQ=DAILY;COUNT=5
EXDATE:20240110T090000Z
SUMMARY:Standup
DESCRIPTION:Daily sync
END:VEVENT
BEGIN:VEVENT
UID:holiday@test
DTSTAMP:20240101T000000Z
DTSTART;VALUE=DATE:20240112
DTEND;VALUE=DATE:20240113
SUMMARY:Holiday
END:VEVENT
BEGIN:VEVENT
UID:standup@test
DTSTAMP:20240101T000000Z
RECURRENCE-ID:20240111T090000Z
DTSTART:20240111T100000Z
DTEND:20240111T101500Z
SUMMARY:Standup (moved)
DESCRIPTION:Daily sync
END:VEVENT
END:VCALENDAR
`

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

func TestCalendarEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = w.Write(crlf(feed))
	}))
	defer srv.Close()

	cal := NewCalendar("calendar.team", srv.URL+"/team.ics", NewFetcher(t.TempDir(), srv.Client()), time.UTC)
	assert.Equal(t, "calendar.team", cal.ID())

	start := time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC)
	got, err := cal.Events(context.Background(), start, start.AddDate(0, 0, 7))
	require.NoError(t, err)

	want := []model.RawEvent{
		{Start: "2024-01-09T09:00:00Z", End: "2024-01-09T09:15:00Z", Summary: "Standup", Description: "Daily sync"},
		{Start: "2024-01-11T10:00:00Z", End: "2024-01-11T10:15:00Z", Summary: "Standup (moved)", Description: "Daily sync"},
		{Start: "2024-01-12", End: "2024-01-13", Summary: "Holiday"},
		{Start: "2024-01-12T09:00:00Z", End: "2024-01-12T09:15:00Z", Summary: "Standup", Description: "Daily sync"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestFetcherUsesCache(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.Header().Set("ETag", `"v1"`)
			_, _ = w.Write(crlf(feed))
		case 2:
			assert.Equal(t, `"v1"`, r.Header.Get("If-None-Match"))
			w.WriteHeader(http.StatusNotModified)
		default:
			http.Error(w, "down", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), srv.Client())
	ctx := context.Background()

	first, err := f.Fetch(ctx, "a", srv.URL)
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := f.Fetch(ctx, "a", srv.URL)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Body, second.Body)

	third, err := f.Fetch(ctx, "a", srv.URL)
	require.NoError(t, err)
	assert.True(t, third.FromCache)
}

func TestFetcherErrorWithoutCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewFetcher(t.TempDir(), srv.Client()).Fetch(context.Background(), "a", srv.URL)
	assert.ErrorContains(t, err, "404")

	_, err = NewFetcher(t.TempDir(), nil).Fetch(context.Background(), "a", "")
	assert.Error(t, err)
}

func TestParseSkipsBrokenEvents(t *testing.T) {
	body := `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//calevents//test//EN
BEGIN:VEVENT
DTSTART:20240108T090000Z
SUMMARY:No UID
END:VEVENT
BEGIN:VEVENT
UID:ok@test
DTSTART;TZID=Europe/Copenhagen:20240108T090000
DTEND;TZID=Europe/Copenhagen:20240108T100000
SUMMARY:Local
END:VEVENT
END:VCALENDAR
`
	events, err := ParseICS("a", crlf(body), time.UTC)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Local", events[0].Summary)
	assert.Equal(t, time.Hour, events[0].End.Sub(events[0].Start))

	_, err = ParseICS("a", nil, time.UTC)
	assert.Error(t, err)
}

func TestExpandRDates(t *testing.T) {
	body := `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//calevents//test//EN
BEGIN:VEVENT
UID:review@test
DTSTART:20240108T140000Z
DTEND:20240108T150000Z
RDATE:20240110T140000Z,20240115T140000Z
RDATE;VALUE=PERIOD:20240111T140000Z/PT1H
EXDATE:20240115T140000Z
SUMMARY:Review
END:VEVENT
BEGIN:VEVENT
UID:retro@test
DTSTART:20240109T100000Z
DTEND:20240109T103000Z
RRULE:FREQ=WEEKLY;COUNT=1
RDATE:20240112T100000Z
SUMMARY:Retro
END:VEVENT
END:VCALENDAR
`
	events, err := ParseICS("a", crlf(body), time.UTC)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Len(t, events[0].RDates, 2)

	got, err := ExpandOccurrences(events, ExpandConfig{
		DisplayLocation: time.UTC,
		RangeStart:      time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC),
		RangeEnd:        time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	var starts []string
	for _, o := range got {
		starts = append(starts, o.Summary+" "+o.Start.Format(time.RFC3339))
		want := time.Hour
		if o.Summary == "Retro" {
			want = 30 * time.Minute
		}
		assert.Equal(t, want, o.End.Sub(o.Start), o.Summary)
	}
	want := []string{
		"Review 2024-01-08T14:00:00Z",
		"Retro 2024-01-09T10:00:00Z",
		"Review 2024-01-10T14:00:00Z",
		"Retro 2024-01-12T10:00:00Z",
	}
	if diff := cmp.Diff(want, starts); diff != "" {
		t.Errorf("occurrences mismatch (-want +got):\n%s", diff)
	}
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://example.com/...(redacted)", redactURL("https://example.com/private/abc.ics?token=1"))
	assert.Equal(t, "https://example.com/...(redacted)", redactURL("https://example.com?token=1"))
	assert.Equal(t, "ics://...(redacted)", redactURL("not a url"))
}
