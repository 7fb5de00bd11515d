package events

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calevents/internal/config"
	"calevents/internal/model"
	"calevents/internal/source"
)

var testNow = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

type fakeQuerier struct {
	resp  source.Response
	err   error
	calls int
	last  source.Request
}

func (f *fakeQuerier) Query(_ context.Context, req source.Request) (source.Response, error) {
	f.calls++
	f.last = req
	return f.resp, f.err
}

func newTestHandler(q Querier) *Handler {
	return NewHandler(q, WithClock(func() time.Time { return testNow }), WithLocation(time.UTC))
}

func timed(start string, d time.Duration, summary string) model.RawEvent {
	t, err := time.Parse(time.RFC3339, start)
	if err != nil {
		panic(err)
	}
	return model.RawEvent{
		Start:   t.Format(time.RFC3339),
		End:     t.Add(d).Format(time.RFC3339),
		Summary: summary,
	}
}

func ev(calendar, summary string, start time.Time, d time.Duration) model.Event {
	return model.Event{Calendar: calendar, Summary: summary, Start: start, End: start.Add(d)}
}

func TestRefreshQueriesLookaheadWindow(t *testing.T) {
	q := &fakeQuerier{resp: source.Response{}}
	h := newTestHandler(q)

	s := config.DefaultSettings()
	s.DaysAhead = 3
	require.NoError(t, h.Refresh(context.Background(), []string{"calendar.a"}, s, "en"))

	assert.Equal(t, []string{"calendar.a"}, q.last.EntityIDs)
	assert.Equal(t, testNow, q.last.Start)
	assert.Equal(t, testNow.AddDate(0, 0, 3), q.last.End)
	assert.Zero(t, h.Len())
}

func TestRefreshWithoutCalendarsSkipsQuery(t *testing.T) {
	q := &fakeQuerier{}
	h := newTestHandler(q)

	require.NoError(t, h.Refresh(context.Background(), nil, config.DefaultSettings(), "en"))
	assert.Zero(t, q.calls)
	assert.Empty(t, h.Events())
}

func TestRefreshCollapsesRecurringStandup(t *testing.T) {
	q := &fakeQuerier{resp: source.Response{
		"calendar.work": {
			timed("2024-01-12T09:00:00Z", 15*time.Minute, "Standup"),
			timed("2024-01-11T09:00:00Z", 15*time.Minute, "Standup"),
			timed("2024-01-13T09:00:00Z", 15*time.Minute, "Standup"),
		},
	}}
	h := newTestHandler(q)

	require.NoError(t, h.Refresh(context.Background(), []string{"calendar.work"}, config.DefaultSettings(), "en"))

	got := h.Events()
	require.Len(t, got, 1)
	assert.Equal(t, time.Date(2024, 1, 11, 9, 0, 0, 0, time.UTC), got[0].Start)
	assert.Equal(t, "calendar.work", got[0].Calendar)

	s := config.DefaultSettings()
	s.RemoveRecurringEvents = false
	require.NoError(t, h.Refresh(context.Background(), []string{"calendar.work"}, s, "en"))
	assert.Equal(t, 3, h.Len())
}

func TestRefreshTruncatesSortedList(t *testing.T) {
	var raws []model.RawEvent
	for i := 8; i >= 1; i-- {
		start := testNow.Add(time.Duration(i) * time.Hour)
		raws = append(raws, timed(start.Format(time.RFC3339), 30*time.Minute, fmt.Sprintf("Event %d", i)))
	}
	h := newTestHandler(&fakeQuerier{resp: source.Response{"calendar.a": raws}})

	require.NoError(t, h.Refresh(context.Background(), []string{"calendar.a"}, config.DefaultSettings(), "en"))

	got := h.Events()
	require.Len(t, got, config.DefaultMaxEvents)
	for i, e := range got {
		assert.Equal(t, fmt.Sprintf("Event %d", i+1), e.Summary)
	}
}

func TestRefreshSkipsUnparseableEvents(t *testing.T) {
	h := newTestHandler(&fakeQuerier{resp: source.Response{"calendar.a": {
		{Start: "soon", End: "later", Summary: "Broken"},
		{Start: "2024-01-11", End: "2024-01-12", Summary: "Holiday"},
	}}})

	require.NoError(t, h.Refresh(context.Background(), []string{"calendar.a"}, config.DefaultSettings(), "en"))
	got := h.Events()
	require.Len(t, got, 1)
	assert.True(t, got[0].AllDay)
	assert.True(t, got[0].IsDayEvent())
}

func TestRefreshFailure(t *testing.T) {
	q := &fakeQuerier{resp: source.Response{"calendar.a": {timed("2024-01-11T09:00:00Z", time.Hour, "Review")}}}
	h := newTestHandler(q)
	calendars := []string{"calendar.a"}

	require.NoError(t, h.Refresh(context.Background(), calendars, config.DefaultSettings(), "en"))
	require.Equal(t, 1, h.Len())

	q.err = errors.New("backend down")
	keep := config.DefaultSettings()
	keep.KeepEventsOnFailure = true
	err := h.Refresh(context.Background(), calendars, keep, "en")
	require.ErrorIs(t, err, q.err)
	assert.Equal(t, 1, h.Len())

	err = h.Refresh(context.Background(), calendars, config.DefaultSettings(), "en")
	require.ErrorIs(t, err, q.err)
	assert.Zero(t, h.Len())
}

func TestRefreshAbandonedKeepsList(t *testing.T) {
	q := &fakeQuerier{resp: source.Response{"calendar.a": {timed("2024-01-11T09:00:00Z", time.Hour, "Review")}}}
	h := newTestHandler(q)
	calendars := []string{"calendar.a"}
	require.NoError(t, h.Refresh(context.Background(), calendars, config.DefaultSettings(), "en"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	q.err = ctx.Err()
	changed := config.DefaultSettings()
	changed.ShowEventAsTimeTo = true
	err := h.Refresh(ctx, calendars, changed, "en")
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, h.Len())
	assert.False(t, h.Settings().ShowEventAsTimeTo, "settings of an abandoned cycle are not applied")
}

func TestAggregate(t *testing.T) {
	base := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	standup := func(day int) model.Event {
		return ev("calendar.a", "Standup", base.AddDate(0, 0, day), 15*time.Minute)
	}

	in := []model.Event{
		standup(2),
		ev("calendar.b", "Standup", base.AddDate(0, 0, 1), 15*time.Minute),
		standup(0),
		ev("calendar.a", "Standup", base.AddDate(0, 0, 1).Add(time.Hour), 15*time.Minute),
		standup(1),
	}

	got := Aggregate(in, 10, true)
	want := []model.Event{
		standup(0),
		ev("calendar.b", "Standup", base.AddDate(0, 0, 1), 15*time.Minute),
		ev("calendar.a", "Standup", base.AddDate(0, 0, 1).Add(time.Hour), 15*time.Minute),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("aggregate mismatch (-want +got):\n%s", diff)
	}

	// Collapse is idempotent.
	if diff := cmp.Diff(got, Aggregate(got, 10, true)); diff != "" {
		t.Errorf("second pass changed the list (-first +second):\n%s", diff)
	}

	assert.Len(t, Aggregate(in, 10, false), 5)
	assert.Len(t, Aggregate(in, 2, false), 2)
	assert.Equal(t, standup(2), in[0], "input must not be modified")
}

func TestRemoveRecurringKeepsDistinctDescriptions(t *testing.T) {
	base := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	a := ev("calendar.a", "Sync", base, time.Hour)
	b := ev("calendar.a", "Sync", base.AddDate(0, 0, 1), time.Hour)
	b.Description = "moved agenda"
	c := ev("calendar.a", "Sync", base.AddDate(0, 0, 2), 2*time.Hour)

	assert.Len(t, RemoveRecurring([]model.Event{a, b, c}), 3)
}

func TestFormatEvent(t *testing.T) {
	h := newTestHandler(&fakeQuerier{resp: source.Response{"calendar.a": {
		{Start: "2024-01-10", End: "2024-01-11", Summary: "Holiday"},
		timed("2024-01-13T12:00:00Z", time.Hour, "Dentist"),
	}}})
	ctx := context.Background()
	calendars := []string{"calendar.a"}

	s := config.DefaultSettings()
	require.NoError(t, h.Refresh(ctx, calendars, s, "en"))

	got, ok := h.FormatEvent(0)
	require.True(t, ok)
	assert.Equal(t, "Just now - Holiday", got)

	got, _ = h.FormatEvent(1)
	assert.Equal(t, "Jan 13, 2024, 12:00 PM - Dentist", got)

	s.ShowEndDate = true
	s.ShowSummary = false
	require.NoError(t, h.Refresh(ctx, calendars, s, "en"))
	got, _ = h.FormatEvent(1)
	assert.Equal(t, "Jan 13, 2024, 12:00 PM - Jan 13, 2024, 1:00 PM", got)
	e, _ := h.Event(1)
	assert.Equal(t, "Jan 13, 2024, 12:00 PM", e.StartFormatted)
	assert.Equal(t, "Jan 13, 2024, 1:00 PM", e.EndFormatted)

	s.ShowEventAsTimeTo = true
	s.ShowSummary = true
	require.NoError(t, h.Refresh(ctx, calendars, s, "en"))
	got, _ = h.FormatEvent(1)
	assert.Equal(t, "in 3 days - Dentist", got)

	s.FormatLanguage = "da"
	require.NoError(t, h.Refresh(ctx, calendars, s, "en"))
	got, _ = h.FormatEvent(1)
	assert.Equal(t, "om 3 dage - Dentist", got)

	_, ok = h.FormatEvent(5)
	assert.False(t, ok)
}

func TestMarkdown(t *testing.T) {
	q := &fakeQuerier{resp: source.Response{}}
	h := newTestHandler(q)
	ctx := context.Background()

	require.NoError(t, h.Refresh(ctx, []string{"calendar.a"}, config.DefaultSettings(), "en"))
	assert.Equal(t, config.DefaultMDHeaderTemplate, h.Markdown())

	q.resp = source.Response{"calendar.a": {timed("2024-01-13T12:00:00Z", time.Hour, "Dentist")}}
	require.NoError(t, h.Refresh(ctx, []string{"calendar.a"}, config.DefaultSettings(), "en"))
	assert.Equal(t,
		config.DefaultMDHeaderTemplate+"- __Dentist__ <br>_Jan 13, 2024, 12:00 PM_\n",
		h.Markdown())

	s := config.DefaultSettings()
	s.MDHeaderTemplate = "## Next\n"
	s.MDItemTemplate = "* {{ summary }} ({{ .Event.Calendar }})\n"
	require.NoError(t, h.Refresh(ctx, []string{"calendar.a"}, s, "en"))
	assert.Equal(t, "## Next\n* Dentist (calendar.a)\n", h.Markdown())

	s.MDItemTemplate = "{{ summary | upper }}"
	require.NoError(t, h.Refresh(ctx, []string{"calendar.a"}, s, "en"))
	assert.Equal(t,
		config.DefaultMDHeaderTemplate+"- __Dentist__ <br>_Jan 13, 2024, 12:00 PM_\n",
		h.Markdown())
}
