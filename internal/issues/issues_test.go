package issues

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestReportUpsertsByID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return first }
	require.NoError(t, s.Report(ctx, MissingEntity("entry1", "Upcoming", "calendar.gone")))

	s.now = func() time.Time { return first.Add(time.Hour) }
	require.NoError(t, s.Report(ctx, MissingEntity("entry1", "Upcoming", "calendar.gone")))

	got, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)

	is := got[0]
	assert.Equal(t, "missing_entity_entry1_calendar.gone", is.ID)
	assert.Equal(t, SeverityWarning, is.Severity)
	assert.False(t, is.Fixable)
	assert.Equal(t, KeyMissingEntity, is.TranslationKey)
	assert.Equal(t, map[string]string{
		"entity":                 "calendar.gone",
		"calendar_events_helper": "Upcoming",
	}, is.Placeholders)
	assert.True(t, first.Equal(is.CreatedAt))
}

func TestDismissAndDeleteEntry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Report(ctx, MissingEntity("entry1", "A", "calendar.x")))
	require.NoError(t, s.Report(ctx, MissingEntity("entry1", "A", "calendar.y")))
	require.NoError(t, s.Report(ctx, MissingEntity("entry2", "B", "calendar.x")))

	require.NoError(t, s.Dismiss(ctx, MissingEntityID("entry1", "calendar.x")))
	assert.ErrorIs(t, s.Dismiss(ctx, MissingEntityID("entry1", "calendar.x")), ErrNotFound)

	_, err := s.Get(ctx, MissingEntityID("entry1", "calendar.x"))
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := s.ListEntry(ctx, "entry1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "calendar.y", got[0].Placeholders["entity"])

	require.NoError(t, s.DeleteEntry(ctx, "entry1"))
	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "entry2", all[0].EntryID)
}

func TestReportRequiresID(t *testing.T) {
	s := newTestStore(t)
	assert.Error(t, s.Report(context.Background(), Issue{EntryID: "entry1"}))
}
