package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calevents/internal/model"
)

type fakeSource struct {
	id     string
	events []model.RawEvent
	err    error

	gotStart, gotEnd time.Time
}

func (f *fakeSource) ID() string { return f.id }

func (f *fakeSource) Events(_ context.Context, start, end time.Time) ([]model.RawEvent, error) {
	f.gotStart, f.gotEnd = start, end
	return f.events, f.err
}

func TestRegistryResolve(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeSource{id: "calendar.a"})
	r.Register(&fakeSource{id: "calendar.b"})

	live, missing := r.Resolve([]string{"calendar.b", "calendar.gone", "calendar.a"})
	assert.Equal(t, []string{"calendar.b", "calendar.a"}, live)
	assert.Equal(t, []string{"calendar.gone"}, missing)
	assert.Equal(t, []string{"calendar.a", "calendar.b"}, r.IDs())

	r.Unregister("calendar.a")
	_, err := r.Get("calendar.a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistryQuery(t *testing.T) {
	a := &fakeSource{id: "calendar.a", events: []model.RawEvent{{Start: "2024-01-10", End: "2024-01-11", Summary: "Holiday"}}}
	b := &fakeSource{id: "calendar.b"}

	r := NewRegistry()
	r.Register(a)
	r.Register(b)

	start := time.Date(2024, 1, 9, 12, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 15)

	resp, err := r.Query(context.Background(), Request{EntityIDs: []string{"calendar.a", "calendar.b"}, Start: start, End: end})
	require.NoError(t, err)
	assert.Len(t, resp["calendar.a"], 1)
	assert.Empty(t, resp["calendar.b"])
	assert.Equal(t, start, a.gotStart)
	assert.Equal(t, end, a.gotEnd)
}

func TestRegistryQueryFailures(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("connection refused")
	r.Register(&fakeSource{id: "calendar.down", err: boom})

	now := time.Now()
	_, err := r.Query(context.Background(), Request{EntityIDs: []string{"calendar.down"}, Start: now, End: now.Add(time.Hour)})
	assert.ErrorIs(t, err, boom)

	_, err = r.Query(context.Background(), Request{EntityIDs: []string{"calendar.nope"}, Start: now, End: now.Add(time.Hour)})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.Query(context.Background(), Request{Start: now, End: now.Add(-time.Hour)})
	assert.Error(t, err)
}
