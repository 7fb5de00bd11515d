package flow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calevents/internal/config"
)

type fakeHost struct {
	created  map[string]config.Settings
	titles   map[string]string
	updated  map[string]config.Settings
	language string
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		created:  map[string]config.Settings{},
		titles:   map[string]string{},
		updated:  map[string]config.Settings{},
		language: "da",
	}
}

func (h *fakeHost) CreateEntry(_ context.Context, title string, s config.Settings) (string, error) {
	id := "entry-" + title
	h.created[id] = s
	h.titles[id] = title
	return id, nil
}

func (h *fakeHost) UpdateEntryOptions(_ context.Context, id string, s config.Settings) error {
	h.updated[id] = s
	return nil
}

func (h *fakeHost) EntryOptions(id string) (string, config.Settings, error) {
	s, ok := h.created[id]
	if !ok {
		return "", config.Settings{}, errors.New("no such entry")
	}
	return h.titles[id], s, nil
}

func (h *fakeHost) SourceIDs() []string { return []string{"calendar.home", "calendar.work"} }
func (h *fakeHost) Language() string    { return h.language }

func field(t *testing.T, res Result, name string) Field {
	t.Helper()
	for _, f := range res.Fields {
		if f.Name == name {
			return f
		}
	}
	t.Fatalf("field %s not in step %s", name, res.StepID)
	return Field{}
}

func TestUserFlow(t *testing.T) {
	host := newFakeHost()
	m := NewManager(host)
	ctx := context.Background()

	res, err := m.StartUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, ResultForm, res.Type)
	assert.Equal(t, StepUser, res.StepID)
	assert.False(t, res.LastStep)
	assert.Equal(t, 15, field(t, res, config.KeyDaysAhead).Default)
	assert.Equal(t, []string{"calendar.home", "calendar.work"}, field(t, res, config.KeyCalendarEntityIDs).Options)

	res, err = m.Submit(ctx, res.FlowID, map[string]any{
		config.KeyName:              "Upcoming",
		config.KeyDaysAhead:         "30",
		config.KeyMaxEvents:         float64(50),
		config.KeyCalendarEntityIDs: []any{},
	})
	require.NoError(t, err)
	assert.Equal(t, StepUser, res.StepID)
	assert.Equal(t, map[string]string{config.KeyCalendarEntityIDs: ErrMissingSelection}, res.Errors)
	assert.Equal(t, "Upcoming", field(t, res, config.KeyName).Default, "form is prefilled from input")
	assert.Equal(t, 20, field(t, res, config.KeyMaxEvents).Default, "numbers are clamped")

	res, err = m.Submit(ctx, res.FlowID, map[string]any{
		config.KeyName:                  "Upcoming",
		config.KeyDaysAhead:             30.0,
		config.KeyMaxEvents:             3.0,
		config.KeyRemoveRecurringEvents: false,
		config.KeyCalendarEntityIDs:     []any{"calendar.work"},
	})
	require.NoError(t, err)
	assert.Equal(t, StepUserFormat, res.StepID)
	assert.True(t, res.LastStep)
	assert.Empty(t, res.Errors)
	assert.Equal(t, "da", field(t, res, config.KeyFormatLanguage).Default)
	assert.Equal(t, config.DefaultMDItemTemplate, field(t, res, config.KeyMDItemTemplate).Default)

	res, err = m.Submit(ctx, res.FlowID, map[string]any{
		config.KeyShowEventAsTimeTo: true,
		config.KeyShowEndDate:       "yes please",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{config.KeyShowEndDate: ErrInvalidValue}, res.Errors)

	res, err = m.Submit(ctx, res.FlowID, map[string]any{
		config.KeyShowEventAsTimeTo: true,
		config.KeyShowEndDate:       "true",
		config.KeyFormatLanguage:    "en",
	})
	require.NoError(t, err)
	assert.Equal(t, ResultCreateEntry, res.Type)
	assert.Equal(t, "entry-Upcoming", res.EntryID)
	assert.Equal(t, "Upcoming", res.Title)

	got := host.created["entry-Upcoming"]
	assert.Equal(t, []string{"calendar.work"}, got.Calendars)
	assert.Equal(t, 30, got.DaysAhead)
	assert.Equal(t, 3, got.MaxEvents)
	assert.False(t, got.RemoveRecurringEvents)
	assert.True(t, got.ShowEventAsTimeTo)
	assert.True(t, got.ShowEndDate)
	assert.True(t, got.ShowSummary)
	assert.Equal(t, "en", got.FormatLanguage)

	_, err = m.Submit(ctx, res.FlowID, map[string]any{})
	assert.ErrorIs(t, err, ErrUnknownFlow, "finished flows are dropped")
}

func TestOptionsFlow(t *testing.T) {
	host := newFakeHost()
	existing := config.DefaultSettings()
	existing.Calendars = []string{"calendar.home"}
	existing.MaxEvents = 7
	host.created["e1"] = existing
	host.titles["e1"] = "Home"

	m := NewManager(host)
	ctx := context.Background()

	_, err := m.StartOptions(ctx, "missing")
	assert.Error(t, err)

	res, err := m.StartOptions(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, StepInit, res.StepID)
	assert.Equal(t, 7, field(t, res, config.KeyMaxEvents).Default)
	assert.Equal(t, []string{"calendar.home"}, field(t, res, config.KeyCalendarEntityIDs).Default)

	// Re-showing the step keeps the flow.
	res, err = m.Submit(ctx, res.FlowID, nil)
	require.NoError(t, err)
	assert.Equal(t, StepInit, res.StepID)

	res, err = m.Submit(ctx, res.FlowID, map[string]any{config.KeyDaysAhead: 0})
	require.NoError(t, err)
	assert.Equal(t, StepInitFormat, res.StepID)

	res, err = m.Submit(ctx, res.FlowID, map[string]any{config.KeyShowSummary: false})
	require.NoError(t, err)
	assert.Equal(t, ResultCreateEntry, res.Type)
	assert.Equal(t, "e1", res.EntryID)

	got := host.updated["e1"]
	assert.Equal(t, []string{"calendar.home"}, got.Calendars)
	assert.Equal(t, config.MinDaysAhead, got.DaysAhead)
	assert.Equal(t, 7, got.MaxEvents)
	assert.False(t, got.ShowSummary)
}

func TestSubmitUnknownFlow(t *testing.T) {
	m := NewManager(newFakeHost())
	_, err := m.Submit(context.Background(), "nope", map[string]any{})
	assert.ErrorIs(t, err, ErrUnknownFlow)
}
