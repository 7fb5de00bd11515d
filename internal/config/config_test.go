package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	err := os.MkdirAll(filepath.Dir(path), 0o750)
	require.NoError(t, err)
	err = os.WriteFile(path, []byte(content), 0o600)
	require.NoError(t, err)
}

func TestLoadCreatesDefaultsOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, defaultListen, cfg.Listen)
	assert.Equal(t, "@every 1m", cfg.RefreshCron)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadKeepsTrueDefaultsForMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, `
timezone: Europe/Copenhagen
sources:
  - id: calendar.family
    url: https://example.com/family.ics
entries:
  - id: e1
    title: Family
    options:
      calendar_entity_ids: [calendar.family]
      max_events: 50
      show_summary: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Len(t, cfg.Sources, 1)
	assert.Equal(t, SourceICS, cfg.Sources[0].Kind)

	require.Len(t, cfg.Entries, 1)
	opts := cfg.Entries[0].Options
	assert.Equal(t, []string{"calendar.family"}, opts.Calendars)
	assert.True(t, opts.RemoveRecurringEvents, "missing key keeps the true default")
	assert.False(t, opts.ShowSummary)
	assert.Equal(t, MaxMaxEvents, opts.MaxEvents, "clamped")
	assert.Equal(t, DefaultDaysAhead, opts.DaysAhead)
	assert.Equal(t, DefaultMDItemTemplate, opts.MDItemTemplate)
}

func TestValidateSources(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sources = []SourceConfig{
		{ID: "a", Kind: SourceICS, URL: "https://x/a.ics"},
		{ID: "a", Kind: SourceICS, URL: "https://x/b.ics"},
	}
	assert.ErrorContains(t, cfg.Validate(), "duplicate source id")

	cfg.Sources = []SourceConfig{{ID: "g", Kind: SourceGoogle}}
	assert.ErrorContains(t, cfg.Validate(), "google source")

	cfg.Sources = []SourceConfig{{ID: "x", Kind: "caldav"}}
	assert.ErrorContains(t, cfg.Validate(), "unknown kind")
}

func TestSettingsValidate(t *testing.T) {
	s := DefaultSettings()
	assert.ErrorIs(t, s.Validate(), ErrNoCalendars)

	s.Calendars = []string{"calendar.a"}
	assert.NoError(t, s.Validate())
}

func TestStorePersistsEntryMutations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	store := NewStore(path, DefaultConfig())

	opts := DefaultSettings()
	opts.Calendars = []string{"calendar.a"}
	require.NoError(t, store.AddEntry(EntryConfig{ID: "e1", Title: "Home", Options: opts}))

	opts.ShowEventAsTimeTo = true
	require.NoError(t, store.UpdateEntrySettings("e1", opts))

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Len(t, reloaded.Entries, 1)
	assert.True(t, reloaded.Entries[0].Options.ShowEventAsTimeTo)

	err = store.UpdateEntrySettings("missing", opts)
	assert.ErrorIs(t, err, ErrEntryNotFound)

	require.NoError(t, store.RemoveEntry("e1"))
	assert.Empty(t, store.Entries())
}

func TestStoreRejectsEntryWithoutCalendars(t *testing.T) {
	store := NewStore("", nil)
	err := store.AddEntry(EntryConfig{ID: "e1", Title: "Empty", Options: DefaultSettings()})
	assert.ErrorIs(t, err, ErrNoCalendars)
}

func TestStoreReturnsCopies(t *testing.T) {
	store := NewStore("", nil)
	opts := DefaultSettings()
	opts.Calendars = []string{"calendar.a"}
	require.NoError(t, store.AddEntry(EntryConfig{ID: "e1", Options: opts}))

	e, err := store.Entry("e1")
	require.NoError(t, err)
	e.Options.Calendars[0] = "mutated"

	again, err := store.Entry("e1")
	require.NoError(t, err)
	assert.Equal(t, "calendar.a", again.Options.Calendars[0])
}
