package config

import (
	"errors"

	"gopkg.in/yaml.v3"
)

// Option keys as they appear in the entry options document and in config
// flow forms.
const (
	KeyName                   = "name"
	KeyCalendarEntityIDs      = "calendar_entity_ids"
	KeyDaysAhead              = "days_ahead"
	KeyMaxEvents              = "max_events"
	KeyRemoveRecurringEvents  = "remove_recurring_events"
	KeyShowEventAsTimeTo      = "show_event_as_time_to"
	KeyShowEndDate            = "show_end_date"
	KeyShowSummary            = "show_summary"
	KeyUseSummaryAsEntityName = "use_summary_as_entity_name"
	KeyFormatLanguage         = "format_language"
	KeyMDHeaderTemplate       = "md_header_template"
	KeyMDItemTemplate         = "md_item_template"
	KeyKeepEventsOnFailure    = "keep_events_on_failure"
)

// Bounds enforced on numeric options.
const (
	MinDaysAhead = 1
	MaxDaysAhead = 999
	MinMaxEvents = 1
	MaxMaxEvents = 20

	DefaultDaysAhead = 15
	DefaultMaxEvents = 5
)

const (
	DefaultMDHeaderTemplate = "### <ha-icon icon='mdi:calendar-blank-outline'></ha-icon> Calendar events\n"
	DefaultMDItemTemplate   = "- __{{ summary }}__ <br>_{{ formatted_event_time }}_\n"
)

// ErrNoCalendars is returned when an entry selects no calendar sources.
var ErrNoCalendars = errors.New("no calendar sources selected")

// Settings are the user-chosen options of one entry.
type Settings struct {
	Calendars              []string `yaml:"calendar_entity_ids" json:"calendar_entity_ids"`
	DaysAhead              int      `yaml:"days_ahead" json:"days_ahead"`
	MaxEvents              int      `yaml:"max_events" json:"max_events"`
	RemoveRecurringEvents  bool     `yaml:"remove_recurring_events" json:"remove_recurring_events"`
	ShowEventAsTimeTo      bool     `yaml:"show_event_as_time_to" json:"show_event_as_time_to"`
	ShowEndDate            bool     `yaml:"show_end_date" json:"show_end_date"`
	ShowSummary            bool     `yaml:"show_summary" json:"show_summary"`
	UseSummaryAsEntityName bool     `yaml:"use_summary_as_entity_name" json:"use_summary_as_entity_name"`
	FormatLanguage         string   `yaml:"format_language" json:"format_language"`
	MDHeaderTemplate       string   `yaml:"md_header_template" json:"md_header_template"`
	MDItemTemplate         string   `yaml:"md_item_template" json:"md_item_template"`

	// KeepEventsOnFailure keeps the previous list when a fetch fails
	// instead of clearing it.
	KeepEventsOnFailure bool `yaml:"keep_events_on_failure" json:"keep_events_on_failure"`
}

// DefaultSettings mirrors the defaults offered by the config flow.
func DefaultSettings() Settings {
	return Settings{
		Calendars:             []string{},
		DaysAhead:             DefaultDaysAhead,
		MaxEvents:             DefaultMaxEvents,
		RemoveRecurringEvents: true,
		ShowSummary:           true,
		MDHeaderTemplate:      DefaultMDHeaderTemplate,
		MDItemTemplate:        DefaultMDItemTemplate,
	}
}

// UnmarshalYAML starts from DefaultSettings so that keys missing from the
// file keep their defaults, including the ones that default to true.
func (s *Settings) UnmarshalYAML(value *yaml.Node) error {
	type plain Settings
	p := plain(DefaultSettings())
	if err := value.Decode(&p); err != nil {
		return err
	}
	*s = Settings(p)
	return nil
}

// Normalize clamps numeric options into their bounds and fills empty
// templates.
func (s *Settings) Normalize() {
	if s.Calendars == nil {
		s.Calendars = []string{}
	}
	s.DaysAhead = clamp(s.DaysAhead, MinDaysAhead, MaxDaysAhead, DefaultDaysAhead)
	s.MaxEvents = clamp(s.MaxEvents, MinMaxEvents, MaxMaxEvents, DefaultMaxEvents)
	if s.MDHeaderTemplate == "" {
		s.MDHeaderTemplate = DefaultMDHeaderTemplate
	}
	if s.MDItemTemplate == "" {
		s.MDItemTemplate = DefaultMDItemTemplate
	}
}

// Validate reports a configuration error that blocks entry creation.
func (s Settings) Validate() error {
	if len(s.Calendars) == 0 {
		return ErrNoCalendars
	}
	return nil
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	out := s
	out.Calendars = append([]string(nil), s.Calendars...)
	return out
}

func clamp(v, lo, hi, def int) int {
	if v == 0 {
		return def
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
