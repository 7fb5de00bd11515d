package flow

import (
	"fmt"
	"strconv"
	"strings"

	"calevents/internal/config"
)

type FieldType string

const (
	FieldText      FieldType = "text"
	FieldMultiline FieldType = "multiline"
	FieldNumber    FieldType = "number"
	FieldBoolean   FieldType = "boolean"
	FieldEntities  FieldType = "entities"
	FieldLanguage  FieldType = "language"
)

// Field describes one input of a form step.
type Field struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
	Default  any       `json:"default"`
	Min      *int      `json:"min,omitempty"`
	Max      *int      `json:"max,omitempty"`
	Options  []string  `json:"options,omitempty"`
}

func intPtr(v int) *int { return &v }

// Form errors.
const (
	ErrMissingSelection = "missing_selection"
	ErrInvalidValue     = "invalid_value"
)

// draft is the input collected so far by a flow.
type draft struct {
	name     string
	settings config.Settings
}

func nameFields(d draft) []Field {
	return []Field{
		{Name: config.KeyName, Type: FieldText, Required: true, Default: d.name},
	}
}

func optionFields(d draft) []Field {
	return []Field{
		{
			Name: config.KeyDaysAhead, Type: FieldNumber, Required: true,
			Default: d.settings.DaysAhead,
			Min:     intPtr(config.MinDaysAhead), Max: intPtr(config.MaxDaysAhead),
		},
		{
			Name: config.KeyMaxEvents, Type: FieldNumber, Required: true,
			Default: d.settings.MaxEvents,
			Min:     intPtr(config.MinMaxEvents), Max: intPtr(config.MaxMaxEvents),
		},
		{Name: config.KeyRemoveRecurringEvents, Type: FieldBoolean, Required: true, Default: d.settings.RemoveRecurringEvents},
	}
}

func entityFields(d draft, sources []string) []Field {
	return []Field{
		{
			Name: config.KeyCalendarEntityIDs, Type: FieldEntities, Required: true,
			Default: append([]string{}, d.settings.Calendars...),
			Options: sources,
		},
	}
}

func formatFields(d draft, languages []string) []Field {
	s := d.settings
	return []Field{
		{Name: config.KeyShowEventAsTimeTo, Type: FieldBoolean, Required: true, Default: s.ShowEventAsTimeTo},
		{Name: config.KeyShowEndDate, Type: FieldBoolean, Required: true, Default: s.ShowEndDate},
		{Name: config.KeyShowSummary, Type: FieldBoolean, Required: true, Default: s.ShowSummary},
		{Name: config.KeyUseSummaryAsEntityName, Type: FieldBoolean, Required: true, Default: s.UseSummaryAsEntityName},
		{Name: config.KeyFormatLanguage, Type: FieldLanguage, Required: true, Default: s.FormatLanguage, Options: languages},
		{Name: config.KeyMDHeaderTemplate, Type: FieldMultiline, Default: s.MDHeaderTemplate},
		{Name: config.KeyMDItemTemplate, Type: FieldMultiline, Default: s.MDItemTemplate},
	}
}

// apply copies the values of fields present in input into d. Values that
// cannot be coerced are reported per field and leave d unchanged for that
// field.
func (d *draft) apply(fields []Field, input map[string]any) map[string]string {
	errs := map[string]string{}
	for _, f := range fields {
		raw, ok := input[f.Name]
		if !ok {
			continue
		}
		if err := d.set(f, raw); err != nil {
			errs[f.Name] = ErrInvalidValue
		}
	}
	return errs
}

func (d *draft) set(f Field, raw any) error {
	switch f.Type {
	case FieldNumber:
		n, err := toInt(raw)
		if err != nil {
			return err
		}
		if f.Min != nil && n < *f.Min {
			n = *f.Min
		}
		if f.Max != nil && n > *f.Max {
			n = *f.Max
		}
		return d.setInt(f.Name, n)
	case FieldBoolean:
		b, err := toBool(raw)
		if err != nil {
			return err
		}
		return d.setBool(f.Name, b)
	case FieldEntities:
		ids, err := toStrings(raw)
		if err != nil {
			return err
		}
		d.settings.Calendars = ids
		return nil
	default:
		s, ok := raw.(string)
		if !ok {
			return fmt.Errorf("%s: want string, got %T", f.Name, raw)
		}
		return d.setString(f.Name, s)
	}
}

func (d *draft) setInt(name string, v int) error {
	switch name {
	case config.KeyDaysAhead:
		d.settings.DaysAhead = v
	case config.KeyMaxEvents:
		d.settings.MaxEvents = v
	default:
		return fmt.Errorf("unknown number field %s", name)
	}
	return nil
}

func (d *draft) setBool(name string, v bool) error {
	s := &d.settings
	switch name {
	case config.KeyRemoveRecurringEvents:
		s.RemoveRecurringEvents = v
	case config.KeyShowEventAsTimeTo:
		s.ShowEventAsTimeTo = v
	case config.KeyShowEndDate:
		s.ShowEndDate = v
	case config.KeyShowSummary:
		s.ShowSummary = v
	case config.KeyUseSummaryAsEntityName:
		s.UseSummaryAsEntityName = v
	default:
		return fmt.Errorf("unknown boolean field %s", name)
	}
	return nil
}

func (d *draft) setString(name, v string) error {
	switch name {
	case config.KeyName:
		d.name = strings.TrimSpace(v)
	case config.KeyFormatLanguage:
		d.settings.FormatLanguage = strings.TrimSpace(v)
	case config.KeyMDHeaderTemplate:
		d.settings.MDHeaderTemplate = v
	case config.KeyMDItemTemplate:
		d.settings.MDItemTemplate = v
	default:
		return fmt.Errorf("unknown text field %s", name)
	}
	return nil
}

// toInt accepts JSON numbers and numeric strings. Fractions are truncated.
func toInt(raw any) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, err
		}
		return int(f), nil
	default:
		return 0, fmt.Errorf("want number, got %T", raw)
	}
}

func toBool(raw any) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(v))
	default:
		return false, fmt.Errorf("want boolean, got %T", raw)
	}
}

func toStrings(raw any) ([]string, error) {
	switch v := raw.(type) {
	case nil:
		return []string{}, nil
	case []string:
		return append([]string{}, v...), nil
	case string:
		if strings.TrimSpace(v) == "" {
			return []string{}, nil
		}
		return []string{strings.TrimSpace(v)}, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("want string list, got %T item", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("want string list, got %T", raw)
	}
}
