// Package flow implements the multi-step forms that create an entry and
// edit its options.
//
// The user flow runs "user" (name, lookahead, source selection) then
// "user_format" (display options) and creates the entry. The options flow
// of an existing entry runs "init" then "init_format" and replaces the
// entry's options.
package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"calevents/internal/config"
	"calevents/internal/locale"
	appLog "calevents/internal/log"
)

var ErrUnknownFlow = errors.New("unknown flow")

// Steps.
const (
	StepUser       = "user"
	StepUserFormat = "user_format"
	StepInit       = "init"
	StepInitFormat = "init_format"
)

type Kind string

const (
	KindUser    Kind = "user"
	KindOptions Kind = "options"
)

type ResultType string

const (
	ResultForm        ResultType = "form"
	ResultCreateEntry ResultType = "create_entry"
)

// Result is either the next form to show or the finished entry.
type Result struct {
	Type     ResultType        `json:"type"`
	FlowID   string            `json:"flow_id"`
	Kind     Kind              `json:"kind"`
	StepID   string            `json:"step_id,omitempty"`
	Fields   []Field           `json:"data_schema,omitempty"`
	Errors   map[string]string `json:"errors,omitempty"`
	LastStep bool              `json:"last_step"`
	EntryID  string            `json:"entry_id,omitempty"`
	Title    string            `json:"title,omitempty"`
}

// Host is what a flow needs from the entry manager.
type Host interface {
	CreateEntry(ctx context.Context, title string, settings config.Settings) (string, error)
	UpdateEntryOptions(ctx context.Context, id string, settings config.Settings) error
	EntryOptions(id string) (title string, settings config.Settings, err error)
	SourceIDs() []string
	Language() string
}

// DefaultTTL is how long an untouched flow is kept.
const DefaultTTL = time.Hour

type state struct {
	mu sync.Mutex

	id      string
	kind    Kind
	entryID string
	step    string
	draft   draft
	touched time.Time
}

// Manager keeps the flows in progress.
type Manager struct {
	host Host
	now  func() time.Time
	ttl  time.Duration

	mu    sync.Mutex
	flows map[string]*state
}

func NewManager(host Host) *Manager {
	return &Manager{
		host:  host,
		now:   time.Now,
		ttl:   DefaultTTL,
		flows: make(map[string]*state),
	}
}

// StartUser begins a flow creating a new entry.
func (m *Manager) StartUser(ctx context.Context) (Result, error) {
	d := draft{settings: config.DefaultSettings()}
	d.settings.FormatLanguage = m.host.Language()

	st := m.add(KindUser, "", StepUser, d)
	return m.form(st, nil), nil
}

// StartOptions begins a flow editing the options of entryID, prefilled from
// its stored options.
func (m *Manager) StartOptions(ctx context.Context, entryID string) (Result, error) {
	title, settings, err := m.host.EntryOptions(entryID)
	if err != nil {
		return Result{}, err
	}
	st := m.add(KindOptions, entryID, StepInit, draft{name: title, settings: settings.Clone()})
	return m.form(st, nil), nil
}

func (m *Manager) add(kind Kind, entryID, step string, d draft) *state {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.expireLocked()
	st := &state{
		id:      uuid.NewString(),
		kind:    kind,
		entryID: entryID,
		step:    step,
		draft:   d,
		touched: m.now(),
	}
	m.flows[st.id] = st
	return st
}

func (m *Manager) expireLocked() {
	now := m.now()
	for id, st := range m.flows {
		if now.Sub(st.touched) > m.ttl {
			delete(m.flows, id)
		}
	}
}

// Abort drops a flow.
func (m *Manager) Abort(flowID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.flows, flowID)
}

// Submit handles input for the current step of flowID. A nil input shows
// the current step again.
func (m *Manager) Submit(ctx context.Context, flowID string, input map[string]any) (Result, error) {
	m.mu.Lock()
	m.expireLocked()
	st, ok := m.flows[flowID]
	if ok {
		st.touched = m.now()
	}
	m.mu.Unlock()
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownFlow, flowID)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if input == nil {
		return m.form(st, nil), nil
	}

	switch st.step {
	case StepUser, StepInit:
		next := st.draft
		next.settings = st.draft.settings.Clone()
		errs := next.apply(m.fields(st), input)
		if len(next.settings.Calendars) == 0 {
			errs[config.KeyCalendarEntityIDs] = ErrMissingSelection
		}
		if len(errs) > 0 {
			return m.formWith(st, next, errs), nil
		}
		st.draft = next
		if st.step == StepUser {
			st.step = StepUserFormat
		} else {
			st.step = StepInitFormat
		}
		return m.form(st, nil), nil

	case StepUserFormat, StepInitFormat:
		next := st.draft
		next.settings = st.draft.settings.Clone()
		if errs := next.apply(m.fields(st), input); len(errs) > 0 {
			return m.formWith(st, next, errs), nil
		}
		st.draft = next
		return m.finish(ctx, st)
	}
	return Result{}, fmt.Errorf("flow %s: unknown step %q", flowID, st.step)
}

func (m *Manager) finish(ctx context.Context, st *state) (Result, error) {
	settings := st.draft.settings.Clone()
	settings.Normalize()

	res := Result{Type: ResultCreateEntry, FlowID: st.id, Kind: st.kind, Title: st.draft.name}
	switch st.kind {
	case KindUser:
		id, err := m.host.CreateEntry(ctx, st.draft.name, settings)
		if err != nil {
			return Result{}, fmt.Errorf("flow %s: create entry: %w", st.id, err)
		}
		res.EntryID = id
	case KindOptions:
		if err := m.host.UpdateEntryOptions(ctx, st.entryID, settings); err != nil {
			return Result{}, fmt.Errorf("flow %s: update options: %w", st.id, err)
		}
		res.EntryID = st.entryID
	}

	m.Abort(st.id)
	appLog.Info("flow finished", "flow", st.id, "kind", string(st.kind), "entry", res.EntryID)
	return res, nil
}

func (m *Manager) fields(st *state) []Field {
	return m.fieldsFor(st.step, st.draft)
}

func (m *Manager) fieldsFor(step string, d draft) []Field {
	switch step {
	case StepUser:
		out := nameFields(d)
		out = append(out, optionFields(d)...)
		return append(out, entityFields(d, m.host.SourceIDs())...)
	case StepInit:
		return append(optionFields(d), entityFields(d, m.host.SourceIDs())...)
	default:
		return formatFields(d, locale.Supported())
	}
}

func (m *Manager) form(st *state, errs map[string]string) Result {
	return m.formWith(st, st.draft, errs)
}

// formWith renders the current step prefilled from d.
func (m *Manager) formWith(st *state, d draft, errs map[string]string) Result {
	if len(errs) == 0 {
		errs = nil
	}
	return Result{
		Type:     ResultForm,
		FlowID:   st.id,
		Kind:     st.kind,
		StepID:   st.step,
		Fields:   m.fieldsFor(st.step, d),
		Errors:   errs,
		LastStep: st.step == StepUserFormat || st.step == StepInitFormat,
	}
}
