package entry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"calevents/internal/config"
	appLog "calevents/internal/log"
)

// Manager owns every running entry and keeps the config store in sync with
// them.
type Manager struct {
	deps Deps

	mu      sync.RWMutex
	entries map[string]*Entry
}

func NewManager(deps Deps) *Manager {
	return &Manager{deps: deps.withDefaults(), entries: make(map[string]*Entry)}
}

// Start sets up every stored entry. An entry failing setup is logged and
// skipped.
func (m *Manager) Start(ctx context.Context) error {
	if m.deps.Store == nil {
		return fmt.Errorf("entry manager: no config store")
	}
	for _, cfg := range m.deps.Store.Entries() {
		if _, err := m.setup(ctx, cfg); err != nil {
			appLog.Error("entry setup failed", err, "entry", cfg.ID, "title", cfg.Title)
		}
	}
	return nil
}

func (m *Manager) setup(ctx context.Context, cfg config.EntryConfig) (*Entry, error) {
	e := New(cfg, m.deps)
	if err := e.Setup(ctx); err != nil {
		e.Teardown()
		return nil, err
	}

	m.mu.Lock()
	old := m.entries[cfg.ID]
	m.entries[cfg.ID] = e
	m.mu.Unlock()

	if old != nil {
		old.Teardown()
	}
	return e, nil
}

// Add stores a new entry under a fresh id and sets it up.
func (m *Manager) Add(ctx context.Context, title string, settings config.Settings) (*Entry, error) {
	cfg := config.EntryConfig{
		ID:      uuid.NewString(),
		Title:   title,
		Options: settings.Clone(),
	}
	if err := m.deps.Store.AddEntry(cfg); err != nil {
		return nil, err
	}
	stored, err := m.deps.Store.Entry(cfg.ID)
	if err != nil {
		return nil, err
	}
	appLog.Info("entry created", "entry", cfg.ID, "title", title)
	return m.setup(ctx, stored)
}

// Get returns a running entry.
func (m *Manager) Get(id string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}

// List returns the running entries ordered by title, then id.
func (m *Manager) List() []*Entry {
	m.mu.RLock()
	out := make([]*Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].title != out[j].title {
			return out[i].title < out[j].title
		}
		return out[i].id < out[j].id
	})
	return out
}

// UpdateOptions replaces the stored options of an entry and reloads it.
func (m *Manager) UpdateOptions(ctx context.Context, id string, settings config.Settings) (*Entry, error) {
	if _, err := m.Get(id); err != nil {
		return nil, err
	}
	if err := m.deps.Store.UpdateEntrySettings(id, settings); err != nil {
		return nil, err
	}
	return m.Reload(ctx, id)
}

// Reload tears an entry down and sets it up again from the stored config.
// Sources dropped as missing are selected again.
func (m *Manager) Reload(ctx context.Context, id string) (*Entry, error) {
	cfg, err := m.deps.Store.Entry(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return m.setup(ctx, cfg)
}

// Remove tears the entry down and deletes it with its advisories.
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	e, ok := m.entries[id]
	delete(m.entries, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e.Teardown()

	if err := m.deps.Store.RemoveEntry(id); err != nil {
		return err
	}
	if m.deps.Issues != nil {
		if err := m.deps.Issues.DeleteEntry(ctx, id); err != nil {
			appLog.Warn("clearing entry issues failed", "entry", id, "error", err.Error())
		}
	}
	appLog.Info("entry removed", "entry", id)
	return nil
}

// Stop tears down every entry.
func (m *Manager) Stop() {
	m.mu.Lock()
	entries := m.entries
	m.entries = make(map[string]*Entry)
	m.mu.Unlock()

	for _, e := range entries {
		e.Teardown()
	}
}

// CreateEntry adds an entry and returns its id.
func (m *Manager) CreateEntry(ctx context.Context, title string, settings config.Settings) (string, error) {
	e, err := m.Add(ctx, title, settings)
	if err != nil {
		return "", err
	}
	return e.ID(), nil
}

// UpdateEntryOptions replaces the options of a running entry.
func (m *Manager) UpdateEntryOptions(ctx context.Context, id string, settings config.Settings) error {
	_, err := m.UpdateOptions(ctx, id, settings)
	return err
}

// EntryOptions returns the stored title and options of an entry.
func (m *Manager) EntryOptions(id string) (string, config.Settings, error) {
	cfg, err := m.deps.Store.Entry(id)
	if err != nil {
		return "", config.Settings{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return cfg.Title, cfg.Options, nil
}

// SourceIDs lists the registered calendar sources.
func (m *Manager) SourceIDs() []string {
	return m.deps.Registry.IDs()
}

// Language is the host language.
func (m *Manager) Language() string {
	return m.deps.Language
}
