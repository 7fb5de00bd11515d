package config

import (
	"errors"
	"fmt"
	"sync"
)

// ErrEntryNotFound is returned by Store methods addressing an unknown entry.
var ErrEntryNotFound = errors.New("entry not found")

// Store owns the loaded Config and writes every entry mutation back to
// disk. It is the per-entry settings store the config flow and the toggle
// action persist into.
type Store struct {
	path string

	mu  sync.RWMutex
	cfg *Config
}

// NewStore wraps an already loaded config. An empty path keeps changes in
// memory only.
func NewStore(path string, cfg *Config) *Store {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.Normalize()
	return &Store{path: path, cfg: cfg}
}

// Config returns a copy of the current host configuration.
func (s *Store) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := *s.cfg
	out.Sources = append([]SourceConfig(nil), s.cfg.Sources...)
	out.Entries = s.entriesLocked()
	return out
}

// Entries returns copies of all configured entries.
func (s *Store) Entries() []EntryConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entriesLocked()
}

func (s *Store) entriesLocked() []EntryConfig {
	out := make([]EntryConfig, len(s.cfg.Entries))
	for i, e := range s.cfg.Entries {
		out[i] = EntryConfig{ID: e.ID, Title: e.Title, Options: e.Options.Clone()}
	}
	return out
}

// Entry returns one entry by id.
func (s *Store) Entry(id string) (EntryConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.cfg.Entries {
		if e.ID == id {
			return EntryConfig{ID: e.ID, Title: e.Title, Options: e.Options.Clone()}, nil
		}
	}
	return EntryConfig{}, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
}

// AddEntry appends a new entry and persists the config.
func (s *Store) AddEntry(e EntryConfig) error {
	if e.ID == "" {
		return errors.New("config: entry without id")
	}
	e.Options.Normalize()
	if err := e.Options.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.cfg.Entries {
		if existing.ID == e.ID {
			return fmt.Errorf("config: duplicate entry id %q", e.ID)
		}
	}
	s.cfg.Entries = append(s.cfg.Entries, EntryConfig{ID: e.ID, Title: e.Title, Options: e.Options.Clone()})
	return s.saveLocked()
}

// UpdateEntrySettings replaces the options of an entry and persists the
// config.
func (s *Store) UpdateEntrySettings(id string, opts Settings) error {
	opts.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.cfg.Entries {
		if s.cfg.Entries[i].ID == id {
			s.cfg.Entries[i].Options = opts.Clone()
			return s.saveLocked()
		}
	}
	return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
}

// RemoveEntry deletes an entry and persists the config.
func (s *Store) RemoveEntry(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.cfg.Entries {
		if s.cfg.Entries[i].ID == id {
			s.cfg.Entries = append(s.cfg.Entries[:i], s.cfg.Entries[i+1:]...)
			return s.saveLocked()
		}
	}
	return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
}

func (s *Store) saveLocked() error {
	if s.path == "" {
		return nil
	}
	return Save(s.path, s.cfg)
}
