package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"
)

// SourceKind selects the backend of a calendar source.
type SourceKind string

const (
	SourceICS    SourceKind = "ics"
	SourceGoogle SourceKind = "google"
)

// SourceConfig describes a single calendar source that entries may select
// by ID.
type SourceConfig struct {
	// ID is the identifier entries refer to, e.g. "calendar.family".
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label shown in the UI.
	Name string     `yaml:"name" json:"name"`
	Kind SourceKind `yaml:"kind" json:"kind"`

	// URL is the ICS subscription endpoint (kind: ics).
	URL string `yaml:"url,omitempty" json:"url,omitempty"`

	// CalendarID, CredentialsFile and TokenFile configure a Google
	// Calendar source (kind: google).
	CalendarID      string `yaml:"calendar_id,omitempty" json:"calendar_id,omitempty"`
	CredentialsFile string `yaml:"credentials_file,omitempty" json:"credentials_file,omitempty"`
	TokenFile       string `yaml:"token_file,omitempty" json:"token_file,omitempty"`
}

// EntryConfig is one configured calendar-events instance.
type EntryConfig struct {
	ID      string   `yaml:"id" json:"id"`
	Title   string   `yaml:"title" json:"title"`
	Options Settings `yaml:"options" json:"options"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// SnapshotConfig controls the headless-browser capture of markdown previews.
type SnapshotConfig struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone events are displayed in.
	Timezone string `yaml:"timezone" json:"timezone"`

	// Language is the host language used when an entry has no
	// format_language of its own.
	Language string `yaml:"language" json:"language"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// RefreshCron is the cron spec driving every entry's refresh cycle.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// DataDir holds the advisory database, ICS cache and snapshots.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	Sources []SourceConfig `yaml:"sources" json:"sources"`
	Entries []EntryConfig  `yaml:"entries" json:"entries"`

	Snapshot SnapshotConfig `yaml:"snapshot" json:"snapshot"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen      = "127.0.0.1:8080"
	defaultTimezone    = "UTC"
	defaultLanguage    = "en"
	defaultRefreshCron = "@every 1m"
	defaultDataDir     = "./var"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      defaultListen,
		Timezone:    defaultTimezone,
		Language:    defaultLanguage,
		LogLevel:    "info",
		RefreshCron: defaultRefreshCron,
		DataDir:     defaultDataDir,
		Sources:     []SourceConfig{},
		Entries:     []EntryConfig{},
		Snapshot:    SnapshotConfig{Width: 800, Height: 600},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.Language == "" {
		c.Language = defaultLanguage
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.DataDir == "" {
		c.DataDir = defaultDataDir
	}
	if c.Sources == nil {
		c.Sources = []SourceConfig{}
	}
	for i := range c.Sources {
		if c.Sources[i].Kind == "" {
			c.Sources[i].Kind = SourceICS
		}
	}
	if c.Entries == nil {
		c.Entries = []EntryConfig{}
	}
	for i := range c.Entries {
		c.Entries[i].Options.Normalize()
	}
	if c.Snapshot.Width <= 0 {
		c.Snapshot.Width = 800
	}
	if c.Snapshot.Height <= 0 {
		c.Snapshot.Height = 600
	}
}

// Validate reports configuration mistakes that Normalize cannot repair.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Sources))
	for _, s := range c.Sources {
		if s.ID == "" {
			return errors.New("config: source without id")
		}
		if seen[s.ID] {
			return fmt.Errorf("config: duplicate source id %q", s.ID)
		}
		seen[s.ID] = true

		switch s.Kind {
		case SourceICS:
			if s.URL == "" {
				return fmt.Errorf("config: ics source %q has no url", s.ID)
			}
		case SourceGoogle:
			if s.CalendarID == "" || s.CredentialsFile == "" || s.TokenFile == "" {
				return fmt.Errorf("config: google source %q needs calendar_id, credentials_file and token_file", s.ID)
			}
		default:
			return fmt.Errorf("config: source %q has unknown kind %q", s.ID, s.Kind)
		}
	}
	return nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the YAML is decoded and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	cfg.Normalize()

	return cfg, nil
}

// Save writes the given configuration to path atomically with 0600
// permissions, creating the parent directory when needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}

	// atomic.WriteFile doesn't set permissions for new files.
	return os.Chmod(path, 0o600)
}
