// Package issues keeps the advisories shown to the user when an entry
// references something that no longer exists, such as a removed calendar
// source.
package issues

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const DriverName = "sqlite"

// Translation keys.
const (
	KeyMissingEntity = "missing_entity"
)

type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

var ErrNotFound = errors.New("issue not found")

// Issue is one advisory. ID is stable per cause so that reporting the same
// problem twice updates the existing row.
type Issue struct {
	ID             string            `json:"id"`
	EntryID        string            `json:"entry_id"`
	Severity       Severity          `json:"severity"`
	Fixable        bool              `json:"is_fixable"`
	TranslationKey string            `json:"translation_key"`
	Placeholders   map[string]string `json:"translation_placeholders"`
	CreatedAt      time.Time         `json:"created_at"`
}

// MissingEntityID is the issue id for source entityID missing from entry.
func MissingEntityID(entryID, entityID string) string {
	return KeyMissingEntity + "_" + entryID + "_" + entityID
}

// MissingEntity builds the advisory for a selected source that does not
// resolve. helper is the display name of the entry.
func MissingEntity(entryID, helper, entityID string) Issue {
	return Issue{
		ID:             MissingEntityID(entryID, entityID),
		EntryID:        entryID,
		Severity:       SeverityWarning,
		TranslationKey: KeyMissingEntity,
		Placeholders: map[string]string{
			"entity":                 entityID,
			"calendar_events_helper": helper,
		},
	}
}

type row struct {
	ID             string `db:"id"`
	EntryID        string `db:"entry_id"`
	Severity       string `db:"severity"`
	Fixable        bool   `db:"is_fixable"`
	TranslationKey string `db:"translation_key"`
	Placeholders   string `db:"placeholders"`
	CreatedAt      string `db:"created_at"`
}

func (r row) convert() (Issue, error) {
	is := Issue{
		ID:             r.ID,
		EntryID:        r.EntryID,
		Severity:       Severity(r.Severity),
		Fixable:        r.Fixable,
		TranslationKey: r.TranslationKey,
	}
	if r.Placeholders != "" {
		if err := json.Unmarshal([]byte(r.Placeholders), &is.Placeholders); err != nil {
			return Issue{}, fmt.Errorf("issue %s placeholders: %w", r.ID, err)
		}
	}
	t, err := time.Parse(time.RFC3339Nano, r.CreatedAt)
	if err != nil {
		return Issue{}, fmt.Errorf("issue %s created_at: %w", r.ID, err)
	}
	is.CreatedAt = t
	return is, nil
}

// Store persists issues in SQLite.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// Open opens (or creates) the database at path. ":memory:" is accepted for
// tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, fmt.Errorf("issues: open %s: %w", path, err)
	}
	if path == ":memory:" {
		// Every connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}
	s, err := NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStore wraps db and runs the migrations.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: sqlx.NewDb(db, DriverName), now: time.Now}
	if err := s.RunMigrations(); err != nil {
		return nil, fmt.Errorf("issues: running migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Report inserts is or refreshes the existing issue with the same id. The
// original creation time is kept.
func (s *Store) Report(ctx context.Context, is Issue) error {
	if is.ID == "" {
		return errors.New("issues: report without id")
	}
	placeholders, err := json.Marshal(is.Placeholders)
	if err != nil {
		return fmt.Errorf("issues: encode placeholders: %w", err)
	}
	if is.Severity == "" {
		is.Severity = SeverityWarning
	}
	created := is.CreatedAt
	if created.IsZero() {
		created = s.now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO issues (id, entry_id, severity, is_fixable, translation_key, placeholders, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			severity = excluded.severity,
			is_fixable = excluded.is_fixable,
			translation_key = excluded.translation_key,
			placeholders = excluded.placeholders;
	`, is.ID, is.EntryID, string(is.Severity), is.Fixable, is.TranslationKey,
		string(placeholders), created.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("issues: report %s: %w", is.ID, err)
	}
	return nil
}

// List returns all issues, oldest first.
func (s *Store) List(ctx context.Context) ([]Issue, error) {
	var rows []row
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, entry_id, severity, is_fixable, translation_key, placeholders, created_at
		FROM issues
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("issues: list: %w", err)
	}
	return convertRows(rows)
}

// ListEntry returns the issues of one entry.
func (s *Store) ListEntry(ctx context.Context, entryID string) ([]Issue, error) {
	var rows []row
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, entry_id, severity, is_fixable, translation_key, placeholders, created_at
		FROM issues
		WHERE entry_id = ?
		ORDER BY created_at, id
	`, entryID)
	if err != nil {
		return nil, fmt.Errorf("issues: list entry %s: %w", entryID, err)
	}
	return convertRows(rows)
}

func convertRows(rows []row) ([]Issue, error) {
	out := make([]Issue, 0, len(rows))
	for _, r := range rows {
		is, err := r.convert()
		if err != nil {
			return nil, err
		}
		out = append(out, is)
	}
	return out, nil
}

// Get returns one issue.
func (s *Store) Get(ctx context.Context, id string) (Issue, error) {
	var r row
	err := s.db.GetContext(ctx, &r, `
		SELECT id, entry_id, severity, is_fixable, translation_key, placeholders, created_at
		FROM issues
		WHERE id = ?
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Issue{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Issue{}, fmt.Errorf("issues: get %s: %w", id, err)
	}
	return r.convert()
}

// Dismiss deletes one issue.
func (s *Store) Dismiss(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM issues WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("issues: dismiss %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("issues: dismiss %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// DeleteEntry removes every issue of a removed entry.
func (s *Store) DeleteEntry(ctx context.Context, entryID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM issues WHERE entry_id = ?`, entryID)
	if err != nil {
		return fmt.Errorf("issues: delete entry %s: %w", entryID, err)
	}
	return nil
}
