package issues

func (s *Store) RunMigrations() error {
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS issues (
		id VARCHAR NOT NULL PRIMARY KEY,
		entry_id VARCHAR NOT NULL,
		severity VARCHAR NOT NULL,
		is_fixable BOOLEAN NOT NULL DEFAULT 0,
		translation_key VARCHAR NOT NULL,
		placeholders TEXT NOT NULL DEFAULT '{}',
		created_at VARCHAR NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS issues_entry_id ON issues (entry_id)`,
}
