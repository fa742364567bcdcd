package db

import (
	"database/sql"
	"fmt"
	"log"
	"time"
)

// Migration is a single versioned schema change.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		// Applied by InitTables; recorded here for version tracking only.
		SQL: "",
	},
	{
		Version:     2,
		Description: "Add search index on sender name",
		SQL: `
		CREATE INDEX IF NOT EXISTS idx_messages_sender_name ON messages(sender_name);
		`,
	},
}

// ApplyMigrations brings an existing archive up to the current schema.
func (m *SQLiteManager) ApplyMigrations() error {
	if err := m.createMigrationsTable(); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	currentVersion, err := m.getCurrentVersion()
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	applied := 0
	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}
		log.Printf("db: applying migration %d: %s", migration.Version, migration.Description)
		if err := m.applyMigration(migration); err != nil {
			return fmt.Errorf("applying migration %d: %w", migration.Version, err)
		}
		applied++
	}

	if applied > 0 {
		log.Printf("db: %d migration(s) applied", applied)
	}
	return nil
}

func (m *SQLiteManager) createMigrationsTable() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL
		)
	`)
	return err
}

func (m *SQLiteManager) getCurrentVersion() (int, error) {
	var version int
	err := m.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return 0, err
	}
	return version, nil
}

func (m *SQLiteManager) applyMigration(migration Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if migration.SQL != "" {
		if _, err := tx.Exec(migration.SQL); err != nil {
			return err
		}
	}

	_, err = tx.Exec(`
		INSERT INTO schema_migrations (version, description, applied_at)
		VALUES (?, ?, ?)
	`, migration.Version, migration.Description, time.Now())
	if err != nil {
		return err
	}

	return tx.Commit()
}
