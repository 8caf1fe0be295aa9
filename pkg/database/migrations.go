package database

import (
	"database/sql"
	"fmt"
	"sort"
)

// Migration represents one schema migration step.
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// Migrations are compiled into the binary: the schema is small and a
// migrations directory is one more deployment artifact to lose.
var migrations = []Migration{
	{
		Version:     "001",
		Description: "initial_schema",
		SQL: `
			CREATE TABLE IF NOT EXISTS users (
				id TEXT PRIMARY KEY,
				username TEXT NOT NULL,
				current_chapter_level INTEGER NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);

			CREATE TABLE IF NOT EXISTS chapters (
				id TEXT PRIMARY KEY,
				level INTEGER NOT NULL UNIQUE,
				round_levels TEXT NOT NULL
			);

			CREATE TABLE IF NOT EXISTS chapter_sessions (
				id TEXT PRIMARY KEY,
				chapter_id TEXT NOT NULL REFERENCES chapters(id),
				user_id TEXT NOT NULL REFERENCES users(id),
				status TEXT NOT NULL CHECK (status IN ('in_progress', 'done')),
				current_round INTEGER NOT NULL DEFAULT 1,
				rounds TEXT NOT NULL DEFAULT '[]',
				version INTEGER NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);

			CREATE TABLE IF NOT EXISTS round_sessions (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL REFERENCES users(id),
				chapter_session_id TEXT NOT NULL REFERENCES chapter_sessions(id),
				level INTEGER NOT NULL,
				status TEXT NOT NULL CHECK (status IN ('in_progress', 'done')),
				score INTEGER NOT NULL DEFAULT 0,
				moves INTEGER NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);

			CREATE INDEX IF NOT EXISTS idx_chapter_sessions_user_status
				ON chapter_sessions(user_id, status);
			CREATE INDEX IF NOT EXISTS idx_chapter_sessions_user_chapter
				ON chapter_sessions(user_id, chapter_id);
			CREATE INDEX IF NOT EXISTS idx_round_sessions_chapter
				ON round_sessions(chapter_session_id);
		`,
	},
	{
		Version:     "002",
		Description: "reward_ledger",
		SQL: `
			CREATE TABLE IF NOT EXISTS transactions (
				id TEXT PRIMARY KEY,
				from_user TEXT NOT NULL,
				to_user TEXT NOT NULL,
				amount INTEGER NOT NULL,
				memo TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);

			CREATE TABLE IF NOT EXISTS achievements (
				user_id TEXT NOT NULL,
				name TEXT NOT NULL,
				value INTEGER NOT NULL DEFAULT 0,
				granted_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				PRIMARY KEY (user_id, name)
			);

			CREATE TABLE IF NOT EXISTS items (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL REFERENCES users(id),
				name TEXT NOT NULL,
				rarity TEXT NOT NULL,
				issued_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);

			CREATE INDEX IF NOT EXISTS idx_transactions_to_user
				ON transactions(to_user);
			CREATE INDEX IF NOT EXISTS idx_items_user
				ON items(user_id);
		`,
	},
}

// MigrationManager applies the built-in migration set.
type MigrationManager struct {
	db *sql.DB
}

// NewMigrationManager creates a new migration manager.
func NewMigrationManager(db *sql.DB) *MigrationManager {
	return &MigrationManager{db: db}
}

// ApplyMigrations applies all pending migrations in version order, each
// inside its own transaction.
func (m *MigrationManager) ApplyMigrations() error {
	if err := m.createMigrationTable(); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	applied, err := m.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	pending := make([]Migration, 0, len(migrations))
	for _, migration := range migrations {
		if !contains(applied, migration.Version) {
			pending = append(pending, migration)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].Version < pending[j].Version
	})

	for _, migration := range pending {
		if err := m.applyMigration(migration); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
		}
	}

	return nil
}

// createMigrationTable creates the migration tracking table.
func (m *MigrationManager) createMigrationTable() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// getAppliedMigrations returns already applied migration versions.
func (m *MigrationManager) getAppliedMigrations() ([]string, error) {
	rows, err := m.db.Query("SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var versions []string
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		versions = append(versions, version)
	}

	return versions, rows.Err()
}

// applyMigration applies a single migration within a transaction.
func (m *MigrationManager) applyMigration(migration Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(migration.SQL); err != nil {
		return err
	}

	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", migration.Version); err != nil {
		return err
	}

	return tx.Commit()
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
