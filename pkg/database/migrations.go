package database

import (
	"database/sql"
	"fmt"
)

// Migration represents one versioned schema change
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// ARCHITECTURAL DISCOVERY: Migrations embedded in the binary keep deployment
// self-contained; ordering is by slice position, tracked in schema_migrations
var migrations = []Migration{
	{
		Version:     "001",
		Description: "create goals table",
		SQL: `
			CREATE TABLE IF NOT EXISTS goals (
				id          TEXT PRIMARY KEY,
				session_id  TEXT NOT NULL,
				goal_type   TEXT NOT NULL,
				target      TEXT NOT NULL,
				current     TEXT NOT NULL,
				status      TEXT NOT NULL DEFAULT 'active',
				phase       TEXT NOT NULL DEFAULT 'created',
				action_plan TEXT NOT NULL DEFAULT '[]',
				created_at  DATETIME NOT NULL,
				updated_at  DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_goals_session ON goals(session_id);
			CREATE INDEX IF NOT EXISTS idx_goals_status ON goals(status);
		`,
	},
	{
		Version:     "002",
		Description: "create interventions table",
		SQL: `
			CREATE TABLE IF NOT EXISTS interventions (
				id          TEXT PRIMARY KEY,
				goal_id     TEXT,
				type        TEXT NOT NULL,
				reason      TEXT NOT NULL,
				status      TEXT NOT NULL DEFAULT 'pending',
				choice      TEXT,
				resolved_by TEXT,
				created_at  DATETIME NOT NULL,
				resolved_at DATETIME
			);
			CREATE INDEX IF NOT EXISTS idx_interventions_status ON interventions(status);
			CREATE INDEX IF NOT EXISTS idx_interventions_goal ON interventions(goal_id);
		`,
	},
	{
		Version:     "003",
		Description: "create goal_logs table",
		SQL: `
			CREATE TABLE IF NOT EXISTS goal_logs (
				id         TEXT PRIMARY KEY,
				goal_id    TEXT NOT NULL,
				level      TEXT NOT NULL DEFAULT 'info',
				message    TEXT NOT NULL,
				created_at DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_goal_logs_goal ON goal_logs(goal_id, created_at);
		`,
	},
}

// MigrationManager applies pending migrations against a database
type MigrationManager struct {
	db *sql.DB
}

// NewMigrationManager creates a new migration manager
func NewMigrationManager(db *sql.DB) *MigrationManager {
	return &MigrationManager{db: db}
}

// ApplyMigrations applies all pending migrations in order.
// FUNCTIONAL DISCOVERY: Each migration runs in its own transaction so a
// failure leaves the schema at a known version
func (m *MigrationManager) ApplyMigrations() error {
	if err := m.createMigrationTable(); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	applied, err := m.appliedVersions()
	if err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}

	for _, migration := range migrations {
		if applied[migration.Version] {
			continue
		}
		if err := m.applyMigration(migration); err != nil {
			return fmt.Errorf("failed to apply migration %s (%s): %w",
				migration.Version, migration.Description, err)
		}
	}

	return nil
}

// ValidateSchema ensures the database matches the expected structure
func (m *MigrationManager) ValidateSchema() error {
	requiredTables := []string{"goals", "interventions", "goal_logs"}
	for _, table := range requiredTables {
		exists, err := m.tableExists(table)
		if err != nil {
			return fmt.Errorf("failed to check table %s: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("required table %s does not exist", table)
		}
	}
	return nil
}

func (m *MigrationManager) createMigrationTable() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func (m *MigrationManager) appliedVersions() (map[string]bool, error) {
	rows, err := m.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

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

func (m *MigrationManager) tableExists(name string) (bool, error) {
	var count int
	err := m.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name,
	).Scan(&count)
	return count > 0, err
}
