package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	dbconfig "goalseek/pkg/database"
	"goalseek/pkg/interfaces"
	"goalseek/pkg/types"
)

// Manager implements the DatabaseManager interface over SQLite.
// ARCHITECTURAL DISCOVERY: All writes funnel through one goroutine; SQLite
// allows concurrent reads under WAL but contends badly on concurrent writers
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex // protects closed
}

// writeOperation represents a database write operation
type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager creates a new database manager
func NewManager(config *dbconfig.Config) (*Manager, error) {
	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// writeLoop processes all write operations in a single goroutine
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil {
				log.Printf("Database write failed, retrying: %v", err)
				err = op.operation(m.db) // Retry once
				if err != nil {
					log.Printf("Database write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-m.shutdown:
			log.Println("Database write loop shutting down")
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion
func (m *Manager) executeWrite(operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("database manager is closed")
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return fmt.Errorf("write operation timeout")
	case <-m.shutdown:
		return fmt.Errorf("database manager is shutting down")
	}
}

// CreateGoal inserts a new goal
func (m *Manager) CreateGoal(ctx context.Context, goal *types.Goal) error {
	return m.executeWrite(func(db *sql.DB) error {
		targetJSON, err := json.Marshal(goal.Target)
		if err != nil {
			return fmt.Errorf("failed to marshal goal target: %w", err)
		}
		currentJSON, err := json.Marshal(goal.Current)
		if err != nil {
			return fmt.Errorf("failed to marshal goal current: %w", err)
		}
		planJSON, err := json.Marshal(goal.ActionPlan)
		if err != nil {
			return fmt.Errorf("failed to marshal action plan: %w", err)
		}

		query := `
			INSERT INTO goals (id, session_id, goal_type, target, current, status, phase, action_plan, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err = db.ExecContext(ctx, query,
			goal.ID,
			goal.SessionID,
			goal.GoalType,
			string(targetJSON),
			string(currentJSON),
			goal.Status,
			goal.Phase,
			string(planJSON),
			goal.CreatedAt,
			goal.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert goal: %w", err)
		}

		return nil
	})
}

// GetGoal retrieves a goal by ID
func (m *Manager) GetGoal(ctx context.Context, goalID string) (*types.Goal, error) {
	query := `
		SELECT id, session_id, goal_type, target, current, status, phase, action_plan, created_at, updated_at
		FROM goals
		WHERE id = ?
	`

	row := m.db.QueryRowContext(ctx, query, goalID)

	goal, err := scanGoal(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrGoalNotFound
		}
		return nil, fmt.Errorf("failed to query goal: %w", err)
	}

	return goal, nil
}

// UpdateGoal persists the mutable fields of a goal
func (m *Manager) UpdateGoal(ctx context.Context, goal *types.Goal) error {
	return m.executeWrite(func(db *sql.DB) error {
		currentJSON, err := json.Marshal(goal.Current)
		if err != nil {
			return fmt.Errorf("failed to marshal goal current: %w", err)
		}
		planJSON, err := json.Marshal(goal.ActionPlan)
		if err != nil {
			return fmt.Errorf("failed to marshal action plan: %w", err)
		}

		query := `
			UPDATE goals
			SET current = ?, status = ?, phase = ?, action_plan = ?, updated_at = ?
			WHERE id = ?
		`
		res, err := db.ExecContext(ctx, query,
			string(currentJSON),
			goal.Status,
			goal.Phase,
			string(planJSON),
			goal.UpdatedAt,
			goal.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update goal: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check update result: %w", err)
		}
		if affected == 0 {
			return interfaces.ErrGoalNotFound
		}

		return nil
	})
}

// DeleteGoal removes a goal and its log entries
func (m *Manager) DeleteGoal(ctx context.Context, goalID string) error {
	return m.executeWrite(func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.ExecContext(ctx, "DELETE FROM goals WHERE id = ?", goalID)
		if err != nil {
			return fmt.Errorf("failed to delete goal: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check delete result: %w", err)
		}
		if affected == 0 {
			return interfaces.ErrGoalNotFound
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM goal_logs WHERE goal_id = ?", goalID); err != nil {
			return fmt.Errorf("failed to delete goal logs: %w", err)
		}

		if err = tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit goal deletion: %w", err)
		}

		return nil
	})
}

// ListGoals returns goals, newest first, optionally filtered by session ID
func (m *Manager) ListGoals(ctx context.Context, sessionID string) ([]*types.Goal, error) {
	query := `
		SELECT id, session_id, goal_type, target, current, status, phase, action_plan, created_at, updated_at
		FROM goals
	`
	var args []interface{}
	if sessionID != "" {
		query += " WHERE session_id = ?"
		args = append(args, sessionID)
	}
	query += " ORDER BY created_at DESC"

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query goals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var goals []*types.Goal

	for rows.Next() {
		goal, err := scanGoal(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan goal row: %w", err)
		}
		goals = append(goals, goal)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating goal rows: %w", err)
	}

	return goals, nil
}

// CreateIntervention inserts an intervention trail record
func (m *Manager) CreateIntervention(ctx context.Context, record *types.InterventionRecord) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO interventions (id, goal_id, type, reason, status, choice, resolved_by, created_at, resolved_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			record.ID,
			nullString(record.GoalID),
			record.Type,
			record.Reason,
			record.Status,
			nullString(record.Choice),
			nullString(record.ResolvedBy),
			record.CreatedAt,
			nullTime(record.ResolvedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert intervention: %w", err)
		}

		return nil
	})
}

// UpdateIntervention updates the resolution fields of an intervention record
func (m *Manager) UpdateIntervention(ctx context.Context, record *types.InterventionRecord) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `
			UPDATE interventions
			SET status = ?, choice = ?, resolved_by = ?, resolved_at = ?
			WHERE id = ?
		`
		res, err := db.ExecContext(ctx, query,
			record.Status,
			nullString(record.Choice),
			nullString(record.ResolvedBy),
			nullTime(record.ResolvedAt),
			record.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update intervention: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check update result: %w", err)
		}
		if affected == 0 {
			return interfaces.ErrInterventionNotFound
		}

		return nil
	})
}

// ListInterventions returns intervention records, newest first, optionally
// filtered by status
func (m *Manager) ListInterventions(ctx context.Context, status string) ([]*types.InterventionRecord, error) {
	query := `
		SELECT id, goal_id, type, reason, status, choice, resolved_by, created_at, resolved_at
		FROM interventions
	`
	var args []interface{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query interventions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*types.InterventionRecord

	for rows.Next() {
		var record types.InterventionRecord
		var goalID, choice, resolvedBy sql.NullString
		var resolvedAt sql.NullTime

		err := rows.Scan(
			&record.ID,
			&goalID,
			&record.Type,
			&record.Reason,
			&record.Status,
			&choice,
			&resolvedBy,
			&record.CreatedAt,
			&resolvedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan intervention row: %w", err)
		}

		record.GoalID = goalID.String
		record.Choice = choice.String
		record.ResolvedBy = resolvedBy.String
		if resolvedAt.Valid {
			record.ResolvedAt = resolvedAt.Time
		}

		records = append(records, &record)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating intervention rows: %w", err)
	}

	return records, nil
}

// CreateLog inserts a goal log entry
func (m *Manager) CreateLog(ctx context.Context, entry *types.GoalLog) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO goal_logs (id, goal_id, level, message, created_at)
			VALUES (?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			entry.ID,
			entry.GoalID,
			entry.Level,
			entry.Message,
			entry.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert goal log: %w", err)
		}

		return nil
	})
}

// ListLogsByGoal returns the log entries for a goal in chronological order
func (m *Manager) ListLogsByGoal(ctx context.Context, goalID string) ([]*types.GoalLog, error) {
	query := `
		SELECT id, goal_id, level, message, created_at
		FROM goal_logs
		WHERE goal_id = ?
		ORDER BY created_at ASC
	`

	rows, err := m.db.QueryContext(ctx, query, goalID)
	if err != nil {
		return nil, fmt.Errorf("failed to query goal logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*types.GoalLog

	for rows.Next() {
		var entry types.GoalLog
		err := rows.Scan(
			&entry.ID,
			&entry.GoalID,
			&entry.Level,
			&entry.Message,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan goal log row: %w", err)
		}
		entries = append(entries, &entry)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating goal log rows: %w", err)
	}

	return entries, nil
}

// HealthCheck validates database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM goals LIMIT 1").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}

	return nil
}

// GetDB returns the underlying database connection for migrations
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// Close shuts down the database manager
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

// scanGoal reads one goal row via the given scan function.
// TECHNICAL DISCOVERY: target/current/action_plan live as JSON text columns;
// the schema stays stable while goal shapes vary by goal_type
func scanGoal(scan func(...interface{}) error) (*types.Goal, error) {
	var goal types.Goal
	var targetJSON, currentJSON, planJSON string

	err := scan(
		&goal.ID,
		&goal.SessionID,
		&goal.GoalType,
		&targetJSON,
		&currentJSON,
		&goal.Status,
		&goal.Phase,
		&planJSON,
		&goal.CreatedAt,
		&goal.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(targetJSON), &goal.Target); err != nil {
		return nil, fmt.Errorf("failed to unmarshal goal target: %w", err)
	}
	if err := json.Unmarshal([]byte(currentJSON), &goal.Current); err != nil {
		return nil, fmt.Errorf("failed to unmarshal goal current: %w", err)
	}
	if err := json.Unmarshal([]byte(planJSON), &goal.ActionPlan); err != nil {
		return nil, fmt.Errorf("failed to unmarshal action plan: %w", err)
	}

	return &goal, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
