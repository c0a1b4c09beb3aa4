package goal

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"goalseek/pkg/interfaces"
	"goalseek/pkg/types"
)

// Valid goal statuses
var validStatuses = map[string]bool{
	"active":    true,
	"paused":    true,
	"completed": true,
	"failed":    true,
}

// Valid log levels
var validLogLevels = map[string]bool{
	"info":    true,
	"warning": true,
	"error":   true,
}

// Manager tracks goals over the persistence layer with an in-memory cache
// of active goals. Writes go through the database first; the cache only
// holds what the database has accepted.
type Manager struct {
	dbManager   interfaces.DatabaseManager
	activeGoals map[string]*types.Goal // goalID -> Goal
	mu          sync.RWMutex
}

// NewManager creates a new goal manager
func NewManager(dbManager interfaces.DatabaseManager) *Manager {
	return &Manager{
		dbManager:   dbManager,
		activeGoals: make(map[string]*types.Goal),
	}
}

// LoadActiveGoals loads all non-terminal goals from database into memory
func (m *Manager) LoadActiveGoals(ctx context.Context) error {
	goals, err := m.dbManager.ListGoals(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to load goals: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, g := range goals {
		if g.Status == "active" || g.Status == "paused" {
			m.activeGoals[g.ID] = g
			count++
		}
	}

	log.Printf("Loaded %d active goals", count)
	return nil
}

// CreateGoal creates and persists a new goal
func (m *Manager) CreateGoal(ctx context.Context, sessionID, goalType string, target, current map[string]interface{}) (*types.Goal, error) {
	if sessionID == "" {
		return nil, ErrInvalidSessionID
	}
	if goalType == "" {
		return nil, ErrInvalidGoalType
	}

	goal := &types.Goal{
		ID:         "goal-" + uuid.New().String()[:8],
		SessionID:  sessionID,
		GoalType:   goalType,
		Target:     target,
		Current:    current,
		Status:     "active",
		Phase:      "created",
		ActionPlan: []string{},
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}

	if err := m.dbManager.CreateGoal(ctx, goal); err != nil {
		return nil, fmt.Errorf("failed to create goal: %w", err)
	}

	m.mu.Lock()
	m.activeGoals[goal.ID] = goal
	m.mu.Unlock()

	log.Printf("Created goal: id=%s type=%s session=%s", goal.ID, goal.GoalType, goal.SessionID)
	return goal, nil
}

// GetGoal retrieves a goal by ID, cache first
func (m *Manager) GetGoal(ctx context.Context, goalID string) (*types.Goal, error) {
	m.mu.RLock()
	if goal, exists := m.activeGoals[goalID]; exists {
		m.mu.RUnlock()
		return goal, nil
	}
	m.mu.RUnlock()

	goal, err := m.dbManager.GetGoal(ctx, goalID)
	if err != nil {
		return nil, err
	}

	return goal, nil
}

// UpdateGoal merges the given fields into a goal and persists it.
// Nil map arguments and empty strings leave the existing values untouched.
func (m *Manager) UpdateGoal(ctx context.Context, goalID string, status, phase string, current map[string]interface{}, actionPlan []string) (*types.Goal, error) {
	goal, err := m.GetGoal(ctx, goalID)
	if err != nil {
		return nil, ErrGoalNotFound
	}

	if status != "" {
		if !validStatuses[status] {
			return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, status)
		}
		goal.Status = status
	}
	if phase != "" {
		goal.Phase = phase
	}
	if current != nil {
		goal.Current = current
	}
	if actionPlan != nil {
		goal.ActionPlan = actionPlan
	}
	goal.UpdatedAt = time.Now()

	if err := m.dbManager.UpdateGoal(ctx, goal); err != nil {
		return nil, fmt.Errorf("failed to update goal: %w", err)
	}

	// Terminal goals fall out of the active cache
	m.mu.Lock()
	if goal.Status == "completed" || goal.Status == "failed" {
		delete(m.activeGoals, goal.ID)
	} else {
		m.activeGoals[goal.ID] = goal
	}
	m.mu.Unlock()

	log.Printf("Updated goal: id=%s status=%s phase=%s", goal.ID, goal.Status, goal.Phase)
	return goal, nil
}

// DeleteGoal removes a goal and its cache entry
func (m *Manager) DeleteGoal(ctx context.Context, goalID string) error {
	if err := m.dbManager.DeleteGoal(ctx, goalID); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.activeGoals, goalID)
	m.mu.Unlock()

	log.Printf("Deleted goal: id=%s", goalID)
	return nil
}

// ListGoals returns goals, optionally filtered by session ID
func (m *Manager) ListGoals(ctx context.Context, sessionID string) ([]*types.Goal, error) {
	return m.dbManager.ListGoals(ctx, sessionID)
}

// AppendLog records a progress/audit entry against a goal
func (m *Manager) AppendLog(ctx context.Context, goalID, level, message string) (*types.GoalLog, error) {
	if level == "" {
		level = "info"
	}
	if !validLogLevels[level] {
		return nil, fmt.Errorf("%w: %s", ErrInvalidLogLevel, level)
	}

	if _, err := m.GetGoal(ctx, goalID); err != nil {
		return nil, ErrGoalNotFound
	}

	entry := &types.GoalLog{
		ID:        "log-" + uuid.New().String()[:8],
		GoalID:    goalID,
		Level:     level,
		Message:   message,
		CreatedAt: time.Now(),
	}

	if err := m.dbManager.CreateLog(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to append log: %w", err)
	}

	return entry, nil
}

// ListLogs returns the log entries for one goal
func (m *Manager) ListLogs(ctx context.Context, goalID string) ([]*types.GoalLog, error) {
	return m.dbManager.ListLogsByGoal(ctx, goalID)
}

// ActiveCount returns the number of cached active goals
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.activeGoals)
}
