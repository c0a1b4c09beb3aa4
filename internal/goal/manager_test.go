package goal

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"goalseek/pkg/interfaces"
	"goalseek/pkg/types"
)

// mockDatabaseManager backs the goal manager with an in-memory store
type mockDatabaseManager struct {
	mu    sync.RWMutex
	goals map[string]*types.Goal
	logs  map[string][]*types.GoalLog

	shouldFailCreate bool
	shouldFailUpdate bool
}

func newMockDatabaseManager() *mockDatabaseManager {
	return &mockDatabaseManager{
		goals: make(map[string]*types.Goal),
		logs:  make(map[string][]*types.GoalLog),
	}
}

func (m *mockDatabaseManager) CreateGoal(ctx context.Context, goal *types.Goal) error {
	if m.shouldFailCreate {
		return errors.New("database create failed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.goals[goal.ID] = goal
	return nil
}

func (m *mockDatabaseManager) GetGoal(ctx context.Context, goalID string) (*types.Goal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, exists := m.goals[goalID]
	if !exists {
		return nil, interfaces.ErrGoalNotFound
	}
	return g, nil
}

func (m *mockDatabaseManager) UpdateGoal(ctx context.Context, goal *types.Goal) error {
	if m.shouldFailUpdate {
		return errors.New("database update failed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.goals[goal.ID] = goal
	return nil
}

func (m *mockDatabaseManager) DeleteGoal(ctx context.Context, goalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.goals[goalID]; !exists {
		return interfaces.ErrGoalNotFound
	}
	delete(m.goals, goalID)
	return nil
}

func (m *mockDatabaseManager) ListGoals(ctx context.Context, sessionID string) ([]*types.Goal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*types.Goal
	for _, g := range m.goals {
		if sessionID == "" || g.SessionID == sessionID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *mockDatabaseManager) CreateIntervention(ctx context.Context, record *types.InterventionRecord) error {
	return nil
}

func (m *mockDatabaseManager) UpdateIntervention(ctx context.Context, record *types.InterventionRecord) error {
	return nil
}

func (m *mockDatabaseManager) ListInterventions(ctx context.Context, status string) ([]*types.InterventionRecord, error) {
	return nil, nil
}

func (m *mockDatabaseManager) CreateLog(ctx context.Context, entry *types.GoalLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs[entry.GoalID] = append(m.logs[entry.GoalID], entry)
	return nil
}

func (m *mockDatabaseManager) ListLogsByGoal(ctx context.Context, goalID string) ([]*types.GoalLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.logs[goalID], nil
}

func (m *mockDatabaseManager) HealthCheck(ctx context.Context) error { return nil }
func (m *mockDatabaseManager) Close() error                          { return nil }

func TestManager_InterfaceCompliance(t *testing.T) {
	var _ interfaces.DatabaseManager = newMockDatabaseManager()
}

func TestCreateGoal(t *testing.T) {
	manager := NewManager(newMockDatabaseManager())

	g, err := manager.CreateGoal(context.Background(), "sess-1", "sales",
		map[string]interface{}{"amount": 1000.0}, map[string]interface{}{"amount": 200.0})
	if err != nil {
		t.Fatalf("CreateGoal failed: %v", err)
	}

	if !strings.HasPrefix(g.ID, "goal-") {
		t.Errorf("goal ID = %s, want goal- prefix", g.ID)
	}
	if g.Status != "active" {
		t.Errorf("status = %s, want active", g.Status)
	}
	if g.Phase != "created" {
		t.Errorf("phase = %s, want created", g.Phase)
	}
	if manager.ActiveCount() != 1 {
		t.Errorf("active count = %d, want 1", manager.ActiveCount())
	}
}

func TestCreateGoal_Validation(t *testing.T) {
	manager := NewManager(newMockDatabaseManager())

	if _, err := manager.CreateGoal(context.Background(), "", "sales", nil, nil); !errors.Is(err, ErrInvalidSessionID) {
		t.Errorf("expected ErrInvalidSessionID, got %v", err)
	}
	if _, err := manager.CreateGoal(context.Background(), "sess-1", "", nil, nil); !errors.Is(err, ErrInvalidGoalType) {
		t.Errorf("expected ErrInvalidGoalType, got %v", err)
	}
}

func TestCreateGoal_DatabaseFailure(t *testing.T) {
	db := newMockDatabaseManager()
	db.shouldFailCreate = true
	manager := NewManager(db)

	if _, err := manager.CreateGoal(context.Background(), "sess-1", "sales", nil, nil); err == nil {
		t.Error("expected error from database failure")
	}
	if manager.ActiveCount() != 0 {
		t.Error("failed create must not populate the cache")
	}
}

func TestGetGoal_CacheAndFallthrough(t *testing.T) {
	db := newMockDatabaseManager()
	manager := NewManager(db)

	created, err := manager.CreateGoal(context.Background(), "sess-1", "sales", nil, nil)
	if err != nil {
		t.Fatalf("CreateGoal failed: %v", err)
	}

	got, err := manager.GetGoal(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetGoal failed: %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("goal ID = %s, want %s", got.ID, created.ID)
	}

	// A goal only present in the database is still reachable
	db.goals["goal-db-only"] = &types.Goal{ID: "goal-db-only", Status: "completed"}
	if _, err := manager.GetGoal(context.Background(), "goal-db-only"); err != nil {
		t.Errorf("database fallthrough failed: %v", err)
	}

	if _, err := manager.GetGoal(context.Background(), "goal-missing"); !errors.Is(err, interfaces.ErrGoalNotFound) {
		t.Errorf("expected ErrGoalNotFound, got %v", err)
	}
}

func TestUpdateGoal(t *testing.T) {
	manager := NewManager(newMockDatabaseManager())

	created, _ := manager.CreateGoal(context.Background(), "sess-1", "sales", nil, nil)

	updated, err := manager.UpdateGoal(context.Background(), created.ID,
		"paused", "review", map[string]interface{}{"amount": 500.0}, []string{"step 1"})
	if err != nil {
		t.Fatalf("UpdateGoal failed: %v", err)
	}

	if updated.Status != "paused" || updated.Phase != "review" {
		t.Errorf("status/phase = %s/%s, want paused/review", updated.Status, updated.Phase)
	}
	if len(updated.ActionPlan) != 1 {
		t.Errorf("action plan = %v, want one entry", updated.ActionPlan)
	}
	if manager.ActiveCount() != 1 {
		t.Errorf("paused goal should stay cached, count = %d", manager.ActiveCount())
	}
}

func TestUpdateGoal_PartialMerge(t *testing.T) {
	manager := NewManager(newMockDatabaseManager())

	created, _ := manager.CreateGoal(context.Background(), "sess-1", "sales",
		nil, map[string]interface{}{"amount": 200.0})

	updated, err := manager.UpdateGoal(context.Background(), created.ID, "", "executing", nil, nil)
	if err != nil {
		t.Fatalf("UpdateGoal failed: %v", err)
	}

	if updated.Status != "active" {
		t.Errorf("empty status should be preserved, got %s", updated.Status)
	}
	if updated.Phase != "executing" {
		t.Errorf("phase = %s, want executing", updated.Phase)
	}
	if updated.Current["amount"] != 200.0 {
		t.Errorf("nil current should be preserved, got %v", updated.Current)
	}
}

func TestUpdateGoal_InvalidStatus(t *testing.T) {
	manager := NewManager(newMockDatabaseManager())
	created, _ := manager.CreateGoal(context.Background(), "sess-1", "sales", nil, nil)

	if _, err := manager.UpdateGoal(context.Background(), created.ID, "bogus", "", nil, nil); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestUpdateGoal_TerminalEvictsCache(t *testing.T) {
	manager := NewManager(newMockDatabaseManager())
	created, _ := manager.CreateGoal(context.Background(), "sess-1", "sales", nil, nil)

	if _, err := manager.UpdateGoal(context.Background(), created.ID, "completed", "", nil, nil); err != nil {
		t.Fatalf("UpdateGoal failed: %v", err)
	}
	if manager.ActiveCount() != 0 {
		t.Errorf("completed goal should be evicted, count = %d", manager.ActiveCount())
	}
}

func TestUpdateGoal_NotFound(t *testing.T) {
	manager := NewManager(newMockDatabaseManager())

	if _, err := manager.UpdateGoal(context.Background(), "goal-missing", "active", "", nil, nil); !errors.Is(err, ErrGoalNotFound) {
		t.Errorf("expected ErrGoalNotFound, got %v", err)
	}
}

func TestDeleteGoal(t *testing.T) {
	manager := NewManager(newMockDatabaseManager())
	created, _ := manager.CreateGoal(context.Background(), "sess-1", "sales", nil, nil)

	if err := manager.DeleteGoal(context.Background(), created.ID); err != nil {
		t.Fatalf("DeleteGoal failed: %v", err)
	}
	if manager.ActiveCount() != 0 {
		t.Errorf("deleted goal should be evicted, count = %d", manager.ActiveCount())
	}
	if _, err := manager.GetGoal(context.Background(), created.ID); !errors.Is(err, interfaces.ErrGoalNotFound) {
		t.Errorf("expected ErrGoalNotFound after delete, got %v", err)
	}
}

func TestAppendLog(t *testing.T) {
	manager := NewManager(newMockDatabaseManager())
	created, _ := manager.CreateGoal(context.Background(), "sess-1", "sales", nil, nil)

	entry, err := manager.AppendLog(context.Background(), created.ID, "", "first step done")
	if err != nil {
		t.Fatalf("AppendLog failed: %v", err)
	}
	if entry.Level != "info" {
		t.Errorf("level = %s, want default info", entry.Level)
	}
	if !strings.HasPrefix(entry.ID, "log-") {
		t.Errorf("log ID = %s, want log- prefix", entry.ID)
	}

	logs, err := manager.ListLogs(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("ListLogs failed: %v", err)
	}
	if len(logs) != 1 {
		t.Errorf("logs = %d, want 1", len(logs))
	}
}

func TestAppendLog_Failures(t *testing.T) {
	manager := NewManager(newMockDatabaseManager())
	created, _ := manager.CreateGoal(context.Background(), "sess-1", "sales", nil, nil)

	if _, err := manager.AppendLog(context.Background(), created.ID, "shout", "msg"); !errors.Is(err, ErrInvalidLogLevel) {
		t.Errorf("expected ErrInvalidLogLevel, got %v", err)
	}
	if _, err := manager.AppendLog(context.Background(), "goal-missing", "info", "msg"); !errors.Is(err, ErrGoalNotFound) {
		t.Errorf("expected ErrGoalNotFound, got %v", err)
	}
}

func TestLoadActiveGoals(t *testing.T) {
	db := newMockDatabaseManager()
	db.goals["goal-1"] = &types.Goal{ID: "goal-1", Status: "active"}
	db.goals["goal-2"] = &types.Goal{ID: "goal-2", Status: "paused"}
	db.goals["goal-3"] = &types.Goal{ID: "goal-3", Status: "completed"}

	manager := NewManager(db)
	if err := manager.LoadActiveGoals(context.Background()); err != nil {
		t.Fatalf("LoadActiveGoals failed: %v", err)
	}

	if manager.ActiveCount() != 2 {
		t.Errorf("active count = %d, want 2 (terminal goals excluded)", manager.ActiveCount())
	}
}
