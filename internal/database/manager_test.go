package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	dbconfig "goalseek/pkg/database"
	"goalseek/pkg/interfaces"
	"goalseek/pkg/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	cfg := &dbconfig.Config{
		DatabasePath:    filepath.Join(t.TempDir(), "test.db"),
		MaxConnections:  5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
	}

	manager, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	t.Cleanup(func() { _ = manager.Close() })

	migrations := dbconfig.NewMigrationManager(manager.GetDB())
	if err := migrations.ApplyMigrations(); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}

	return manager
}

func testGoal(id string) *types.Goal {
	now := time.Now().UTC().Truncate(time.Second)
	return &types.Goal{
		ID:         id,
		SessionID:  "sess-1",
		GoalType:   "sales",
		Target:     map[string]interface{}{"amount": 1000.0},
		Current:    map[string]interface{}{"amount": 200.0},
		Status:     "active",
		Phase:      "created",
		ActionPlan: []string{"step 1", "step 2"},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestMigrations(t *testing.T) {
	manager := newTestManager(t)

	migrations := dbconfig.NewMigrationManager(manager.GetDB())
	if err := migrations.ValidateSchema(); err != nil {
		t.Fatalf("schema validation failed: %v", err)
	}

	// Applying again must be a no-op
	if err := migrations.ApplyMigrations(); err != nil {
		t.Fatalf("reapplying migrations failed: %v", err)
	}
}

func TestGoalCRUD(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	g := testGoal("goal-1")
	if err := manager.CreateGoal(ctx, g); err != nil {
		t.Fatalf("CreateGoal failed: %v", err)
	}

	got, err := manager.GetGoal(ctx, "goal-1")
	if err != nil {
		t.Fatalf("GetGoal failed: %v", err)
	}
	if got.GoalType != "sales" {
		t.Errorf("goal type = %s, want sales", got.GoalType)
	}
	if got.Target["amount"] != 1000.0 {
		t.Errorf("target amount = %v, want 1000", got.Target["amount"])
	}
	if len(got.ActionPlan) != 2 {
		t.Errorf("action plan = %v, want 2 entries", got.ActionPlan)
	}

	got.Status = "completed"
	got.Phase = "done"
	got.Current = map[string]interface{}{"amount": 1000.0}
	got.UpdatedAt = time.Now().UTC()
	if err := manager.UpdateGoal(ctx, got); err != nil {
		t.Fatalf("UpdateGoal failed: %v", err)
	}

	updated, err := manager.GetGoal(ctx, "goal-1")
	if err != nil {
		t.Fatalf("GetGoal after update failed: %v", err)
	}
	if updated.Status != "completed" || updated.Phase != "done" {
		t.Errorf("status/phase = %s/%s, want completed/done", updated.Status, updated.Phase)
	}

	if err := manager.DeleteGoal(ctx, "goal-1"); err != nil {
		t.Fatalf("DeleteGoal failed: %v", err)
	}
	if _, err := manager.GetGoal(ctx, "goal-1"); !errors.Is(err, interfaces.ErrGoalNotFound) {
		t.Errorf("expected ErrGoalNotFound after delete, got %v", err)
	}
}

func TestGoal_NotFoundCases(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	if _, err := manager.GetGoal(ctx, "missing"); !errors.Is(err, interfaces.ErrGoalNotFound) {
		t.Errorf("GetGoal: expected ErrGoalNotFound, got %v", err)
	}
	if err := manager.UpdateGoal(ctx, testGoal("missing")); !errors.Is(err, interfaces.ErrGoalNotFound) {
		t.Errorf("UpdateGoal: expected ErrGoalNotFound, got %v", err)
	}
	if err := manager.DeleteGoal(ctx, "missing"); !errors.Is(err, interfaces.ErrGoalNotFound) {
		t.Errorf("DeleteGoal: expected ErrGoalNotFound, got %v", err)
	}
}

func TestListGoals_SessionFilter(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	a := testGoal("goal-a")
	b := testGoal("goal-b")
	b.SessionID = "sess-2"
	for _, g := range []*types.Goal{a, b} {
		if err := manager.CreateGoal(ctx, g); err != nil {
			t.Fatalf("CreateGoal failed: %v", err)
		}
	}

	all, err := manager.ListGoals(ctx, "")
	if err != nil {
		t.Fatalf("ListGoals failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("all goals = %d, want 2", len(all))
	}

	filtered, err := manager.ListGoals(ctx, "sess-2")
	if err != nil {
		t.Fatalf("ListGoals filtered failed: %v", err)
	}
	if len(filtered) != 1 || filtered[0].ID != "goal-b" {
		t.Errorf("filtered goals = %+v, want only goal-b", filtered)
	}
}

func TestInterventionRecords(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	record := &types.InterventionRecord{
		ID:        "iv-1",
		GoalID:    "goal-1",
		Type:      "decision",
		Reason:    "dailyTarget too high",
		Status:    "pending",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := manager.CreateIntervention(ctx, record); err != nil {
		t.Fatalf("CreateIntervention failed: %v", err)
	}

	pending, err := manager.ListInterventions(ctx, "pending")
	if err != nil {
		t.Fatalf("ListInterventions failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending records = %d, want 1", len(pending))
	}
	if pending[0].ResolvedBy != "" || !pending[0].ResolvedAt.IsZero() {
		t.Errorf("pending record should have empty resolution fields: %+v", pending[0])
	}

	record.Status = "resolved"
	record.Choice = types.ChoiceProceed
	record.ResolvedBy = "user1"
	record.ResolvedAt = time.Now().UTC().Truncate(time.Second)
	if err := manager.UpdateIntervention(ctx, record); err != nil {
		t.Fatalf("UpdateIntervention failed: %v", err)
	}

	resolved, err := manager.ListInterventions(ctx, "resolved")
	if err != nil {
		t.Fatalf("ListInterventions resolved failed: %v", err)
	}
	if len(resolved) != 1 {
		t.Fatalf("resolved records = %d, want 1", len(resolved))
	}
	if resolved[0].Choice != types.ChoiceProceed || resolved[0].ResolvedBy != "user1" {
		t.Errorf("unexpected resolved record: %+v", resolved[0])
	}
	if resolved[0].ResolvedAt.IsZero() {
		t.Error("resolved record should carry a resolution time")
	}

	if err := manager.UpdateIntervention(ctx, &types.InterventionRecord{ID: "missing"}); !errors.Is(err, interfaces.ErrInterventionNotFound) {
		t.Errorf("expected ErrInterventionNotFound, got %v", err)
	}
}

func TestGoalLogs(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i, msg := range []string{"first", "second", "third"} {
		entry := &types.GoalLog{
			ID:        "log-" + msg,
			GoalID:    "goal-1",
			Level:     "info",
			Message:   msg,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := manager.CreateLog(ctx, entry); err != nil {
			t.Fatalf("CreateLog failed: %v", err)
		}
	}

	logs, err := manager.ListLogsByGoal(ctx, "goal-1")
	if err != nil {
		t.Fatalf("ListLogsByGoal failed: %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("logs = %d, want 3", len(logs))
	}
	// Chronological order
	if logs[0].Message != "first" || logs[2].Message != "third" {
		t.Errorf("unexpected log order: %s, %s, %s", logs[0].Message, logs[1].Message, logs[2].Message)
	}

	other, err := manager.ListLogsByGoal(ctx, "goal-other")
	if err != nil {
		t.Fatalf("ListLogsByGoal for unknown goal failed: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("expected no logs for unknown goal, got %d", len(other))
	}
}

func TestHealthCheck(t *testing.T) {
	manager := newTestManager(t)

	if err := manager.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}

func TestClose_Idempotent(t *testing.T) {
	cfg := &dbconfig.Config{
		DatabasePath:    filepath.Join(t.TempDir(), "test.db"),
		MaxConnections:  5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
	}
	manager, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	if err := manager.Close(); err != nil {
		t.Fatalf("first close failed: %v", err)
	}
	if err := manager.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}

	// Writes after close are rejected, not queued
	if err := manager.CreateGoal(context.Background(), testGoal("goal-x")); err == nil {
		t.Error("expected error writing to a closed manager")
	}
}

func TestInterfaceCompliance(t *testing.T) {
	var _ interfaces.DatabaseManager = (*Manager)(nil)
}
