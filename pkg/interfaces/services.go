package interfaces

import (
	"context"

	"goalseek/pkg/types"
)

// TokenVerifier validates a bearer credential and yields an identity.
// A failed verification at connect time is terminal for that attempt;
// there is no retry or refresh.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (types.Identity, error)
}

// CalcOptions controls one calculation invocation
type CalcOptions struct {
	CorrelationID string
	// EmitProgress, when non-nil, receives progress events during calculation
	EmitProgress func(*types.ProgressInfo)
}

// Calculator is the external calculation service boundary.
// FUNCTIONAL DISCOVERY: Verdict evaluation is a separate call so the invoker
// stays a pure pass-through between computation and intervention tracking
type Calculator interface {
	Calculate(ctx context.Context, req *types.CalcRequest, opts CalcOptions) (*types.CalcResult, error)
	CheckInterventionNeeded(result *types.CalcResult) types.InterventionVerdict
}

// DatabaseManager handles all persistence operations for the goal-seek store
type DatabaseManager interface {
	// Goal operations
	CreateGoal(ctx context.Context, goal *types.Goal) error
	GetGoal(ctx context.Context, goalID string) (*types.Goal, error)
	UpdateGoal(ctx context.Context, goal *types.Goal) error
	DeleteGoal(ctx context.Context, goalID string) error
	ListGoals(ctx context.Context, sessionID string) ([]*types.Goal, error)

	// Intervention record operations
	CreateIntervention(ctx context.Context, record *types.InterventionRecord) error
	UpdateIntervention(ctx context.Context, record *types.InterventionRecord) error
	ListInterventions(ctx context.Context, status string) ([]*types.InterventionRecord, error)

	// Goal log operations
	CreateLog(ctx context.Context, entry *types.GoalLog) error
	ListLogsByGoal(ctx context.Context, goalID string) ([]*types.GoalLog, error)

	HealthCheck(ctx context.Context) error
	Close() error
}
