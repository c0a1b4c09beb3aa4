package calc

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"goalseek/pkg/interfaces"
	"goalseek/pkg/types"
)

// DailyTargetInterventionThreshold is the daily-target value above which a
// human decision is required before the result is released
const DailyTargetInterventionThreshold = 1000

// Service is the default goal-seek calculator: given a target, a period and
// the current progress it derives the daily target needed to close the gap.
// FUNCTIONAL DISCOVERY: The service holds no state across calls; everything
// request-scoped travels through CalcOptions
type Service struct{}

// NewService creates a new calculation service
func NewService() *Service {
	return &Service{}
}

// Calculate implements interfaces.Calculator
func (s *Service) Calculate(ctx context.Context, req *types.CalcRequest, opts interfaces.CalcOptions) (*types.CalcResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// Honor an already-expired deadline before doing any work
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	correlationID := opts.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	unit := req.Unit
	if unit == "" {
		unit = "items"
	}

	remaining := math.Max(0, req.Target-req.Current)
	dailyTarget := 0.0
	if remaining > 0 {
		dailyTarget = remaining / float64(req.Period)
	}
	isCompleted := req.Current >= req.Target

	result := &types.CalcResult{
		CorrelationID: correlationID,
		Target:        req.Target,
		Period:        req.Period,
		Completed:     req.Current,
		Remaining:     remaining,
		TotalDays:     req.Period,
		RemainingDays: req.Period,
		DailyTarget:   math.Round(dailyTarget*100) / 100,
		Unit:          unit,
		IsCompleted:   isCompleted,
		HasBlocker:    req.HasBlocker,
		BlockerReason: req.BlockerReason,
		CalculatedAt:  time.Now(),
	}

	if opts.EmitProgress != nil {
		percent := 100
		if !isCompleted && req.Target > 0 {
			percent = int(math.Round(req.Current / req.Target * 100))
		}
		opts.EmitProgress(&types.ProgressInfo{
			CorrelationID: correlationID,
			Percent:       percent,
			DailyTarget:   result.DailyTarget,
			Remaining:     remaining,
		})
	}

	return result, nil
}

// CheckInterventionNeeded judges whether a result may be released without a
// human decision. Completed goals never need one; blockers always do; an
// extreme daily target needs an explicit go-ahead.
func (s *Service) CheckInterventionNeeded(result *types.CalcResult) types.InterventionVerdict {
	if result.IsCompleted {
		return types.InterventionVerdict{Needed: false}
	}

	if result.HasBlocker {
		reason := result.BlockerReason
		if reason == "" {
			reason = "Unknown blocker detected"
		}
		return types.InterventionVerdict{
			Needed: true,
			Type:   "blocker",
			Reason: reason,
		}
	}

	if result.DailyTarget > DailyTargetInterventionThreshold {
		return types.InterventionVerdict{
			Needed: true,
			Type:   "decision",
			Reason: formatThresholdReason(result.DailyTarget),
		}
	}

	return types.InterventionVerdict{Needed: false}
}

func formatThresholdReason(dailyTarget float64) string {
	return "dailyTarget (" + strconv.FormatFloat(dailyTarget, 'f', -1, 64) +
		") exceeds threshold (" + strconv.Itoa(DailyTargetInterventionThreshold) + ")"
}
