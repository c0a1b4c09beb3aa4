package calc

import (
	"context"
	"errors"
	"testing"
	"time"

	"goalseek/pkg/interfaces"
	"goalseek/pkg/types"
)

// failingCalculator always errors, for exercising the invoker's wrapping
type failingCalculator struct {
	err error
}

func (f *failingCalculator) Calculate(ctx context.Context, req *types.CalcRequest, opts interfaces.CalcOptions) (*types.CalcResult, error) {
	return nil, f.err
}

func (f *failingCalculator) CheckInterventionNeeded(result *types.CalcResult) types.InterventionVerdict {
	return types.InterventionVerdict{}
}

// slowCalculator blocks until its context expires
type slowCalculator struct{}

func (s *slowCalculator) Calculate(ctx context.Context, req *types.CalcRequest, opts interfaces.CalcOptions) (*types.CalcResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(10 * time.Second):
		return &types.CalcResult{}, nil
	}
}

func (s *slowCalculator) CheckInterventionNeeded(result *types.CalcResult) types.InterventionVerdict {
	return types.InterventionVerdict{}
}

func TestInvoke_Success(t *testing.T) {
	invoker := NewInvoker(NewService(), time.Second)

	result, verdict, err := invoker.Invoke(context.Background(),
		&types.CalcRequest{Target: 100, Period: 10}, interfaces.CalcOptions{})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if result == nil {
		t.Fatal("expected result")
	}
	if verdict.Needed {
		t.Errorf("unexpected intervention verdict: %+v", verdict)
	}
}

func TestInvoke_VerdictPropagates(t *testing.T) {
	invoker := NewInvoker(NewService(), time.Second)

	_, verdict, err := invoker.Invoke(context.Background(),
		&types.CalcRequest{Target: 200000, Period: 10}, interfaces.CalcOptions{})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if !verdict.Needed || verdict.Type != "decision" {
		t.Errorf("expected decision verdict, got %+v", verdict)
	}
}

func TestInvoke_WrapsFailure(t *testing.T) {
	boom := errors.New("boom")
	invoker := NewInvoker(&failingCalculator{err: boom}, time.Second)

	_, _, err := invoker.Invoke(context.Background(),
		&types.CalcRequest{Target: 100, Period: 10}, interfaces.CalcOptions{})
	if !errors.Is(err, ErrCalculationFailed) {
		t.Errorf("expected ErrCalculationFailed, got %v", err)
	}
}

func TestInvoke_Timeout(t *testing.T) {
	invoker := NewInvoker(&slowCalculator{}, 50*time.Millisecond)

	start := time.Now()
	_, _, err := invoker.Invoke(context.Background(),
		&types.CalcRequest{Target: 100, Period: 10}, interfaces.CalcOptions{})
	if !errors.Is(err, ErrCalculationFailed) {
		t.Errorf("expected ErrCalculationFailed from timeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout did not cut the call short, took %v", elapsed)
	}
}

func TestInvoke_ZeroTimeoutDisablesDeadline(t *testing.T) {
	invoker := NewInvoker(NewService(), 0)

	_, _, err := invoker.Invoke(context.Background(),
		&types.CalcRequest{Target: 100, Period: 10}, interfaces.CalcOptions{})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
}
