package calc

import (
	"context"
	"fmt"
	"time"

	"goalseek/pkg/interfaces"
	"goalseek/pkg/types"
)

// Invoker is the thin adapter between message routing and the calculation
// service: it runs the computation, wraps failures, and evaluates the
// intervention verdict without making any decision about it.
// ARCHITECTURAL DISCOVERY: The invoker is stateless; intervention tracking
// belongs to the broker, delivery to the router
type Invoker struct {
	calculator interfaces.Calculator
	timeout    time.Duration
}

// NewInvoker creates a new calculation invoker.
// A timeout of zero disables the per-call deadline.
func NewInvoker(calculator interfaces.Calculator, timeout time.Duration) *Invoker {
	return &Invoker{
		calculator: calculator,
		timeout:    timeout,
	}
}

// Invoke runs one calculation and returns the result together with the
// intervention verdict. Any calculation failure is wrapped as a calculation
// error and terminates the request without registering an intervention.
func (i *Invoker) Invoke(ctx context.Context, req *types.CalcRequest, opts interfaces.CalcOptions) (*types.CalcResult, types.InterventionVerdict, error) {
	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	result, err := i.calculator.Calculate(ctx, req, opts)
	if err != nil {
		return nil, types.InterventionVerdict{}, fmt.Errorf("%w: %v", ErrCalculationFailed, err)
	}

	verdict := i.calculator.CheckInterventionNeeded(result)
	return result, verdict, nil
}
