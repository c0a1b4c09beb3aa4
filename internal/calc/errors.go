package calc

import "errors"

var (
	// ErrCalculationFailed wraps any failure from the calculation service.
	// Per-message and non-fatal: the connection that sent the request stays open.
	ErrCalculationFailed = errors.New("calculation failed")
)
