package types

import "errors"

// Validation errors shared across the calculation and API layers
var (
	ErrInvalidPeriod  = errors.New("period must be between 1 and 365")
	ErrInvalidTarget  = errors.New("target must be >= 0")
	ErrInvalidCurrent = errors.New("current must be >= 0")
	ErrInvalidChoice  = errors.New("choice must be one of proceed, abort, modify")
	ErrInvalidUserID  = errors.New("user ID must be 1-50 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidGoal    = errors.New("goal requires sessionId, goalType and target")
)
