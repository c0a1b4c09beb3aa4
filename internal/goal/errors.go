package goal

import "errors"

// Goal management errors
var (
	ErrGoalNotFound     = errors.New("goal not found")
	ErrInvalidGoalType  = errors.New("goal type is required")
	ErrInvalidSessionID = errors.New("session ID is required")
	ErrInvalidStatus    = errors.New("invalid goal status")
	ErrInvalidLogLevel  = errors.New("invalid log level")
)
