package interfaces

import "errors"

// Shared sentinel errors compared across package boundaries
var (
	ErrTokenMissing = errors.New("authorization required")
	ErrTokenInvalid = errors.New("authentication failed")

	ErrGoalNotFound         = errors.New("goal not found")
	ErrInterventionNotFound = errors.New("intervention record not found")
)
