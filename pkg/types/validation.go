package types

import "regexp"

// FUNCTIONAL DISCOVERY: Regex compiled once at package initialization
// for high-frequency validation on the connect path
var userIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Validate ensures a calculation request is within accepted bounds.
// Violations terminate the request; no intervention is ever registered
// for an invalid request.
func (r *CalcRequest) Validate() error {
	if r.Period < 1 || r.Period > 365 {
		return ErrInvalidPeriod
	}
	if r.Target < 0 {
		return ErrInvalidTarget
	}
	if r.Current < 0 {
		return ErrInvalidCurrent
	}
	return nil
}

// Validate ensures a goal carries the fields the store requires
func (g *Goal) Validate() error {
	if g.SessionID == "" || g.GoalType == "" || len(g.Target) == 0 {
		return ErrInvalidGoal
	}
	return nil
}

// IsValidUserID checks if a user ID meets format requirements
func IsValidUserID(userID string) bool {
	if len(userID) < 1 || len(userID) > 50 {
		return false
	}
	return userIDRegex.MatchString(userID)
}

// IsValidChoice checks if a resolution choice is one of the allowed values
func IsValidChoice(choice string) bool {
	switch choice {
	case ChoiceProceed, ChoiceAbort, ChoiceModify:
		return true
	default:
		return false
	}
}
