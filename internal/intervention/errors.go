package intervention

import "errors"

// Resolution failure modes. ErrNotFound and ErrExpired are distinguishable
// internally for logging but collapse to one caller-visible error code so
// callers cannot learn timing from the difference.
var (
	ErrNotFound = errors.New("intervention not found or expired")
	ErrExpired  = errors.New("intervention expired")
	ErrNotOwner = errors.New("intervention belongs to another user")
)
