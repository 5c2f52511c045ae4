package session

import (
	"errors"
	"fmt"
)

// OwnershipError is returned when a caller supplies a session id owned by a
// different user. The engine never silently substitutes a fresh session; the
// caller must start one explicitly.
type OwnershipError struct {
	SessionID string
	UserID    string
}

func (e *OwnershipError) Error() string {
	return fmt.Sprintf("session %s is not owned by user %s", e.SessionID, e.UserID)
}

// IsOwnershipError checks if an error is an ownership denial.
func IsOwnershipError(err error) bool {
	var oe *OwnershipError
	return errors.As(err, &oe)
}

// BoundaryError is returned when a requested working directory falls outside
// the approved root.
type BoundaryError struct {
	Directory string
	Root      string
}

func (e *BoundaryError) Error() string {
	return fmt.Sprintf("directory %s is outside approved root %s", e.Directory, e.Root)
}
