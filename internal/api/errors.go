package api

import (
	"errors"
	"fmt"
)

var (
	// ErrOffline indicates the call was skipped or failed because the network
	// is unreachable. Callers fall back to the cache.
	ErrOffline = errors.New("network offline")
	// ErrTimeout indicates the call exceeded its deadline. Treated the same
	// as ErrOffline by callers.
	ErrTimeout = errors.New("network timeout")
	// ErrUnauthorized indicates a 401. The engine never retries these; the
	// session collaborator is notified through the event bus.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrConflict indicates the server rejected a mutation because the edge
	// is no longer in the expected state. Callers roll back and resync.
	ErrConflict = errors.New("edge state conflict")
)

// Error carries the HTTP status of a server or validation failure. These are
// surfaced to the caller as actionable failures with no automatic retry.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status %d", e.Status)
	}
	return fmt.Sprintf("api error: status %d: %s", e.Status, e.Message)
}

// IsServerError reports whether the failure came from the 5xx range.
func (e *Error) IsServerError() bool {
	return e.Status >= 500
}

// Unavailable reports whether err means the network result never arrived and
// the cache should answer instead.
func Unavailable(err error) bool {
	return errors.Is(err, ErrOffline) || errors.Is(err, ErrTimeout)
}
