package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated is returned when an operation requiring a live
	// authenticated identity is invoked without one. Callers should
	// redirect to the entry screen.
	ErrUnauthenticated = errors.New("no authenticated identity")

	// ErrSessionClosed is returned by operations invoked on a session
	// that has already been ended.
	ErrSessionClosed = errors.New("session closed")
)

// PartialDeleteError reports a bulk clear in which some but not all
// documents were removed. Already-deleted documents are not retried.
type PartialDeleteError struct {
	Attempted int
	Failed    int
}

func (e *PartialDeleteError) Error() string {
	return fmt.Sprintf("cleared %d of %d messages (%d deletes failed)",
		e.Attempted-e.Failed, e.Attempted, e.Failed)
}
