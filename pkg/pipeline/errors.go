package pipeline

import "fmt"

// InsufficientIdentifiersError means the question needs at least one shipment
// identifier and none could be extracted or recalled from the session. It is
// recoverable: the user is asked for an identifier and the conversation
// continues.
type InsufficientIdentifiersError struct {
	Question string
}

func (e *InsufficientIdentifiersError) Error() string {
	return fmt.Sprintf("no shipment identifiers in question %q", e.Question)
}

// BackendTimeoutError wraps a backend call that exceeded its deadline. The
// turn fails with the canonical unavailable message; nothing is retried past
// the deadline.
type BackendTimeoutError struct {
	Backend string
	Err     error
}

func (e *BackendTimeoutError) Error() string {
	return fmt.Sprintf("%s backend timed out: %v", e.Backend, e.Err)
}

func (e *BackendTimeoutError) Unwrap() error {
	return e.Err
}
