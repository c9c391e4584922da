package pipeline

import "fmt"

// LifecycleError wraps a detection-layer failure surfaced through the
// lifecycle tracker. The state machine itself has no failure mode of its
// own; it only wraps what it received.
type LifecycleError struct {
	Err error
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("region lifecycle: %v", e.Err)
}

func (e *LifecycleError) Unwrap() error { return e.Err }
