package video

import "fmt"

// DecodeError wraps a fatal decoder-layer failure. Decode errors end the
// pipeline run; retrying with a different backend is the driving code's call.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
