package engine

import (
	"errors"
	"fmt"
)

// ErrCancelled reports a run stopped at a check point because the host
// context, the engine, or the run's context asked for cancellation.
var ErrCancelled = errors.New("execution cancelled")

// RuntimeError reports a script failure during execution: type
// mismatches, division by zero, bad indexing, unknown host functions,
// or an error returned by a host function.
type RuntimeError struct {
	Msg string
	PC  int
	Err error // underlying host error, when any
}

func (e *RuntimeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("runtime error at pc %d: %s: %v", e.PC, e.Msg, e.Err)
	}
	return fmt.Sprintf("runtime error at pc %d: %s", e.PC, e.Msg)
}

func (e *RuntimeError) Unwrap() error { return e.Err }
