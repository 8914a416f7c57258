package escalate

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoSteps is returned when a chain has nothing to run.
	ErrNoSteps = errors.New("escalate: no steps configured")

	// ErrStepTimeout marks a try that exceeded its own step timeout.
	ErrStepTimeout = errors.New("step timed out")
)

// TimeoutError is returned for a try cut short by its step timeout.
type TimeoutError struct {
	Step  string
	After time.Duration
	Err   error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Step, e.After)
}

// Is matches ErrStepTimeout.
func (e *TimeoutError) Is(target error) bool { return target == ErrStepTimeout }

func (e *TimeoutError) Unwrap() error { return e.Err }

// ExhaustedError is returned when every step failed.
type ExhaustedError struct {
	Last     error
	Attempts int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("escalate: all strategies failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// AbortedError is returned when a step failure was classified as fatal.
type AbortedError struct {
	Step string
	Err  error
}

func (e *AbortedError) Error() string {
	return fmt.Sprintf("escalate: aborted at %s: %v", e.Step, e.Err)
}

func (e *AbortedError) Unwrap() error { return e.Err }
