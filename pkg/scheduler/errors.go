package scheduler

import (
	"errors"
	"fmt"
)

// Common errors returned by the scheduler.
var (
	// ErrTaskPanicked is wrapped into the error of a task that panicked.
	ErrTaskPanicked = errors.New("task panicked")

	// ErrNilTask is returned for a task without a Run function.
	ErrNilTask = errors.New("task has no run function")

	// ErrCancelled is returned when the context ends before every task was admitted.
	ErrCancelled = errors.New("scheduler cancelled")

	// ErrKeyOutOfRange is returned by Ordered for a key outside the slot array.
	ErrKeyOutOfRange = errors.New("result key out of range")

	// ErrDuplicateKey is returned by Ordered when two results target the same slot.
	ErrDuplicateKey = errors.New("duplicate result key")

	// ErrMissingSlot is returned by Ordered when a slot was never populated.
	ErrMissingSlot = errors.New("missing result for slot")
)

// TaskError reports the task that failed a run.
type TaskError struct {
	Scheduler string
	Key       int
	Err       error
}

// Error implements the error interface.
func (e *TaskError) Error() string {
	return fmt.Sprintf("scheduler %s: task %d: %v", e.Scheduler, e.Key, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TaskError) Unwrap() error {
	return e.Err
}
