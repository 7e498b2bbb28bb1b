package engine

import (
	"context"
	"fmt"
	"strings"
)

// Mode names an execution strategy.
type Mode string

// Supported execution modes.
const (
	// ModeParallel reduces batches on a bounded worker pool.
	ModeParallel Mode = "parallel"

	// ModeCooperative reduces batches on a single-threaded cooperative scheduler.
	ModeCooperative Mode = "cooperative"
)

// Modes lists every supported mode in display order.
func Modes() []Mode {
	return []Mode{ModeParallel, ModeCooperative}
}

// ParseMode converts a user-supplied name into a Mode. Matching is case-insensitive;
// "threaded" and "async" are accepted as aliases.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "parallel", "threaded", "thread", "pool":
		return ModeParallel, nil
	case "cooperative", "async", "coop":
		return ModeCooperative, nil
	default:
		return "", fmt.Errorf("%w: %q (want one of parallel, cooperative)", ErrUnknownMode, s)
	}
}

// Task is one unit of work.
type Task func() error

// Strategy dispatches tasks and blocks until every one of them has resolved.
//
// Run returns one error slot per task, in task order; a nil slot means the task
// succeeded. Implementations never abandon dispatched tasks and must not depend on
// completion order.
type Strategy interface {
	Mode() Mode
	Run(ctx context.Context, tasks []Task) []error
}

// runTask executes task and converts a panic into an error.
func runTask(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTaskPanic, r)
		}
	}()
	return task()
}
