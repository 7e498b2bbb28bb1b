package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rshade/cohort/internal/engine/batch"
)

// Engine errors.
var (
	// ErrInvalidBatchSize is returned before any work is dispatched when batchSize <= 0.
	ErrInvalidBatchSize = batch.ErrInvalidBatchSize

	// ErrReductionFailure is matched by every *ReductionError.
	ErrReductionFailure = errors.New("batch reduction failed")

	// ErrNilMeasure is returned by New when no measure function is supplied.
	ErrNilMeasure = errors.New("measure function cannot be nil")

	// ErrUnknownMode is returned by ParseMode for unrecognised strategy names.
	ErrUnknownMode = errors.New("unknown execution mode")

	// ErrTaskPanic wraps a panic recovered from a unit of work.
	ErrTaskPanic = errors.New("unit of work panicked")
)

// BatchFailure records why a single batch could not be reduced.
type BatchFailure struct {
	Index int
	Err   error
}

// Error implements error.
func (f BatchFailure) Error() string {
	return fmt.Sprintf("batch %d: %v", f.Index, f.Err)
}

// Unwrap returns the underlying cause.
func (f BatchFailure) Unwrap() error {
	return f.Err
}

// ReductionError is the single aggregate failure returned when one or more batches
// fail. No partial result accompanies it.
type ReductionError struct {
	// TotalBatches is the number of batches that were dispatched.
	TotalBatches int

	// Failures lists the failed batches in index order.
	Failures []BatchFailure
}

// Error implements error.
func (e *ReductionError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.Error()
	}
	return fmt.Sprintf("%v: %d of %d batches failed: %s",
		ErrReductionFailure, len(e.Failures), e.TotalBatches, strings.Join(parts, "; "))
}

// Is reports whether target is ErrReductionFailure.
func (e *ReductionError) Is(target error) bool {
	return target == ErrReductionFailure
}

// Unwrap exposes every batch failure to errors.Is and errors.As.
func (e *ReductionError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// collectFailures builds a ReductionError from per-batch error slots, or returns nil
// when every slot is empty.
func collectFailures(errs []error) error {
	var failures []BatchFailure
	for i, err := range errs {
		if err != nil {
			failures = append(failures, BatchFailure{Index: i, Err: err})
		}
	}
	if len(failures) == 0 {
		return nil
	}
	return &ReductionError{TotalBatches: len(errs), Failures: failures}
}
