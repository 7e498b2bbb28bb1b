package engine

import (
	"context"
	"runtime"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// WorkerPool runs tasks concurrently on at most Workers goroutines.
type WorkerPool struct {
	workers int
}

// NewWorkerPool returns a pool bounded to workers goroutines. A non-positive value
// selects runtime.NumCPU().
func NewWorkerPool(workers int) *WorkerPool {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	return &WorkerPool{workers: workers}
}

// Mode implements Strategy.
func (p *WorkerPool) Mode() Mode {
	return ModeParallel
}

// Run implements Strategy. It returns once every task has finished; a failing task
// does not stop the others.
func (p *WorkerPool) Run(ctx context.Context, tasks []Task) []error {
	errs := make([]error, len(tasks))

	zerolog.Ctx(ctx).Debug().
		Int("tasks", len(tasks)).
		Int("workers", p.workers).
		Msg("dispatching to worker pool")

	// The group is used as a bounded barrier only. Task errors go to their slot
	// instead of the group so that no sibling is cancelled.
	var g errgroup.Group
	g.SetLimit(p.workers)
	for i, task := range tasks {
		g.Go(func() error {
			errs[i] = runTask(task)
			return nil
		})
	}
	_ = g.Wait()

	return errs
}
