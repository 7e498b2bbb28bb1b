package engine

import (
	"context"
	"runtime"

	"github.com/rs/zerolog"
)

// DefaultMaxInFlight bounds the cooperative run queue.
const DefaultMaxInFlight = 64

// CooperativeScheduler multiplexes tasks on one goroutine locked to its OS thread.
// Tasks run to completion in dispatch order; the only suspension point is the join,
// where the caller waits for the run loop to drain.
type CooperativeScheduler struct {
	maxInFlight int
}

type scheduledTask struct {
	index int
	task  Task
}

// NewCooperativeScheduler returns a scheduler whose run queue holds at most
// maxInFlight dispatched-but-unstarted tasks. A non-positive value selects
// DefaultMaxInFlight.
func NewCooperativeScheduler(maxInFlight int) *CooperativeScheduler {
	if maxInFlight < 1 {
		maxInFlight = DefaultMaxInFlight
	}
	return &CooperativeScheduler{maxInFlight: maxInFlight}
}

// Mode implements Strategy.
func (s *CooperativeScheduler) Mode() Mode {
	return ModeCooperative
}

// Run implements Strategy. Every task is dispatched before Run waits on the join;
// dispatch blocks while the run queue is full.
func (s *CooperativeScheduler) Run(ctx context.Context, tasks []Task) []error {
	errs := make([]error, len(tasks))
	if len(tasks) == 0 {
		return errs
	}

	zerolog.Ctx(ctx).Debug().
		Int("tasks", len(tasks)).
		Int("max_in_flight", s.maxInFlight).
		Msg("dispatching to cooperative scheduler")

	queue := make(chan scheduledTask, min(s.maxInFlight, len(tasks)))
	joined := make(chan struct{})
	go s.loop(queue, errs, joined)

	for i, task := range tasks {
		queue <- scheduledTask{index: i, task: task}
	}
	close(queue)

	<-joined
	return errs
}

// loop is the single execution context. errs[i] is written only here, and the close
// of joined publishes every write to the waiting caller.
func (s *CooperativeScheduler) loop(queue <-chan scheduledTask, errs []error, joined chan<- struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(joined)

	for st := range queue {
		errs[st.index] = runTask(st.task)
	}
}
