package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rshade/cohort/internal/engine/batch"
)

// Options configures an Engine. Zero values select defaults.
type Options struct {
	// Workers bounds the parallel worker pool (default runtime.NumCPU()).
	Workers int

	// MaxInFlight bounds the cooperative run queue (default DefaultMaxInFlight).
	MaxInFlight int
}

// Summary describes one completed aggregation call.
type Summary struct {
	Mode       Mode          `json:"mode"        yaml:"mode"`
	Average    float64       `json:"average"     yaml:"average"`
	Records    int           `json:"records"     yaml:"records"`
	BatchSize  int           `json:"batch_size"  yaml:"batch_size"`
	BatchCount int           `json:"batch_count" yaml:"batch_count"`
	Batches    []BatchResult `json:"batches,omitempty" yaml:"batches,omitempty"`
	Elapsed    time.Duration `json:"elapsed_ns"  yaml:"elapsed_ns"`
}

// Engine computes weighted averages of a measure over collections of T.
// An Engine holds no per-call state and may be shared between goroutines.
type Engine[T any] struct {
	measure    MeasureFunc[T]
	pool       *WorkerPool
	scheduler  *CooperativeScheduler
	onProgress batch.ProgressCallback
	logger     zerolog.Logger
}

// New creates an Engine that reads each record's measure with measure.
func New[T any](measure MeasureFunc[T], opts Options) (*Engine[T], error) {
	if measure == nil {
		return nil, ErrNilMeasure
	}

	return &Engine[T]{
		measure:   measure,
		pool:      NewWorkerPool(opts.Workers),
		scheduler: NewCooperativeScheduler(opts.MaxInFlight),
		logger:    zerolog.Nop(),
	}, nil
}

// WithProgressCallback sets a callback invoked each time a batch resolves.
func (e *Engine[T]) WithProgressCallback(callback batch.ProgressCallback) *Engine[T] {
	e.onProgress = callback
	return e
}

// WithLogger sets the logger used when the call context carries none.
func (e *Engine[T]) WithLogger(logger zerolog.Logger) *Engine[T] {
	e.logger = logger
	return e
}

// ComputeAverage returns the weighted mean of the measure over records, reducing
// batches of batchSize on the parallel worker pool.
func (e *Engine[T]) ComputeAverage(ctx context.Context, records []T, batchSize int) (float64, error) {
	summary, err := e.Summarize(ctx, ModeParallel, records, batchSize)
	if err != nil {
		return 0, err
	}
	return summary.Average, nil
}

// ComputeAverageAsync returns the same value as ComputeAverage, reducing batches on
// the cooperative scheduler.
func (e *Engine[T]) ComputeAverageAsync(ctx context.Context, records []T, batchSize int) (float64, error) {
	summary, err := e.Summarize(ctx, ModeCooperative, records, batchSize)
	if err != nil {
		return 0, err
	}
	return summary.Average, nil
}

// Summarize runs one aggregation call with the given mode and returns the global
// result together with the per-batch breakdown.
func (e *Engine[T]) Summarize(ctx context.Context, mode Mode, records []T, batchSize int) (*Summary, error) {
	strategy, err := e.strategy(mode)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, strategy, records, batchSize)
}

func (e *Engine[T]) strategy(mode Mode) (Strategy, error) {
	switch mode {
	case ModeParallel:
		return e.pool, nil
	case ModeCooperative:
		return e.scheduler, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

func (e *Engine[T]) run(ctx context.Context, strategy Strategy, records []T, batchSize int) (*Summary, error) {
	batches, err := batch.Split(records, batchSize)
	if err != nil {
		return nil, err
	}

	logger := e.loggerFor(ctx).With().
		Str("mode", string(strategy.Mode())).
		Int("records", len(records)).
		Int("batch_size", batchSize).
		Int("batches", len(batches)).
		Logger()
	ctx = logger.WithContext(ctx)

	progress := batch.NewProgress(len(records), batchSize)
	results := make([]BatchResult, len(batches))
	tasks := make([]Task, len(batches))
	for i, items := range batches {
		start := i * batchSize
		tasks[i] = func() error {
			result, reduceErr := reduce(i, start, items, e.measure)
			if reduceErr != nil {
				progress.AddFailed()
				e.notify(progress)
				return reduceErr
			}
			results[i] = result
			progress.AddProcessed(result.Count)
			e.notify(progress)
			return nil
		}
	}

	started := time.Now()
	errs := strategy.Run(ctx, tasks)
	elapsed := time.Since(started)

	if err = collectFailures(errs); err != nil {
		var rerr *ReductionError
		if errors.As(err, &rerr) {
			logger.Warn().
				Int("failed_batches", len(rerr.Failures)).
				Err(err).
				Msg("aggregation failed")
		}
		return nil, err
	}

	summary := &Summary{
		Mode:       strategy.Mode(),
		Average:    Aggregate(results),
		Records:    len(records),
		BatchSize:  batchSize,
		BatchCount: len(batches),
		Batches:    results,
		Elapsed:    elapsed,
	}

	logger.Debug().
		Float64("average", summary.Average).
		Dur("elapsed", elapsed).
		Msg("aggregation complete")

	return summary, nil
}

func (e *Engine[T]) notify(progress *batch.Progress) {
	if e.onProgress != nil {
		e.onProgress(progress)
	}
}

// loggerFor prefers the logger attached to ctx and falls back to the engine's own.
func (e *Engine[T]) loggerFor(ctx context.Context) zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return *l
	}
	return e.logger
}
