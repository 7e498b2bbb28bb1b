// Package engine computes record-weighted averages over batched collections.
//
// A collection is split into fixed-size batches (see package batch), each batch is
// reduced to a BatchResult by an independent unit of work, and the batch results are
// combined by Aggregate into one global mean. Two interchangeable Strategy
// implementations dispatch the units of work:
//
//   - WorkerPool runs batches on a bounded set of goroutines in parallel.
//   - CooperativeScheduler runs batches one after another on a single goroutine
//     locked to its OS thread, with the caller suspended at the join point.
//
// The reducer and the aggregator are shared, so both strategies produce bit-identical
// results for the same input and batch size. Dispatched work is never cancelled: once
// a call has validated its batch size, every batch is reduced before it returns.
package engine
