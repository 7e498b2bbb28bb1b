// Package batch splits ordered record collections into contiguous fixed-size batches.
//
// Batches partition the input exactly: every item belongs to exactly one batch, batch
// order matches input order, and concatenating the batches reconstructs the input.
// Key features:
//   - Explicit batch size on every call (no package-level default state)
//   - Zero-copy batches that share the caller's backing array
//   - Thread-safe progress tracking for concurrent consumers
//
// Batching never changes the numeric outcome of an aggregation; it only decides how
// the work is divided between units of execution.
package batch
