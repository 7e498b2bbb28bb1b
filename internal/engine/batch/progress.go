package batch

import (
	"sync"
	"time"
)

// percentMultiplier converts a ratio to a percentage (0-100).
const percentMultiplier = 100

// ProgressCallback is invoked after each batch resolves, successfully or not.
// It may be called concurrently from several workers; implementations should use
// Snapshot rather than reading Progress fields directly.
type ProgressCallback func(progress *Progress)

// Progress tracks how many batches of one aggregation call have resolved.
// All methods are safe for concurrent use.
type Progress struct {
	totalItems       int
	totalBatches     int
	batchSize        int
	processedItems   int
	processedBatches int
	failedBatches    int
	startTime        time.Time
	lastUpdateTime   time.Time

	mu sync.RWMutex
}

// NewProgress creates a progress tracker for totalItems items split into batches of batchSize.
func NewProgress(totalItems, batchSize int) *Progress {
	now := time.Now()
	return &Progress{
		totalItems:     totalItems,
		totalBatches:   Count(totalItems, batchSize),
		batchSize:      batchSize,
		startTime:      now,
		lastUpdateTime: now,
	}
}

// AddProcessed records a successfully reduced batch of itemsProcessed items.
func (p *Progress) AddProcessed(itemsProcessed int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.processedItems += itemsProcessed
	p.processedBatches++
	p.lastUpdateTime = time.Now()
}

// AddFailed records a batch whose reduction failed.
func (p *Progress) AddFailed() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.failedBatches++
	p.lastUpdateTime = time.Now()
}

// PercentComplete returns the share of batches that have resolved (0-100).
func (p *Progress) PercentComplete() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.percentCompleteLocked()
}

// IsComplete reports whether every batch has resolved.
func (p *Progress) IsComplete() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.processedBatches+p.failedBatches >= p.totalBatches
}

// ElapsedTime returns the time since the tracker was created.
func (p *Progress) ElapsedTime() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return time.Since(p.startTime)
}

// ItemsPerSecond returns the reduction rate in items per second.
func (p *Progress) ItemsPerSecond() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.itemsPerSecondLocked()
}

// Snapshot returns a consistent copy of the current progress state.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return ProgressSnapshot{
		TotalItems:       p.totalItems,
		ProcessedItems:   p.processedItems,
		TotalBatches:     p.totalBatches,
		ProcessedBatches: p.processedBatches,
		FailedBatches:    p.failedBatches,
		BatchSize:        p.batchSize,
		StartTime:        p.startTime,
		LastUpdateTime:   p.lastUpdateTime,
		PercentComplete:  p.percentCompleteLocked(),
		ElapsedTime:      time.Since(p.startTime),
		ItemsPerSecond:   p.itemsPerSecondLocked(),
	}
}

// ProgressSnapshot is an immutable snapshot of progress state.
type ProgressSnapshot struct {
	TotalItems       int
	ProcessedItems   int
	TotalBatches     int
	ProcessedBatches int
	FailedBatches    int
	BatchSize        int
	StartTime        time.Time
	LastUpdateTime   time.Time
	PercentComplete  float64
	ElapsedTime      time.Duration
	ItemsPerSecond   float64
}

// percentCompleteLocked must be called with mu held.
func (p *Progress) percentCompleteLocked() float64 {
	if p.totalBatches == 0 {
		return percentMultiplier
	}
	resolved := p.processedBatches + p.failedBatches
	return (float64(resolved) / float64(p.totalBatches)) * percentMultiplier
}

// itemsPerSecondLocked must be called with mu held.
func (p *Progress) itemsPerSecondLocked() float64 {
	elapsed := time.Since(p.startTime).Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(p.processedItems) / elapsed
}
