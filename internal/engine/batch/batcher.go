package batch

import (
	"errors"
	"fmt"
)

// Batch size limits.
const (
	// DefaultBatchSize is the batch size callers pass when they have no preference.
	DefaultBatchSize = 10

	// MinBatchSize is the minimum allowed batch size.
	MinBatchSize = 1
)

// ErrInvalidBatchSize is returned when a batch size below MinBatchSize is requested.
var ErrInvalidBatchSize = errors.New("batch size must be a positive integer")

// ValidateSize returns ErrInvalidBatchSize (wrapped with the offending value) when
// size is not a positive integer.
func ValidateSize(size int) error {
	if size < MinBatchSize {
		return fmt.Errorf("%w: got %d", ErrInvalidBatchSize, size)
	}
	return nil
}

// Split partitions items into contiguous batches of size items each; the last batch
// holds the remainder. An empty input yields zero batches.
//
// The returned batches are sub-slices of items with their capacity clipped, so an
// append on one batch can never overwrite its neighbour.
func Split[T any](items []T, size int) ([][]T, error) {
	bounds, err := Bounds(len(items), size)
	if err != nil {
		return nil, err
	}

	batches := make([][]T, len(bounds))
	for i, b := range bounds {
		batches[i] = items[b[0]:b[1]:b[1]]
	}
	return batches, nil
}

// Bounds returns the [start, end) index pairs of every batch for totalItems items.
func Bounds(totalItems, size int) ([][2]int, error) {
	if err := ValidateSize(size); err != nil {
		return nil, err
	}

	total := Count(totalItems, size)
	bounds := make([][2]int, total)
	for i := range total {
		start := i * size
		end := min(start+size, totalItems)
		bounds[i] = [2]int{start, end}
	}
	return bounds, nil
}

// Count returns the number of batches needed for totalItems items, ceil(totalItems/size).
// It returns 0 for a non-positive size or item count.
func Count(totalItems, size int) int {
	if size < MinBatchSize || totalItems <= 0 {
		return 0
	}
	batches := totalItems / size
	if totalItems%size > 0 {
		batches++
	}
	return batches
}
