package engine

import "fmt"

// MeasureFunc extracts the numeric measure from a record.
// It must not mutate the record; it is called concurrently.
type MeasureFunc[T any] func(T) (float64, error)

// BatchResult is the statistic produced for one batch.
type BatchResult struct {
	// Index is the batch position in input order.
	Index int `json:"index" yaml:"index"`

	// Count is the number of records in the batch; it is the weight of Mean.
	Count int `json:"count" yaml:"count"`

	// Sum is the exact sum of the measure over the batch.
	Sum float64 `json:"sum" yaml:"sum"`

	// Mean is Sum/Count, or 0 for an empty batch.
	Mean float64 `json:"mean" yaml:"mean"`
}

// reduce computes the mean of the measure over items. start is the offset of the
// first item in the full collection and only feeds error messages.
func reduce[T any](index, start int, items []T, measure MeasureFunc[T]) (BatchResult, error) {
	result := BatchResult{Index: index, Count: len(items)}
	if len(items) == 0 {
		return result, nil
	}

	for offset, item := range items {
		v, err := measure(item)
		if err != nil {
			return BatchResult{Index: index}, fmt.Errorf("record %d: %w", start+offset, err)
		}
		result.Sum += v
	}

	result.Mean = result.Sum / float64(result.Count)
	return result, nil
}
