package engine

// Aggregate combines batch results into the record-weighted global mean,
// Σ(mean_i × count_i) / Σ(count_i). Each result carries its exact Sum, so the
// combination is taken over sums rather than re-multiplied means. Results are folded
// in slice order, which keeps the floating-point rounding independent of which
// strategy produced them. It returns 0 when no records were reduced.
func Aggregate(results []BatchResult) float64 {
	var (
		sum   float64
		count int
	)
	for _, r := range results {
		sum += r.Sum
		count += r.Count
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// Mean computes the weighted mean directly from the unbatched collection. It is the
// reference Aggregate must agree with and is used to cross-check strategies.
func Mean[T any](records []T, measure MeasureFunc[T]) (float64, error) {
	result, err := reduce(0, 0, records, measure)
	if err != nil {
		return 0, collectFailures([]error{err})
	}
	return result.Mean, nil
}
