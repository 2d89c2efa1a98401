package feeds

import "sort"

// Median computes the median of scaled integer values: the middle element,
// or the average of the two middle elements on even counts. The input slice
// is not modified. Callers must guarantee that all values share the same
// decimals; the engine never renormalizes across sources.
func Median(values []int64) (int64, bool) {
	n := len(values)
	if n == 0 {
		return 0, false
	}

	sorted := make([]int64, n)
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	if n%2 == 1 {
		return sorted[n/2], true
	}

	lo, hi := sorted[n/2-1], sorted[n/2]
	return lo + (hi-lo)/2, true
}
