package m3w

import "sort"

// ThresholdPolicy converts border scores into a keep mask: true keeps the
// point in the active subset, false peels it.
type ThresholdPolicy interface {
	Keep(scores []float64) []bool
}

// PercentilePolicy peels the lowest-scoring fraction of points. Points are
// ranked by (score, index) ascending and the cutoff rank is
// floor(len(scores) * Percentile), capped so the highest-ranked point always
// stays. Every rank up to and including the cutoff is peeled; higher ranks
// are kept even when their score ties the cutoff value, so the outcome is
// reproducible from the sorted scores alone.
type PercentilePolicy struct {
	Percentile float64
}

func (p PercentilePolicy) Keep(scores []float64) []bool {
	n := len(scores)
	keep := make([]bool, n)
	if n == 0 {
		return keep
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] < scores[order[b]]
	})

	cutoff := min(int(float64(n)*p.Percentile), n-2)
	for rank := cutoff + 1; rank < n; rank++ {
		keep[order[rank]] = true
	}
	return keep
}

// PredicatePolicy keeps the points whose score satisfies Predicate.
type PredicatePolicy struct {
	Predicate func(score float64) bool
}

func (p PredicatePolicy) Keep(scores []float64) []bool {
	keep := make([]bool, len(scores))
	for i, s := range scores {
		keep[i] = p.Predicate(s)
	}
	return keep
}

// AboveThreshold returns a predicate keeping scores strictly above t.
func AboveThreshold(t float64) func(float64) bool {
	return func(score float64) bool { return score > t }
}
