package m3w

import "math"

// minLocalScale floors the local scale σ so that duplicate points (whose k-th
// neighbor distance is zero) never divide by zero.
const minLocalScale = 1e-12

// BorderScorer turns the k-NN graph of the active subset into one score per
// point: higher means more core-like, lower means more border-like. Score
// writes into scores, which has length nb.Len() and is zeroed by the caller.
type BorderScorer interface {
	Score(nb *Neighbors, scores []float64)
}

// LocalScalingScorer is the reverse-kNN exponential local-scaling transform.
// For every ordered neighbor pair (p, q) at distance d it adds
// exp(-d²/σ_p²) to q's score, where σ_p is p's distance to its k-th
// neighbor. A point is core-like when many others find it close relative to
// their own neighborhood scale.
//
// Contributions are gathered per receiving point in ascending source order,
// so results are bitwise identical for any Workers value.
type LocalScalingScorer struct {
	Workers int
}

func (s LocalScalingScorer) Score(nb *Neighbors, scores []float64) {
	n := nb.Len()
	if n == 0 {
		return
	}

	// weights[p][j] is p's contribution to its j-th neighbor.
	weights := make([][]float64, n)
	parallelRows(n, s.Workers, func(start, end int) {
		for p := start; p < end; p++ {
			dists := nb.Distances[p]
			if len(dists) == 0 {
				continue
			}
			sigma := math.Max(dists[len(dists)-1], minLocalScale)
			w := make([]float64, len(dists))
			for j, d := range dists {
				w[j] = math.Exp(-(d * d) / (sigma * sigma))
			}
			weights[p] = w
		}
	})

	// Reverse adjacency in CSR form: for each receiver q, the flat positions
	// of its incoming contributions, in ascending source order.
	offsets := make([]int, n+1)
	for p := 0; p < n; p++ {
		for _, q := range nb.Indices[p] {
			offsets[q+1]++
		}
	}
	for q := 0; q < n; q++ {
		offsets[q+1] += offsets[q]
	}
	incoming := make([]float64, offsets[n])
	fill := make([]int, n)
	copy(fill, offsets[:n])
	for p := 0; p < n; p++ {
		for j, q := range nb.Indices[p] {
			incoming[fill[q]] = weights[p][j]
			fill[q]++
		}
	}

	parallelRows(n, s.Workers, func(start, end int) {
		for q := start; q < end; q++ {
			var sum float64
			for _, w := range incoming[offsets[q]:offsets[q+1]] {
				sum += w
			}
			scores[q] = sum
		}
	})
}
