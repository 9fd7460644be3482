package m3w

import "gonum.org/v1/gonum/stat"

// EstimateDistThreshold returns a data-driven global link distance: the mean
// plus the population standard deviation of every point's distances to its
// k nearest neighbors. k is clamped to n-1.
func EstimateDistThreshold(pts *Points, k int, searcher NeighborSearcher) (float64, error) {
	k = min(k, pts.N-1)
	nb, err := searcher.KNN(pts, k)
	if err != nil {
		return 0, err
	}

	all := make([]float64, 0, pts.N*k)
	for _, row := range nb.Distances {
		all = append(all, row...)
	}
	mean, std := stat.PopMeanStdDev(all, nil)
	return mean + std, nil
}
