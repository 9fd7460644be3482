package m3w

import (
	"slices"

	"go.uber.org/zap"
)

// mergeCorePoints unions each core point with every other core point inside
// its link threshold. Searchers implementing RangeSearcher answer this with
// one radius query per point. Otherwise the full neighbor list of every core
// point is scanned up to the first neighbor beyond its threshold. Merging is
// skipped when there are fewer than two core points.
func mergeCorePoints(all *Points, core []int, thresholds []float64, ds *DisjointSet, searcher NeighborSearcher, log *zap.Logger) {
	pts := all.Rows(core)
	if pts.N < 2 {
		log.Warn("core point merge skipped", zap.Int("core_points", pts.N))
		return
	}

	if rs, ok := searcher.(RangeSearcher); ok {
		radii := make([]float64, pts.N)
		for i, o := range core {
			radii[i] = thresholds[o]
		}
		for i, nbrs := range rs.Within(pts, radii) {
			for _, nbr := range nbrs {
				ds.Union(core[i], core[nbr])
			}
		}
		return
	}

	nb, err := searcher.KNN(pts, pts.N-1)
	if err != nil {
		log.Warn("core point merge skipped", zap.Int("core_points", pts.N), zap.Error(err))
		return
	}
	for i, o := range core {
		limit := thresholds[o]
		for j, nbr := range nb.Indices[i] {
			if nb.Distances[i][j] > limit {
				break
			}
			ds.Union(o, core[nbr])
		}
	}
}

// assembleClusters groups the core points by disjoint-set class, ordered by
// smallest member, and keeps the groups with at least minSize members.
func assembleClusters(ds *DisjointSet, core []int, minSize int) [][]int {
	sorted := slices.Clone(core)
	slices.Sort(sorted)

	var clusters [][]int
	for _, g := range ds.groups(sorted) {
		if len(g) >= minSize {
			clusters = append(clusters, g)
		}
	}
	return clusters
}
