// Package m3w implements Multistep Three-Way clustering (M3W), a
// density-based border-peeling algorithm.
//
// The active point set is peeled iteratively: every point is scored from
// its k-NN distances (low score = border-like), the lowest-scoring points
// are removed and recorded as a border layer, and each removed point is
// linked to its nearest surviving neighbor inside an adaptive link
// threshold. What survives is a core skeleton, which is merged into
// clusters with a disjoint set. Border layers are then reattached in
// reverse peel order by k-core-neighbor voting; unambiguous points are
// promoted to core, ambiguous ones join every cluster in the ambiguity band.
//
// Basic usage:
//
//	cfg := m3w.DefaultConfig()
//	cfg.K = 10
//	result, err := m3w.Cluster(data, cfg)
//	// result.Labels[i] is the cluster ID for point i (-1 = noise)
//	// result.Membership.Of(i) lists every cluster point i belongs to
//
// # Neighbor search
//
// By default (Algorithm: "auto") Cluster answers neighbor queries with a
// KD-tree for the built-in metrics on data of up to 60 dimensions, a ball
// tree for the built-in metrics above that, and a parallel brute-force scan
// for custom DistanceFunc metrics. Any NeighborSearcher can be supplied
// through Config.Searcher; searchers that also implement RangeSearcher let
// the core merge use radius queries.
package m3w
