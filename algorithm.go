package m3w

import "fmt"

// Algorithm selects the nearest-neighbor search strategy.
type Algorithm string

const (
	AlgorithmAuto     Algorithm = "auto"
	AlgorithmBrute    Algorithm = "brute"
	AlgorithmKDTree   Algorithm = "kdtree"
	AlgorithmBallTree Algorithm = "balltree"
)

// selectSearcher resolves cfg.Algorithm into a NeighborSearcher. Auto picks
// the KD-tree for axis-decomposable metrics on low-dimensional data, the
// ball tree for built-in metrics on high-dimensional data and the
// brute-force searcher for custom metrics. A caller-supplied cfg.Searcher
// wins.
func selectSearcher(cfg Config, dims int) (NeighborSearcher, error) {
	if cfg.Searcher != nil {
		return cfg.Searcher, nil
	}

	kd := KDTreeSearcher{Metric: cfg.Metric, LeafSize: cfg.LeafSize}
	ball := BallTreeSearcher{Metric: cfg.Metric, LeafSize: cfg.LeafSize}
	brute := BruteForceSearcher{Metric: cfg.Metric, Workers: cfg.Workers}

	switch cfg.Algorithm {
	case AlgorithmAuto:
		if !KDTreeValidMetric(cfg.Metric) {
			return brute, nil
		}
		if dims <= 60 {
			return kd, nil
		}
		return ball, nil
	case AlgorithmBallTree:
		return ball, nil
	case AlgorithmKDTree:
		if !KDTreeValidMetric(cfg.Metric) {
			return nil, fmt.Errorf("%w: metric %T is not supported by the KD-tree", ErrConfiguration, cfg.Metric)
		}
		return kd, nil
	default:
		return brute, nil
	}
}
