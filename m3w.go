package m3w

import (
	"fmt"
	"math"
	"runtime"

	"go.uber.org/zap"
)

// ThresholdEstimator selects how link thresholds of surviving points are
// re-estimated after each peeling iteration.
type ThresholdEstimator string

const (
	// EstimatorRegression fits a k-NN regressor on the link thresholds of
	// peeled points and predicts at the surviving points.
	EstimatorRegression ThresholdEstimator = "regression"

	// EstimatorInterpolation samples, for each surviving point, the distance
	// to its nearest peeled neighbor at that neighbor's position and
	// interpolates the sample field (nearest method) at the survivors.
	EstimatorInterpolation ThresholdEstimator = "interpolation"
)

// StopReason records why the peeling loop ended.
type StopReason string

const (
	StopConverged     StopReason = "converged"
	StopMaxIterations StopReason = "max_iterations"
	StopDepleted      StopReason = "depleted"
)

// Config controls M3W clustering behavior.
// Start with [DefaultConfig] and override the fields you need.
type Config struct {
	// K is the neighbor count used for border scoring, link-threshold
	// regression and reattachment voting. Clamped to the available points
	// at each step. Must be >= 1. Default: 8.
	K int

	// Percentile is the fraction of the active points peeled per iteration.
	// 0 switches to predicate mode (see Threshold and Predicate).
	// Must be in [0, 1). Default: 0.1.
	Percentile float64

	// Threshold is used in predicate mode when Predicate is nil: points with
	// a border score strictly above Threshold are kept. Default: 0.
	Threshold float64

	// Predicate overrides Threshold in predicate mode. It reports whether a
	// point with the given border score stays in the active set.
	Predicate func(score float64) bool

	// MaxIterations caps the number of peeling iterations. Must be >= 1.
	// Default: 3.
	MaxIterations int

	// MinIterations is the number of iterations that must run before the
	// mean-border-ratio stop may fire. Must be >= 0. Default: 3.
	MinIterations int

	// MeanBorderEps enables the mean-border-ratio stop when > 0: peeling
	// ends once the change between consecutive ratios of mean peeled border
	// scores exceeds it. Must be >= 0. Default: 0 (disabled).
	MeanBorderEps float64

	// DistThreshold is the global link distance. It initializes every
	// point's link threshold and caps re-estimated thresholds. 0 means
	// estimate it from the data with EstimateDistThreshold.
	// Must be >= 0 and finite. Default: 0.
	DistThreshold float64

	// LinkExpansionFactor scales re-estimated link thresholds before they
	// are capped by DistThreshold. Must be > 0. Default: 1.6.
	LinkExpansionFactor float64

	// MinClusterSize is the smallest number of core points that forms a
	// cluster; smaller core groups become noise. Must be >= 1. Default: 2.
	MinClusterSize int

	// CorePointsThreshold (α) is the mean neighbor membership at or above
	// which a reattached border point is promoted to a core point.
	// Must be >= 0. Default: 0.6.
	CorePointsThreshold float64

	// AmbiguityThreshold (β) sets the ambiguity band β/C around the best
	// cluster's mean membership. A point is promoted when at most one
	// cluster lies in the band; otherwise it joins every cluster in the
	// band as a border point. Must be >= 0. Default: 0.
	AmbiguityThreshold float64

	// ConvergenceConstant stops peeling when fewer than this many points
	// were peeled in an iteration. Must be >= 0. Default: 0 (never).
	ConvergenceConstant int

	// StoppingPercentile stops peeling once fewer than
	// StoppingPercentile * n points remain active. Must be in [0, 1].
	// Default: 0.01.
	StoppingPercentile float64

	// SkipCoreMerge disables union-find merging of the surviving core
	// points. Default: false.
	SkipCoreMerge bool

	// KeepUnlinkedAsCore holds peeled points that found no point to link
	// to aside as core points instead of recording them in a border layer.
	// Default: false.
	KeepUnlinkedAsCore bool

	// CumulativeThresholdTraining trains the link-threshold estimator on
	// every point peeled so far rather than on the latest layer only.
	// Default: false.
	CumulativeThresholdTraining bool

	// ThresholdEstimator selects how link thresholds are re-estimated.
	// Default: EstimatorRegression.
	ThresholdEstimator ThresholdEstimator

	// Metric is the distance function. Default: EuclideanMetric.
	Metric DistanceMetric

	// Algorithm selects the nearest-neighbor strategy: "auto", "brute",
	// "kdtree" or "balltree". Ignored when Searcher is set. Default: "auto".
	Algorithm Algorithm

	// Searcher overrides the built-in nearest-neighbor oracle.
	Searcher NeighborSearcher

	// Scorer overrides the border scoring function.
	// Default: LocalScalingScorer.
	Scorer BorderScorer

	// LeafSize is the maximum number of points in a KD-tree or ball tree leaf.
	// Must be >= 1. Default: 40.
	LeafSize int

	// Workers controls the goroutines used for brute-force neighbor search
	// and border scoring. 0 means runtime.NumCPU(). Default: 0.
	Workers int

	// Logger receives progress and degraded-path reports. nil discards.
	Logger *zap.Logger
}

// Result contains the output of M3W clustering.
type Result struct {
	// Labels assigns each point its highest-indexed cluster, or -1 for
	// points that belong to no cluster.
	Labels []int

	// Membership is the C×N cluster membership table. A border point may
	// belong to several clusters.
	Membership *Membership

	// CorePoints lists the original indices of all core points: the merged
	// skeleton followed by border points promoted during reattachment.
	CorePoints []int

	// SkeletonPoints lists the core points that entered the merge step.
	SkeletonPoints []int

	// Layers holds the original indices peeled at each iteration, in peel
	// order.
	Layers [][]int

	// LayerScores holds the border scores of the peeled points of each
	// layer, aligned with Layers.
	LayerScores [][]float64

	// Links records the association of each linked peeled point.
	Links []Link

	// LinkThresholds is the final per-point link threshold.
	LinkThresholds []float64

	// DistThreshold is the global link distance used for the run.
	DistThreshold float64

	// Iterations is the number of peeling iterations that ran.
	Iterations int

	// Stop is the reason the peeling loop ended.
	Stop StopReason

	// SetsBeforeMerge and SetsAfterMerge are the disjoint-set class counts
	// around the core merge.
	SetsBeforeMerge int
	SetsAfterMerge  int
}

// DefaultConfig returns a Config with the parameters the reference runs use.
func DefaultConfig() Config {
	return Config{
		K:                   8,
		Percentile:          0.1,
		MaxIterations:       3,
		MinIterations:       3,
		LinkExpansionFactor: 1.6,
		MinClusterSize:      2,
		CorePointsThreshold: 0.6,
		StoppingPercentile:  0.01,
		ThresholdEstimator:  EstimatorRegression,
		Metric:              EuclideanMetric{},
		Algorithm:           AlgorithmAuto,
		LeafSize:            40,
	}
}

// validateConfig checks that cfg fields are valid and returns a descriptive error if not.
func validateConfig(cfg *Config) error {
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%w: "+format, append([]any{ErrConfiguration}, args...)...)
	}
	switch {
	case cfg.K < 1:
		return bad("K must be >= 1, got %d", cfg.K)
	case cfg.Percentile < 0 || cfg.Percentile >= 1 || math.IsNaN(cfg.Percentile):
		return bad("Percentile must be in [0, 1), got %f", cfg.Percentile)
	case cfg.MaxIterations < 1:
		return bad("MaxIterations must be >= 1, got %d", cfg.MaxIterations)
	case cfg.MinIterations < 0:
		return bad("MinIterations must be >= 0, got %d", cfg.MinIterations)
	case cfg.MeanBorderEps < 0:
		return bad("MeanBorderEps must be >= 0, got %f", cfg.MeanBorderEps)
	case cfg.DistThreshold < 0 || math.IsInf(cfg.DistThreshold, 0) || math.IsNaN(cfg.DistThreshold):
		return bad("DistThreshold must be finite and >= 0, got %f", cfg.DistThreshold)
	case !(cfg.LinkExpansionFactor > 0):
		return bad("LinkExpansionFactor must be > 0, got %f", cfg.LinkExpansionFactor)
	case cfg.MinClusterSize < 1:
		return bad("MinClusterSize must be >= 1, got %d", cfg.MinClusterSize)
	case cfg.CorePointsThreshold < 0:
		return bad("CorePointsThreshold must be >= 0, got %f", cfg.CorePointsThreshold)
	case cfg.AmbiguityThreshold < 0:
		return bad("AmbiguityThreshold must be >= 0, got %f", cfg.AmbiguityThreshold)
	case cfg.ConvergenceConstant < 0:
		return bad("ConvergenceConstant must be >= 0, got %d", cfg.ConvergenceConstant)
	case cfg.StoppingPercentile < 0 || cfg.StoppingPercentile > 1:
		return bad("StoppingPercentile must be in [0, 1], got %f", cfg.StoppingPercentile)
	case cfg.LeafSize < 1:
		return bad("LeafSize must be >= 1, got %d", cfg.LeafSize)
	}
	switch cfg.ThresholdEstimator {
	case EstimatorRegression, EstimatorInterpolation:
	default:
		return bad("invalid ThresholdEstimator %q", cfg.ThresholdEstimator)
	}
	switch cfg.Algorithm {
	case AlgorithmAuto, AlgorithmBrute, AlgorithmKDTree, AlgorithmBallTree:
	default:
		return bad("invalid Algorithm %q", cfg.Algorithm)
	}
	return nil
}

// applyDefaults fills in zero-valued config fields with their defaults.
func applyDefaults(cfg *Config) {
	if cfg.Metric == nil {
		cfg.Metric = EuclideanMetric{}
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = AlgorithmAuto
	}
	if cfg.ThresholdEstimator == "" {
		cfg.ThresholdEstimator = EstimatorRegression
	}
	if cfg.LeafSize == 0 {
		cfg.LeafSize = 40
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Scorer == nil {
		cfg.Scorer = LocalScalingScorer{Workers: cfg.Workers}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
}

// thresholdPolicy returns the keep-mask policy selected by cfg.
func thresholdPolicy(cfg Config) ThresholdPolicy {
	if cfg.Percentile > 0 {
		return PercentilePolicy{Percentile: cfg.Percentile}
	}
	if cfg.Predicate != nil {
		return PredicatePolicy{Predicate: cfg.Predicate}
	}
	return PredicatePolicy{Predicate: AboveThreshold(cfg.Threshold)}
}

// emptyResult returns a Result for n points none of which is clustered.
func emptyResult(n int, stop StopReason) *Result {
	r := &Result{
		Labels:         make([]int, n),
		Membership:     NewMembership(0, n),
		LinkThresholds: make([]float64, n),
		Stop:           stop,
	}
	for i := range r.Labels {
		r.Labels[i] = -1
	}
	return r
}

// Cluster performs M3W clustering on data. Each element is a point; all
// points must have the same dimensionality and finite coordinates. Returns
// an error only for invalid configuration or malformed input.
func Cluster(data [][]float64, cfg Config) (*Result, error) {
	applyDefaults(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	n := len(data)
	if n == 0 {
		return emptyResult(0, StopDepleted), nil
	}
	dims := len(data[0])
	for i, row := range data {
		if len(row) != dims {
			return nil, fmt.Errorf("m3w: row %d has %d values, want %d", i, len(row), dims)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("m3w: row %d column %d is not finite", i, j)
			}
		}
	}

	searcher, err := selectSearcher(cfg, dims)
	if err != nil {
		return nil, err
	}
	return run(NewPoints(data), searcher, cfg), nil
}

// run executes the peel → merge → reattach pipeline on validated input.
func run(all *Points, searcher NeighborSearcher, cfg Config) *Result {
	log := cfg.Logger
	n := all.N

	distThreshold := cfg.DistThreshold
	if distThreshold == 0 {
		est, err := EstimateDistThreshold(all, cfg.K, searcher)
		if err != nil {
			log.Warn("distance threshold estimate failed, linking disabled", zap.Error(err))
		}
		distThreshold = est
		log.Info("estimated distance threshold", zap.Float64("dist_threshold", distThreshold))
	}

	p := newPeeler(all, searcher, cfg, distThreshold)
	p.run()

	ds := NewDisjointSet(n)
	skeleton := p.corePoints()
	setsBefore := ds.Count()
	if !cfg.SkipCoreMerge {
		mergeCorePoints(all, skeleton, p.links.values, ds, searcher, log)
	}
	setsAfter := ds.Count()
	log.Debug("core merge",
		zap.Int("core_points", len(skeleton)),
		zap.Int("sets_before", setsBefore),
		zap.Int("sets_after", setsAfter))

	clusters := assembleClusters(ds, skeleton, cfg.MinClusterSize)
	ra := newReattacher(all, searcher, cfg, skeleton, clusters, n)
	for i := len(p.layers) - 1; i >= 0; i-- {
		ra.reattachLayer(p.layers[i])
	}

	log.Info("clustering finished",
		zap.Int("clusters", len(clusters)),
		zap.Int("iterations", p.iterations),
		zap.String("stop", string(p.stop)),
		zap.Int("core_points", len(ra.core)))

	return &Result{
		Labels:          ra.membership.Labels(),
		Membership:      ra.membership,
		CorePoints:      ra.core,
		SkeletonPoints:  skeleton,
		Layers:          p.layers,
		LayerScores:     p.layerScores,
		Links:           p.linked,
		LinkThresholds:  p.links.values,
		DistThreshold:   distThreshold,
		Iterations:      p.iterations,
		Stop:            p.stop,
		SetsBeforeMerge: setsBefore,
		SetsAfterMerge:  setsAfter,
	}
}
