package m3w

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// twoBlobs returns n points per blob from two unit Gaussians 20 apart; the
// first n points belong to blob 0.
func twoBlobs(seed int64, n int) [][]float64 {
	rng := rand.New(rand.NewSource(seed))
	data := make([][]float64, 0, 2*n)
	for b := 0; b < 2; b++ {
		for i := 0; i < n; i++ {
			data = append(data, []float64{float64(20*b) + rng.NormFloat64(), rng.NormFloat64()})
		}
	}
	return data
}

// labelsEquivalent checks whether two label slices represent the same
// clustering up to label permutation.
func labelsEquivalent(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	ab := make(map[int]int)
	ba := make(map[int]int)
	for i := range a {
		if (a[i] == -1) != (b[i] == -1) {
			return false
		}
		if a[i] == -1 {
			continue
		}
		if m, ok := ab[a[i]]; ok && m != b[i] {
			return false
		}
		if m, ok := ba[b[i]]; ok && m != a[i] {
			return false
		}
		ab[a[i]] = b[i]
		ba[b[i]] = a[i]
	}
	return true
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"K zero", func(c *Config) { c.K = 0 }},
		{"negative percentile", func(c *Config) { c.Percentile = -0.1 }},
		{"percentile one", func(c *Config) { c.Percentile = 1 }},
		{"NaN percentile", func(c *Config) { c.Percentile = math.NaN() }},
		{"max iterations zero", func(c *Config) { c.MaxIterations = 0 }},
		{"negative min iterations", func(c *Config) { c.MinIterations = -1 }},
		{"negative mean border eps", func(c *Config) { c.MeanBorderEps = -1 }},
		{"negative dist threshold", func(c *Config) { c.DistThreshold = -1 }},
		{"infinite dist threshold", func(c *Config) { c.DistThreshold = math.Inf(1) }},
		{"zero expansion", func(c *Config) { c.LinkExpansionFactor = 0 }},
		{"min cluster size zero", func(c *Config) { c.MinClusterSize = 0 }},
		{"negative alpha", func(c *Config) { c.CorePointsThreshold = -0.1 }},
		{"negative beta", func(c *Config) { c.AmbiguityThreshold = -0.1 }},
		{"negative convergence", func(c *Config) { c.ConvergenceConstant = -1 }},
		{"stopping percentile above one", func(c *Config) { c.StoppingPercentile = 1.5 }},
		{"negative leaf size", func(c *Config) { c.LeafSize = -1 }},
		{"unknown estimator", func(c *Config) { c.ThresholdEstimator = "spline" }},
		{"unknown algorithm", func(c *Config) { c.Algorithm = "octree" }},
		{"kdtree with custom metric", func(c *Config) {
			c.Algorithm = AlgorithmKDTree
			c.Metric = DistanceFunc(func(a, b []float64) float64 { return 0 })
		}},
	}
	data := [][]float64{{0, 0}, {1, 1}, {2, 2}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			if _, err := Cluster(data, cfg); !errors.Is(err, ErrConfiguration) {
				t.Errorf("got %v, want ErrConfiguration", err)
			}
		})
	}
}

func TestCluster_MalformedInput(t *testing.T) {
	if _, err := Cluster([][]float64{{0, 0}, {1}}, DefaultConfig()); err == nil {
		t.Error("ragged rows: expected error")
	}
	if _, err := Cluster([][]float64{{0, 0}, {1, math.NaN()}}, DefaultConfig()); err == nil {
		t.Error("NaN coordinate: expected error")
	}
	if _, err := Cluster([][]float64{{math.Inf(-1)}, {1}}, DefaultConfig()); err == nil {
		t.Error("infinite coordinate: expected error")
	}
}

func TestCluster_FourPoints(t *testing.T) {
	data := [][]float64{{0, 0}, {0, 1}, {5, 5}, {5, 6}}

	for _, dist := range []float64{1.5, 2, 4.9, 0} {
		cfg := DefaultConfig()
		cfg.K = 1
		cfg.MaxIterations = 1
		// Point 1 is the only core point of the left pair after point 0 is peeled.
		cfg.MinClusterSize = 1
		cfg.DistThreshold = dist

		result, err := Cluster(data, cfg)
		if err != nil {
			t.Fatalf("dist=%v: %v", dist, err)
		}
		if diff := cmp.Diff([]int{0, 0, 1, 1}, result.Labels); diff != "" {
			t.Errorf("dist=%v: labels mismatch (-want +got):\n%s", dist, diff)
		}
		if result.Iterations != 1 || result.Stop != StopMaxIterations {
			t.Errorf("dist=%v: got %d iterations (%s)", dist, result.Iterations, result.Stop)
		}
		if diff := cmp.Diff([][]int{{0}}, result.Layers); diff != "" {
			t.Errorf("dist=%v: layers mismatch (-want +got):\n%s", dist, diff)
		}
		if diff := cmp.Diff([]Link{{From: 0, To: 1, Distance: 1}}, result.Links); diff != "" {
			t.Errorf("dist=%v: links mismatch (-want +got):\n%s", dist, diff)
		}
		if result.SetsAfterMerge != 3 {
			t.Errorf("dist=%v: SetsAfterMerge = %d, want 3", dist, result.SetsAfterMerge)
		}
	}
}

func TestCluster_IdenticalPoints(t *testing.T) {
	data := [][]float64{{1, 1}, {1, 1}, {1, 1}, {1, 1}}
	cfg := DefaultConfig()
	cfg.MinClusterSize = 1

	result, err := Cluster(data, cfg)
	if err != nil {
		t.Fatal(err)
	}
	for i, scores := range result.LayerScores {
		for _, s := range scores {
			if math.IsNaN(s) || math.IsInf(s, 0) {
				t.Errorf("layer %d has non-finite score %v", i, s)
			}
		}
	}
	if diff := cmp.Diff([]int{0, 0, 0, 0}, result.Labels); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}
}

func TestCluster_SmallInputs(t *testing.T) {
	tests := []struct {
		name string
		data [][]float64
	}{
		{"empty", nil},
		{"one point", [][]float64{{1, 2}}},
		{"two points", [][]float64{{0, 0}, {1, 0}}},
		{"three points", [][]float64{{0, 0}, {1, 0}, {0, 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Cluster(tt.data, DefaultConfig())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(result.Labels) != len(tt.data) {
				t.Fatalf("got %d labels for %d points", len(result.Labels), len(tt.data))
			}
			for i, l := range result.Labels {
				if l < -1 || l >= result.Membership.Clusters() {
					t.Errorf("label[%d] = %d out of range", i, l)
				}
			}
		})
	}
}

func TestCluster_SinglePointIsNoise(t *testing.T) {
	result, err := Cluster([][]float64{{3, 3}}, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if result.Labels[0] != -1 || result.Stop != StopDepleted {
		t.Errorf("got label %d stop %q, want -1 depleted", result.Labels[0], result.Stop)
	}
}

func TestCluster_Deterministic(t *testing.T) {
	data := twoBlobs(42, 100)

	base, err := Cluster(data, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	for _, variant := range []struct {
		name   string
		modify func(*Config)
	}{
		{"repeat", func(c *Config) {}},
		{"single worker", func(c *Config) { c.Workers = 1 }},
		{"many workers", func(c *Config) { c.Workers = 7 }},
		{"brute force", func(c *Config) { c.Algorithm = AlgorithmBrute }},
		{"ball tree", func(c *Config) { c.Algorithm = AlgorithmBallTree }},
		{"small leaves", func(c *Config) { c.LeafSize = 2 }},
	} {
		cfg := DefaultConfig()
		variant.modify(&cfg)
		got, err := Cluster(data, cfg)
		if err != nil {
			t.Fatalf("%s: %v", variant.name, err)
		}
		if diff := cmp.Diff(base.Labels, got.Labels); diff != "" {
			t.Errorf("%s: labels differ (-base +got):\n%s", variant.name, diff)
		}
		if diff := cmp.Diff(base.CorePoints, got.CorePoints); diff != "" {
			t.Errorf("%s: core points differ (-base +got):\n%s", variant.name, diff)
		}
	}
}

func TestCluster_TwoBlobs(t *testing.T) {
	const perBlob = 100
	data := twoBlobs(7, perBlob)

	result, err := Cluster(data, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	blob := func(p int) int { return p / perBlob }

	// The partition invariant holds on the result: every point is in
	// exactly one layer or in the skeleton.
	seen := make([]int, len(data))
	for _, layer := range result.Layers {
		for _, p := range layer {
			seen[p]++
		}
	}
	for _, p := range result.SkeletonPoints {
		seen[p]++
	}
	for p, c := range seen {
		if c != 1 {
			t.Errorf("point %d appears %d times across layers and skeleton", p, c)
		}
	}

	// Link thresholds never exceed the global threshold, so no skeleton
	// cluster can bridge the two blobs.
	if result.Membership.Clusters() < 2 {
		t.Fatalf("got %d clusters, want at least 2", result.Membership.Clusters())
	}
	for c := 0; c < result.Membership.Clusters(); c++ {
		side := -1
		for _, p := range result.SkeletonPoints {
			if !result.Membership.Has(c, p) {
				continue
			}
			if side == -1 {
				side = blob(p)
			} else if side != blob(p) {
				t.Errorf("cluster %d spans both blobs", c)
				break
			}
		}
	}
	for p, thr := range result.LinkThresholds {
		if thr > result.DistThreshold {
			t.Errorf("link threshold of %d is %v, above global %v", p, thr, result.DistThreshold)
		}
	}
	if result.SetsAfterMerge > result.SetsBeforeMerge {
		t.Errorf("merge increased the set count: %d -> %d", result.SetsBeforeMerge, result.SetsAfterMerge)
	}
}

func TestCluster_OptionalPaths(t *testing.T) {
	data := twoBlobs(11, 60)
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"interpolation estimator", func(c *Config) { c.ThresholdEstimator = EstimatorInterpolation }},
		{"cumulative training", func(c *Config) { c.CumulativeThresholdTraining = true }},
		{"keep unlinked", func(c *Config) { c.KeepUnlinkedAsCore = true; c.DistThreshold = 0.3 }},
		{"skip merge", func(c *Config) { c.SkipCoreMerge = true; c.MinClusterSize = 1 }},
		{"predicate mode", func(c *Config) { c.Percentile = 0; c.Threshold = 2 }},
		{"mean border stop", func(c *Config) { c.MeanBorderEps = 0.01; c.MinIterations = 1; c.MaxIterations = 6 }},
		{"manhattan", func(c *Config) { c.Metric = ManhattanMetric{} }},
		{"custom metric", func(c *Config) {
			c.Metric = DistanceFunc(func(a, b []float64) float64 { return EuclideanMetric{}.Distance(a, b) })
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			result, err := Cluster(data, cfg)
			if err != nil {
				t.Fatal(err)
			}
			if len(result.Labels) != len(data) {
				t.Fatalf("got %d labels, want %d", len(result.Labels), len(data))
			}
			if result.Iterations < 1 {
				t.Errorf("expected at least one iteration, got %d", result.Iterations)
			}
		})
	}
}

func TestCluster_SkipMergeLeavesSingletons(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SkipCoreMerge = true
	result, err := Cluster(twoBlobs(5, 40), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if result.SetsAfterMerge != result.SetsBeforeMerge {
		t.Errorf("sets changed without merging: %d -> %d", result.SetsBeforeMerge, result.SetsAfterMerge)
	}
	// Every skeleton class is a singleton, below the default minimum size.
	if result.Membership.Clusters() != 0 {
		t.Errorf("got %d clusters, want 0", result.Membership.Clusters())
	}
}

func TestCluster_CustomSearcherAndScorer(t *testing.T) {
	data := twoBlobs(9, 50)
	cfg := DefaultConfig()
	cfg.Searcher = BruteForceSearcher{Metric: EuclideanMetric{}, Workers: 3}
	cfg.Scorer = LocalScalingScorer{Workers: 3}

	got, err := Cluster(data, cfg)
	if err != nil {
		t.Fatal(err)
	}
	want, err := Cluster(data, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if !labelsEquivalent(want.Labels, got.Labels) {
		t.Errorf("custom searcher changed the clustering:\n  want %v\n  got  %v", want.Labels, got.Labels)
	}
}

func TestCluster_LogsProgress(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	cfg := DefaultConfig()
	cfg.Logger = zap.New(core)

	if _, err := Cluster(twoBlobs(1, 30), cfg); err != nil {
		t.Fatal(err)
	}
	if logs.FilterMessage("clustering finished").Len() != 1 {
		t.Error("expected one 'clustering finished' entry")
	}
	if logs.FilterMessage("peeling iteration").Len() == 0 {
		t.Error("expected per-iteration debug entries")
	}
	if logs.FilterMessage("estimated distance threshold").Len() != 1 {
		t.Error("expected the distance threshold estimate to be logged")
	}
}
