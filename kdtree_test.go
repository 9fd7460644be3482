package m3w

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// --- Construction tests ---

func TestKDTree_Construction_BasicProperties(t *testing.T) {
	data := []float64{
		0, 0,
		1, 0,
		2, 0,
		0, 3,
		1, 3,
		2, 3,
	}
	n := 6
	tree := NewKDTree(data, n, 2, EuclideanMetric{}, 2)

	if tree.NumPoints() != n {
		t.Errorf("NumPoints() = %d, want %d", tree.NumPoints(), n)
	}
	if tree.NumNodes() < 3 {
		t.Errorf("NumNodes() = %d, want >= 3", tree.NumNodes())
	}

	seen := make(map[int]bool)
	for _, v := range tree.idxArray {
		if v < 0 || v >= n || seen[v] {
			t.Errorf("idxArray is not a permutation: %v", tree.idxArray)
			break
		}
		seen[v] = true
	}
}

func TestKDTree_Construction_LeafSize1(t *testing.T) {
	data := []float64{0, 0, 1, 1, 2, 2, 3, 3}
	tree := NewKDTree(data, 4, 2, EuclideanMetric{}, 1)

	for id := 0; id < len(tree.nodes); id++ {
		nd := tree.nodes[id]
		if nd.isLeaf && nd.idxEnd-nd.idxStart != 1 {
			t.Errorf("leaf %d has %d points, want 1", id, nd.idxEnd-nd.idxStart)
		}
	}
}

func TestKDTree_Construction_SinglePoint(t *testing.T) {
	tree := NewKDTree([]float64{5, 5}, 1, 2, EuclideanMetric{}, 10)
	if tree.NumPoints() != 1 || tree.NumNodes() != 1 {
		t.Errorf("got %d points in %d nodes, want 1 in 1", tree.NumPoints(), tree.NumNodes())
	}
}

// --- KNN query tests ---

func TestKDTree_KNN_BruteForceMatch(t *testing.T) {
	data := []float64{
		0, 0,
		3, 0,
		0, 4,
		3, 4,
		1.5, 2,
	}
	n, dims := 5, 2

	for _, metric := range []DistanceMetric{
		EuclideanMetric{},
		ManhattanMetric{},
		ChebyshevMetric{},
		MinkowskiMetric{P: 3},
	} {
		tree := NewKDTree(data, n, dims, metric, 1)
		for k := 1; k < n; k++ {
			indices, distances := tree.QueryKNN(data, n, k, true)
			for q := 0; q < n; q++ {
				bruteIdx, bruteDist := bruteForceKNN(data, n, dims, q, k, metric)
				if !knnResultsMatch(indices[q], distances[q], bruteIdx, bruteDist, floatTol) {
					t.Errorf("metric=%T k=%d query=%d: tree KNN doesn't match brute force.\n  tree: idx=%v dist=%v\n  brute: idx=%v dist=%v",
						metric, k, q, indices[q], distances[q], bruteIdx, bruteDist)
				}
			}
		}
	}
}

func TestKDTree_KNN_RandomData(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	n, dims := 300, 3
	data := make([]float64, n*dims)
	for i := range data {
		data[i] = rng.Float64()
	}

	tree := NewKDTree(data, n, dims, EuclideanMetric{}, 8)
	indices, distances := tree.QueryKNN(data, n, 10, true)
	for q := 0; q < n; q++ {
		bruteIdx, bruteDist := bruteForceKNN(data, n, dims, q, 10, EuclideanMetric{})
		if !knnResultsMatch(indices[q], distances[q], bruteIdx, bruteDist, floatTol) {
			t.Fatalf("query %d: tree idx=%v brute idx=%v", q, indices[q], bruteIdx)
		}
	}
}

// Ties at equal distance are broken by ascending row index, regardless of
// how the tree partitions the rows.
func TestKDTree_KNN_TieBreakByIndex(t *testing.T) {
	// Four points at distance 1 from the origin, origin last.
	data := []float64{
		1, 0,
		0, 1,
		-1, 0,
		0, -1,
		0, 0,
	}
	for _, leaf := range []int{1, 2, 40} {
		tree := NewKDTree(data, 5, 2, EuclideanMetric{}, leaf)
		indices, _ := tree.QueryKNN(data, 5, 2, true)
		if diff := cmp.Diff([]int{0, 1}, indices[4]); diff != "" {
			t.Errorf("leaf=%d: origin neighbors mismatch (-want +got):\n%s", leaf, diff)
		}
	}
}

func TestKDTree_KNN_SkipSelfWithDuplicates(t *testing.T) {
	data := []float64{5, 5, 5, 5, 5, 5, 5, 5}
	tree := NewKDTree(data, 4, 2, EuclideanMetric{}, 2)

	indices, distances := tree.QueryKNN(data, 4, 3, true)
	for q := 0; q < 4; q++ {
		if len(indices[q]) != 3 {
			t.Fatalf("query %d: expected 3 results, got %d", q, len(indices[q]))
		}
		for j, idx := range indices[q] {
			if idx == q {
				t.Errorf("query %d returned itself", q)
			}
			if distances[q][j] != 0 {
				t.Errorf("query %d: expected distance 0, got %v", q, distances[q][j])
			}
		}
	}
}

func TestKDTree_KNN_ExternalQuery(t *testing.T) {
	data := []float64{0, 0, 1, 0, 5, 5}
	tree := NewKDTree(data, 3, 2, EuclideanMetric{}, 1)

	query := []float64{0.9, 0, 4, 4}
	indices, distances := tree.QueryKNN(query, 2, 3, false)
	if diff := cmp.Diff([]int{1, 0, 2}, indices[0]); diff != "" {
		t.Errorf("query 0 mismatch (-want +got):\n%s", diff)
	}
	if indices[1][0] != 2 {
		t.Errorf("query 1 nearest = %d, want 2", indices[1][0])
	}
	if !almostEqual(distances[0][0], 0.1, 1e-12) {
		t.Errorf("query 0 nearest distance = %v, want 0.1", distances[0][0])
	}
}

// --- Helpers ---

// bruteForceKNN returns the k nearest rows to row queryIdx, excluding itself,
// ordered by (distance, index).
func bruteForceKNN(data []float64, n, dims, queryIdx, k int, metric DistanceMetric) ([]int, []float64) {
	query := data[queryIdx*dims : (queryIdx+1)*dims]
	var all []knnItem
	for i := 0; i < n; i++ {
		if i == queryIdx {
			continue
		}
		all = append(all, knnItem{index: i, dist: metric.Distance(query, data[i*dims:(i+1)*dims])})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].closer(all[j]) })
	k = min(k, len(all))
	idx := make([]int, k)
	dists := make([]float64, k)
	for i := 0; i < k; i++ {
		idx[i] = all[i].index
		dists[i] = all[i].dist
	}
	return idx, dists
}

// knnResultsMatch checks that two KNN results agree on distances (indices
// may differ when distances are tied).
func knnResultsMatch(idx1 []int, dist1 []float64, idx2 []int, dist2 []float64, tol float64) bool {
	if len(dist1) != len(dist2) || len(idx1) != len(idx2) {
		return false
	}
	for i := range dist1 {
		if !almostEqual(dist1[i], dist2[i], tol) {
			return false
		}
	}
	return true
}
