package m3w

import (
	"fmt"
	"sort"
)

// Neighbors holds, for each query row, the indices (into the train view)
// and distances of its nearest neighbors sorted by (distance, index).
type Neighbors struct {
	Indices   [][]int
	Distances [][]float64
}

// Len returns the number of query rows.
func (nb *Neighbors) Len() int { return len(nb.Indices) }

// NeighborSearcher is the nearest-neighbor oracle consumed by the pipeline.
//
// KNN returns the k nearest neighbors of every row of pts among the other
// rows of pts (self excluded). Query returns the k nearest rows of train for
// every row of query. Both return ErrInfeasibleNeighborQuery when k cannot be
// satisfied.
type NeighborSearcher interface {
	KNN(pts *Points, k int) (*Neighbors, error)
	Query(train, query *Points, k int) (*Neighbors, error)
}

// RangeSearcher is implemented by searchers that answer fixed-radius
// queries. Within returns, for every row i of pts, the other rows of pts at
// distance <= radii[i], sorted by (distance, index). Core merging uses it
// when the searcher provides it and falls back to a full KNN otherwise.
type RangeSearcher interface {
	Within(pts *Points, radii []float64) [][]int
}

func checkSelfQuery(pts *Points, k int) error {
	if pts.N < 2 || k < 1 || k >= pts.N {
		return fmt.Errorf("%w: k=%d with %d points", ErrInfeasibleNeighborQuery, k, pts.N)
	}
	return nil
}

func checkCrossQuery(train *Points, k int) error {
	if train.N < 1 || k < 1 || k > train.N {
		return fmt.Errorf("%w: k=%d with %d training points", ErrInfeasibleNeighborQuery, k, train.N)
	}
	return nil
}

// KDTreeSearcher answers neighbor queries with a KD-tree built per call.
type KDTreeSearcher struct {
	Metric   DistanceMetric
	LeafSize int
}

func (s KDTreeSearcher) KNN(pts *Points, k int) (*Neighbors, error) {
	if err := checkSelfQuery(pts, k); err != nil {
		return nil, err
	}
	tree := NewKDTree(pts.Data, pts.N, pts.Dims, s.Metric, s.LeafSize)
	idx, dist := tree.QueryKNN(pts.Data, pts.N, k, true)
	return &Neighbors{Indices: idx, Distances: dist}, nil
}

func (s KDTreeSearcher) Query(train, query *Points, k int) (*Neighbors, error) {
	if err := checkCrossQuery(train, k); err != nil {
		return nil, err
	}
	tree := NewKDTree(train.Data, train.N, train.Dims, s.Metric, s.LeafSize)
	idx, dist := tree.QueryKNN(query.Data, query.N, k, false)
	return &Neighbors{Indices: idx, Distances: dist}, nil
}

func (s KDTreeSearcher) Within(pts *Points, radii []float64) [][]int {
	tree := NewKDTree(pts.Data, pts.N, pts.Dims, s.Metric, s.LeafSize)
	return tree.QueryRadius(pts.Data, pts.N, radii, true)
}

// BallTreeSearcher answers neighbor queries with a ball tree built per
// call. It accepts any true metric and prunes better than the KD-tree on
// high-dimensional data.
type BallTreeSearcher struct {
	Metric   DistanceMetric
	LeafSize int
}

func (s BallTreeSearcher) KNN(pts *Points, k int) (*Neighbors, error) {
	if err := checkSelfQuery(pts, k); err != nil {
		return nil, err
	}
	tree := NewBallTree(pts.Data, pts.N, pts.Dims, s.Metric, s.LeafSize)
	idx, dist := tree.QueryKNN(pts.Data, pts.N, k, true)
	return &Neighbors{Indices: idx, Distances: dist}, nil
}

func (s BallTreeSearcher) Query(train, query *Points, k int) (*Neighbors, error) {
	if err := checkCrossQuery(train, k); err != nil {
		return nil, err
	}
	tree := NewBallTree(train.Data, train.N, train.Dims, s.Metric, s.LeafSize)
	idx, dist := tree.QueryKNN(query.Data, query.N, k, false)
	return &Neighbors{Indices: idx, Distances: dist}, nil
}

func (s BallTreeSearcher) Within(pts *Points, radii []float64) [][]int {
	tree := NewBallTree(pts.Data, pts.N, pts.Dims, s.Metric, s.LeafSize)
	return tree.QueryRadius(pts.Data, pts.N, radii, true)
}

// BruteForceSearcher computes every query-to-train distance. It works with
// any metric and splits query rows across Workers goroutines.
type BruteForceSearcher struct {
	Metric  DistanceMetric
	Workers int
}

func (s BruteForceSearcher) KNN(pts *Points, k int) (*Neighbors, error) {
	if err := checkSelfQuery(pts, k); err != nil {
		return nil, err
	}
	return s.search(pts, pts, k, true), nil
}

func (s BruteForceSearcher) Query(train, query *Points, k int) (*Neighbors, error) {
	if err := checkCrossQuery(train, k); err != nil {
		return nil, err
	}
	return s.search(train, query, k, false), nil
}

func (s BruteForceSearcher) Within(pts *Points, radii []float64) [][]int {
	out := make([][]int, pts.N)
	parallelRows(pts.N, s.Workers, func(start, end int) {
		var found []knnItem
		for q := start; q < end; q++ {
			found = found[:0]
			row := pts.Row(q)
			for i := 0; i < pts.N; i++ {
				if i == q {
					continue
				}
				if d := s.Metric.Distance(row, pts.Row(i)); d <= radii[q] {
					found = append(found, knnItem{index: i, dist: d})
				}
			}
			out[q] = sortedIndices(found)
		}
	})
	return out
}

func (s BruteForceSearcher) search(train, query *Points, k int, skipSelf bool) *Neighbors {
	nb := &Neighbors{
		Indices:   make([][]int, query.N),
		Distances: make([][]float64, query.N),
	}
	parallelRows(query.N, s.Workers, func(start, end int) {
		cands := make([]knnItem, 0, train.N)
		for q := start; q < end; q++ {
			cands = cands[:0]
			row := query.Row(q)
			for i := 0; i < train.N; i++ {
				if skipSelf && i == q {
					continue
				}
				cands = append(cands, knnItem{index: i, dist: s.Metric.Distance(row, train.Row(i))})
			}
			sort.Slice(cands, func(a, b int) bool { return cands[a].closer(cands[b]) })
			idx := make([]int, k)
			dist := make([]float64, k)
			for j := 0; j < k; j++ {
				idx[j] = cands[j].index
				dist[j] = cands[j].dist
			}
			nb.Indices[q] = idx
			nb.Distances[q] = dist
		}
	})
	return nb
}
