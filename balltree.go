package m3w

import (
	"container/heap"
	"math"
	"sort"
)

// ballNode describes a single node in the ball tree.
type ballNode struct {
	idxStart, idxEnd int
	isLeaf           bool
	radius           float64
}

// BallTree is a ball tree spatial index. Each node stores the centroid of
// its points and the radius of the smallest centroid-centered ball that
// encloses them, so pruning only relies on the triangle inequality and
// works with any true metric.
//
// The tree is stored as a complete binary tree in array form:
//   - node i has children at 2*i+1 and 2*i+2
//   - centroids[node*dims .. (node+1)*dims) is the centroid of node
type BallTree struct {
	data      []float64
	n         int
	dims      int
	leafSize  int
	metric    DistanceMetric
	idxArray  []int
	nodes     []ballNode
	centroids []float64
	numNodes  int
}

// NewBallTree builds a ball tree from flat row-major data with n points of
// dimensionality dims. leafSize controls the max points per leaf node.
func NewBallTree(data []float64, n, dims int, metric DistanceMetric, leafSize int) *BallTree {
	if leafSize < 1 {
		leafSize = 1
	}

	dataCopy := make([]float64, len(data))
	copy(dataCopy, data)
	idxArray := make([]int, n)
	for i := range idxArray {
		idxArray[i] = i
	}

	maxNodes := kdMaxNodes(n, leafSize)
	t := &BallTree{
		data:      dataCopy,
		n:         n,
		dims:      dims,
		leafSize:  leafSize,
		metric:    metric,
		idxArray:  idxArray,
		nodes:     make([]ballNode, maxNodes),
		centroids: make([]float64, maxNodes*dims),
	}

	if n > 0 {
		t.buildNode(0, 0, n)
		t.numNodes = t.countNodes(0)
	}
	return t
}

func (t *BallTree) countNodes(nodeID int) int {
	if nodeID >= len(t.nodes) {
		return 0
	}
	node := t.nodes[nodeID]
	if node.idxStart == 0 && node.idxEnd == 0 && nodeID != 0 {
		return 0
	}
	count := 1
	if !node.isLeaf {
		count += t.countNodes(2*nodeID + 1)
		count += t.countNodes(2*nodeID + 2)
	}
	return count
}

func (t *BallTree) buildNode(nodeID, start, end int) {
	for nodeID >= len(t.nodes) {
		t.nodes = append(t.nodes, ballNode{})
		t.centroids = append(t.centroids, make([]float64, t.dims)...)
	}

	centroid := t.centroid(nodeID)
	for j := range centroid {
		centroid[j] = 0
	}
	for i := start; i < end; i++ {
		row := t.row(t.idxArray[i])
		for j, v := range row {
			centroid[j] += v
		}
	}
	count := end - start
	for j := range centroid {
		centroid[j] /= float64(count)
	}

	var radius float64
	for i := start; i < end; i++ {
		radius = math.Max(radius, t.metric.Distance(centroid, t.row(t.idxArray[i])))
	}

	if count <= t.leafSize {
		t.nodes[nodeID] = ballNode{idxStart: start, idxEnd: end, isLeaf: true, radius: radius}
		return
	}
	t.nodes[nodeID] = ballNode{idxStart: start, idxEnd: end, radius: radius}

	t.sortByDimension(start, end, t.spreadDimension(start, end))
	mid := start + count/2
	t.buildNode(2*nodeID+1, start, mid)
	t.buildNode(2*nodeID+2, mid, end)
}

// spreadDimension returns the dimension with the greatest spread among the
// points in idxArray[start:end].
func (t *BallTree) spreadDimension(start, end int) int {
	best := 0
	bestSpread := -1.0
	for d := 0; d < t.dims; d++ {
		lo, hi := math.Inf(1), math.Inf(-1)
		for i := start; i < end; i++ {
			v := t.data[t.idxArray[i]*t.dims+d]
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		if hi-lo > bestSpread {
			bestSpread = hi - lo
			best = d
		}
	}
	return best
}

func (t *BallTree) sortByDimension(start, end, dim int) {
	sub := t.idxArray[start:end]
	dims := t.dims
	data := t.data
	sort.SliceStable(sub, func(i, j int) bool {
		return data[sub[i]*dims+dim] < data[sub[j]*dims+dim]
	})
}

func (t *BallTree) row(i int) []float64 { return t.data[i*t.dims : (i+1)*t.dims] }

func (t *BallTree) centroid(node int) []float64 {
	return t.centroids[node*t.dims : (node+1)*t.dims]
}

// NumPoints returns the number of indexed points.
func (t *BallTree) NumPoints() int { return t.n }

// NumNodes returns the number of initialized tree nodes.
func (t *BallTree) NumNodes() int { return t.numNodes }

// minDist returns a lower bound on the distance between point and any point
// in node.
func (t *BallTree) minDist(node int, point []float64) float64 {
	if node >= len(t.nodes) {
		return math.Inf(1)
	}
	return math.Max(0, t.metric.Distance(point, t.centroid(node))-t.nodes[node].radius)
}

// QueryKNN finds the k nearest indexed points for each row in queryData,
// sorted by (distance, row index). skipSelf behaves as in KDTree.QueryKNN.
func (t *BallTree) QueryKNN(queryData []float64, queryRows, k int, skipSelf bool) ([][]int, [][]float64) {
	indices := make([][]int, queryRows)
	distances := make([][]float64, queryRows)

	for q := 0; q < queryRows; q++ {
		query := queryData[q*t.dims : (q+1)*t.dims]
		self := -1
		if skipSelf {
			self = q
		}
		h := &knnHeap{}
		if t.n > 0 && k > 0 {
			t.knnSearch(0, query, k, self, h)
		}

		nResults := h.Len()
		idx := make([]int, nResults)
		dist := make([]float64, nResults)
		for i := nResults - 1; i >= 0; i-- {
			item := heap.Pop(h).(knnItem)
			idx[i] = item.index
			dist[i] = item.dist
		}
		indices[q] = idx
		distances[q] = dist
	}
	return indices, distances
}

func (t *BallTree) knnSearch(nodeID int, query []float64, k, self int, h *knnHeap) {
	if nodeID >= len(t.nodes) {
		return
	}
	node := t.nodes[nodeID]
	if node.idxStart == node.idxEnd && nodeID != 0 {
		return
	}

	if node.isLeaf {
		for i := node.idxStart; i < node.idxEnd; i++ {
			row := t.idxArray[i]
			if row == self {
				continue
			}
			item := knnItem{index: row, dist: t.metric.Distance(query, t.row(row))}
			if h.Len() < k {
				heap.Push(h, item)
			} else if item.closer((*h)[0]) {
				(*h)[0] = item
				heap.Fix(h, 0)
			}
		}
		return
	}

	left, right := 2*nodeID+1, 2*nodeID+2
	leftDist := t.minDist(left, query)
	rightDist := t.minDist(right, query)

	near, far := left, right
	farDist := rightDist
	if rightDist < leftDist {
		near, far = right, left
		farDist = leftDist
	}

	t.knnSearch(near, query, k, self, h)
	if h.Len() < k || farDist <= (*h)[0].dist {
		t.knnSearch(far, query, k, self, h)
	}
}

// QueryRadius returns, for each row in queryData, the indexed rows at
// distance <= radii[q], sorted by (distance, row index). skipSelf behaves as
// in QueryKNN.
func (t *BallTree) QueryRadius(queryData []float64, queryRows int, radii []float64, skipSelf bool) [][]int {
	out := make([][]int, queryRows)
	var found []knnItem
	for q := 0; q < queryRows; q++ {
		query := queryData[q*t.dims : (q+1)*t.dims]
		self := -1
		if skipSelf {
			self = q
		}
		found = found[:0]
		if t.n > 0 {
			found = t.radiusSearch(0, query, radii[q], self, found)
		}
		out[q] = sortedIndices(found)
	}
	return out
}

func (t *BallTree) radiusSearch(nodeID int, query []float64, r float64, self int, found []knnItem) []knnItem {
	if nodeID >= len(t.nodes) {
		return found
	}
	node := t.nodes[nodeID]
	if node.idxStart == node.idxEnd && nodeID != 0 {
		return found
	}
	if t.minDist(nodeID, query) > r {
		return found
	}
	if node.isLeaf {
		for i := node.idxStart; i < node.idxEnd; i++ {
			row := t.idxArray[i]
			if row == self {
				continue
			}
			if d := t.metric.Distance(query, t.row(row)); d <= r {
				found = append(found, knnItem{index: row, dist: d})
			}
		}
		return found
	}
	found = t.radiusSearch(2*nodeID+1, query, r, self, found)
	return t.radiusSearch(2*nodeID+2, query, r, self, found)
}

// sortedIndices orders items by (distance, index) and returns the indices.
func sortedIndices(items []knnItem) []int {
	if len(items) == 0 {
		return nil
	}
	sort.Slice(items, func(a, b int) bool { return items[a].closer(items[b]) })
	idx := make([]int, len(items))
	for i, it := range items {
		idx[i] = it.index
	}
	return idx
}
