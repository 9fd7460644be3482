package m3w

import (
	"container/heap"
	"math"
	"sort"
)

// nodeData describes a single node in the KD-tree.
type nodeData struct {
	idxStart, idxEnd int
	isLeaf           bool
}

// KDTree is a KD-tree spatial index for k-nearest-neighbor queries. Points
// are stored in a flat row-major array and reordered internally via an index
// permutation array.
//
// The tree is stored as a complete binary tree in array form:
//   - node i has children at 2*i+1 and 2*i+2
//   - node bounds are stored as min/max per dimension per node
type KDTree struct {
	data     []float64
	n        int
	dims     int
	leafSize int
	metric   DistanceMetric
	idxArray []int // tree-order position → row index
	nodes    []nodeData
	// boundsMin[node*dims + j] = min value of feature j in node
	boundsMin []float64
	// boundsMax[node*dims + j] = max value of feature j in node
	boundsMax []float64
	numNodes  int
}

// NewKDTree builds a KD-tree from flat row-major data with n points of
// dimensionality dims. leafSize controls the max points per leaf node.
// The metric must satisfy KDTreeValidMetric.
func NewKDTree(data []float64, n, dims int, metric DistanceMetric, leafSize int) *KDTree {
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
	t := &KDTree{
		data:      dataCopy,
		n:         n,
		dims:      dims,
		leafSize:  leafSize,
		metric:    metric,
		idxArray:  idxArray,
		nodes:     make([]nodeData, maxNodes),
		boundsMin: make([]float64, maxNodes*dims),
		boundsMax: make([]float64, maxNodes*dims),
	}

	if n > 0 {
		t.buildNode(0, 0, n)
		t.numNodes = kdCountNodes(t.nodes, 0, len(t.nodes))
	}
	return t
}

// kdMaxNodes returns an upper bound on the number of nodes needed for a
// binary tree with n points and the given leaf size.
func kdMaxNodes(n, leafSize int) int {
	if n == 0 {
		return 1
	}
	leaves := (n + leafSize - 1) / leafSize
	depth := 0
	for v := 1; v < leaves; v *= 2 {
		depth++
	}
	return (1 << (depth + 1)) - 1 + 2
}

func kdCountNodes(nodes []nodeData, nodeID, maxNodes int) int {
	if nodeID >= maxNodes {
		return 0
	}
	if nodes[nodeID].idxStart == 0 && nodes[nodeID].idxEnd == 0 && nodeID != 0 {
		return 0
	}
	count := 1
	if !nodes[nodeID].isLeaf {
		count += kdCountNodes(nodes, 2*nodeID+1, maxNodes)
		count += kdCountNodes(nodes, 2*nodeID+2, maxNodes)
	}
	return count
}

func (t *KDTree) buildNode(nodeID, start, end int) {
	for nodeID >= len(t.nodes) {
		t.nodes = append(t.nodes, nodeData{})
		t.boundsMin = append(t.boundsMin, make([]float64, t.dims)...)
		t.boundsMax = append(t.boundsMax, make([]float64, t.dims)...)
	}

	t.computeNodeBounds(nodeID, start, end)

	count := end - start
	if count <= t.leafSize {
		t.nodes[nodeID] = nodeData{idxStart: start, idxEnd: end, isLeaf: true}
		return
	}

	// Split on the dimension with the greatest spread.
	splitDim := 0
	maxSpread := -1.0
	for d := 0; d < t.dims; d++ {
		spread := t.boundsMax[nodeID*t.dims+d] - t.boundsMin[nodeID*t.dims+d]
		if spread > maxSpread {
			maxSpread = spread
			splitDim = d
		}
	}

	t.sortByDimension(start, end, splitDim)
	mid := start + count/2

	t.nodes[nodeID] = nodeData{idxStart: start, idxEnd: end}
	t.buildNode(2*nodeID+1, start, mid)
	t.buildNode(2*nodeID+2, mid, end)
}

func (t *KDTree) computeNodeBounds(nodeID, start, end int) {
	base := nodeID * t.dims
	for d := 0; d < t.dims; d++ {
		t.boundsMin[base+d] = math.Inf(1)
		t.boundsMax[base+d] = math.Inf(-1)
	}
	for i := start; i < end; i++ {
		row := t.idxArray[i]
		for d := 0; d < t.dims; d++ {
			v := t.data[row*t.dims+d]
			t.boundsMin[base+d] = math.Min(t.boundsMin[base+d], v)
			t.boundsMax[base+d] = math.Max(t.boundsMax[base+d], v)
		}
	}
}

// sortByDimension sorts idxArray[start:end] by the given dimension. The sort
// is stable on row index so tree construction is reproducible.
func (t *KDTree) sortByDimension(start, end, dim int) {
	sub := t.idxArray[start:end]
	dims := t.dims
	data := t.data
	sort.SliceStable(sub, func(i, j int) bool {
		return data[sub[i]*dims+dim] < data[sub[j]*dims+dim]
	})
}

// NumPoints returns the number of indexed points.
func (t *KDTree) NumPoints() int { return t.n }

// NumNodes returns the number of initialized tree nodes.
func (t *KDTree) NumNodes() int { return t.numNodes }

// QueryKNN finds the k nearest indexed points for each row in queryData.
// Results are sorted by (distance, row index) ascending. When skipSelf is
// true, query row q never returns indexed row q; this is only meaningful
// when the query rows are the indexed rows.
func (t *KDTree) QueryKNN(queryData []float64, queryRows, k int, skipSelf bool) ([][]int, [][]float64) {
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

func (t *KDTree) knnSearch(nodeID int, query []float64, k, self int, h *knnHeap) {
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
			item := knnItem{index: row, dist: t.metric.Distance(query, t.data[row*t.dims:(row+1)*t.dims])}
			if h.Len() < k {
				heap.Push(h, item)
			} else if item.closer((*h)[0]) {
				(*h)[0] = item
				heap.Fix(h, 0)
			}
		}
		return
	}

	left := 2*nodeID + 1
	right := 2*nodeID + 2
	leftDist := t.minDistPoint(left, query)
	rightDist := t.minDistPoint(right, query)

	nearChild, farChild := left, right
	farDist := rightDist
	if rightDist < leftDist {
		nearChild, farChild = right, left
		farDist = leftDist
	}

	t.knnSearch(nearChild, query, k, self, h)

	// Equal bounds are still visited: a tie at the k-th distance may be won
	// by a lower row index in the far child.
	if h.Len() < k || farDist <= (*h)[0].dist {
		t.knnSearch(farChild, query, k, self, h)
	}
}

// QueryRadius returns, for each row in queryData, the indexed rows at
// distance <= radii[q], sorted by (distance, row index). skipSelf behaves as
// in QueryKNN.
func (t *KDTree) QueryRadius(queryData []float64, queryRows int, radii []float64, skipSelf bool) [][]int {
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

func (t *KDTree) radiusSearch(nodeID int, query []float64, r float64, self int, found []knnItem) []knnItem {
	if nodeID >= len(t.nodes) {
		return found
	}
	node := t.nodes[nodeID]
	if node.idxStart == node.idxEnd && nodeID != 0 {
		return found
	}
	if t.minDistPoint(nodeID, query) > r {
		return found
	}
	if node.isLeaf {
		for i := node.idxStart; i < node.idxEnd; i++ {
			row := t.idxArray[i]
			if row == self {
				continue
			}
			if d := t.metric.Distance(query, t.data[row*t.dims:(row+1)*t.dims]); d <= r {
				found = append(found, knnItem{index: row, dist: d})
			}
		}
		return found
	}
	found = t.radiusSearch(2*nodeID+1, query, r, self, found)
	return t.radiusSearch(2*nodeID+2, query, r, self, found)
}

// minDistPoint returns minRdistPoint as a true distance. Pruning compares
// in distance space: the bound never rounds above the distance of a point
// in the node, while squaring a candidate distance can round below its
// reduced distance and drop exact boundary points.
func (t *KDTree) minDistPoint(node int, point []float64) float64 {
	return t.metric.RdistToDist(t.minRdistPoint(node, point))
}

// minRdistPoint returns a lower bound, in reduced-distance space, on the
// distance between point and any point in node.
func (t *KDTree) minRdistPoint(node int, point []float64) float64 {
	if node >= len(t.nodes) {
		return math.Inf(1)
	}
	base := node * t.dims
	_, chebyshev := t.metric.(ChebyshevMetric)

	var rdist float64
	for j := 0; j < t.dims; j++ {
		lo := t.boundsMin[base+j]
		hi := t.boundsMax[base+j]
		var gap float64
		if point[j] < lo {
			gap = lo - point[j]
		} else if point[j] > hi {
			gap = point[j] - hi
		}
		if chebyshev {
			rdist = math.Max(rdist, gap)
		} else {
			// Euclidean, Manhattan and Minkowski reduce to a per-axis sum.
			rdist += t.metric.DistToRdist(gap)
		}
	}
	return rdist
}

type knnItem struct {
	index int
	dist  float64
}

// closer orders candidates by distance, then by row index.
func (a knnItem) closer(b knnItem) bool {
	if a.dist != b.dist {
		return a.dist < b.dist
	}
	return a.index < b.index
}

// knnHeap is a max-heap of knnItem (farthest candidate on top) used as a
// bounded priority queue for KNN queries.
type knnHeap []knnItem

func (h knnHeap) Len() int           { return len(h) }
func (h knnHeap) Less(i, j int) bool { return h[j].closer(h[i]) }
func (h knnHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *knnHeap) Push(x any)        { *h = append(*h, x.(knnItem)) }
func (h *knnHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
