package m3w

// DisjointSet partitions the original point indices 0..n-1 into equivalence
// classes. It uses path compression and union by size. Only Union, Find and
// Count are exported; the parent and size arrays are never exposed.
type DisjointSet struct {
	parent []int
	size   []int
	count  int
}

// NewDisjointSet creates a DisjointSet in which each of the n elements is its
// own singleton class.
func NewDisjointSet(n int) *DisjointSet {
	parent := make([]int, n)
	size := make([]int, n)
	for i := range parent {
		parent[i] = -1 // -1 means "is a root"
		size[i] = 1
	}
	return &DisjointSet{parent: parent, size: size, count: n}
}

// Len returns the number of elements tracked by the set.
func (ds *DisjointSet) Len() int { return len(ds.parent) }

// Count returns the current number of disjoint classes.
func (ds *DisjointSet) Count() int { return ds.count }

// Find returns the representative of the class containing x.
func (ds *DisjointSet) Find(x int) int {
	root := x
	for ds.parent[root] != -1 {
		root = ds.parent[root]
	}
	for ds.parent[x] != -1 {
		x, ds.parent[x] = ds.parent[x], root
	}
	return root
}

// Union merges the classes containing x and y, attaching the smaller tree
// under the larger, and returns the surviving root. Calling Union on two
// members of the same class is a no-op.
func (ds *DisjointSet) Union(x, y int) int {
	rootX := ds.Find(x)
	rootY := ds.Find(y)
	if rootX == rootY {
		return rootX
	}

	if ds.size[rootX] < ds.size[rootY] {
		rootX, rootY = rootY, rootX
	}
	ds.parent[rootY] = rootX
	ds.size[rootX] += ds.size[rootY]
	ds.count--
	return rootX
}

// groups returns the classes restricted to the given members, in order of
// first appearance. Members within a group keep their input order.
func (ds *DisjointSet) groups(members []int) [][]int {
	var groups [][]int
	slot := make(map[int]int)
	for _, m := range members {
		r := ds.Find(m)
		i, ok := slot[r]
		if !ok {
			i = len(groups)
			slot[r] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], m)
	}
	return groups
}
