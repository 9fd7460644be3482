package m3w

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewDisjointSet(t *testing.T) {
	ds := NewDisjointSet(5)

	if ds.Count() != 5 {
		t.Errorf("Count() = %d, want 5", ds.Count())
	}
	if ds.Len() != 5 {
		t.Errorf("Len() = %d, want 5", ds.Len())
	}
	for i := 0; i < 5; i++ {
		if root := ds.Find(i); root != i {
			t.Errorf("Find(%d) = %d, want %d", i, root, i)
		}
	}
}

func TestDisjointSet_UnionTwoElements(t *testing.T) {
	ds := NewDisjointSet(5)
	root := ds.Union(1, 3)

	if ds.Find(1) != ds.Find(3) {
		t.Error("after Union(1,3), Find(1) != Find(3)")
	}
	if root != ds.Find(1) {
		t.Errorf("Union returned %d, but Find(1) = %d", root, ds.Find(1))
	}
	if ds.Count() != 4 {
		t.Errorf("Count() = %d, want 4", ds.Count())
	}
}

func TestDisjointSet_UnionIsIdempotent(t *testing.T) {
	ds := NewDisjointSet(4)
	ds.Union(0, 1)
	ds.Union(0, 1)
	ds.Union(1, 0)
	ds.Union(2, 2)

	if ds.Count() != 3 {
		t.Errorf("Count() = %d, want 3", ds.Count())
	}
}

func TestDisjointSet_MultipleUnions(t *testing.T) {
	ds := NewDisjointSet(6)
	ds.Union(0, 1)
	ds.Union(1, 2)
	ds.Union(3, 4)
	ds.Union(4, 5)

	if ds.Find(0) != ds.Find(2) {
		t.Error("0 and 2 should be in same set")
	}
	if ds.Find(0) == ds.Find(3) {
		t.Error("0 and 3 should be in different sets")
	}

	ds.Union(2, 4)
	root := ds.Find(0)
	for i := 1; i < 6; i++ {
		if ds.Find(i) != root {
			t.Errorf("after full union, Find(%d) != Find(0)", i)
		}
	}
	if ds.Count() != 1 {
		t.Errorf("Count() = %d, want 1", ds.Count())
	}
}

func TestDisjointSet_PathCompression(t *testing.T) {
	ds := NewDisjointSet(5)
	for i := 1; i < 5; i++ {
		ds.Union(ds.Find(0), i)
	}

	root := ds.Find(4)
	if ds.parent[4] != root && ds.parent[4] != -1 {
		t.Errorf("after Find(4), parent[4] = %d, want root %d", ds.parent[4], root)
	}
}

func TestDisjointSet_UnionBySize(t *testing.T) {
	ds := NewDisjointSet(4)
	ds.Union(0, 1)
	ds.Union(0, 2)
	bigRoot := ds.Find(0)

	ds.Union(3, 0)
	if newRoot := ds.Find(3); newRoot != bigRoot {
		t.Errorf("expected union-by-size: small tree attaches to big root %d, got root %d", bigRoot, newRoot)
	}
}

func TestDisjointSet_PartitionIndependentOfUnionOrder(t *testing.T) {
	pairs := [][2]int{{0, 1}, {2, 3}, {1, 3}, {5, 6}, {6, 7}}

	forward := NewDisjointSet(8)
	for _, p := range pairs {
		forward.Union(p[0], p[1])
	}
	backward := NewDisjointSet(8)
	for i := len(pairs) - 1; i >= 0; i-- {
		backward.Union(pairs[i][1], pairs[i][0])
	}

	members := []int{0, 1, 2, 3, 4, 5, 6, 7}
	want := [][]int{{0, 1, 2, 3}, {4}, {5, 6, 7}}
	if diff := cmp.Diff(want, forward.groups(members)); diff != "" {
		t.Errorf("forward groups mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, backward.groups(members)); diff != "" {
		t.Errorf("backward groups mismatch (-want +got):\n%s", diff)
	}
	if forward.Count() != backward.Count() {
		t.Errorf("Count differs: %d vs %d", forward.Count(), backward.Count())
	}
}
