package m3w

import "gonum.org/v1/gonum/mat"

// Membership is a C×N boolean table: row c, column p is set when point p
// belongs to cluster c. Core points belong to at most one cluster; border
// points may belong to several.
type Membership struct {
	clusters int
	points   int
	flags    []bool // row-major
}

// NewMembership returns an empty membership table.
func NewMembership(clusters, points int) *Membership {
	return &Membership{
		clusters: clusters,
		points:   points,
		flags:    make([]bool, clusters*points),
	}
}

// Clusters returns the number of rows.
func (m *Membership) Clusters() int { return m.clusters }

// Points returns the number of columns.
func (m *Membership) Points() int { return m.points }

// Set marks point p as a member of cluster c.
func (m *Membership) Set(c, p int) { m.flags[c*m.points+p] = true }

// Has reports whether point p is a member of cluster c.
func (m *Membership) Has(c, p int) bool { return m.flags[c*m.points+p] }

// Of returns the clusters point p belongs to, ascending.
func (m *Membership) Of(p int) []int {
	var out []int
	for c := 0; c < m.clusters; c++ {
		if m.Has(c, p) {
			out = append(out, c)
		}
	}
	return out
}

// Labels resolves each column to a single label: the highest cluster index
// the point belongs to, or -1 when it belongs to none.
func (m *Membership) Labels() []int {
	labels := make([]int, m.points)
	for p := range labels {
		labels[p] = -1
		for c := m.clusters - 1; c >= 0; c-- {
			if m.Has(c, p) {
				labels[p] = c
				break
			}
		}
	}
	return labels
}

// Dense returns the table as a 0/1 matrix. It returns nil when the table has
// no rows or no columns, which gonum cannot represent.
func (m *Membership) Dense() *mat.Dense {
	if m.clusters == 0 || m.points == 0 {
		return nil
	}
	d := mat.NewDense(m.clusters, m.points, nil)
	for c := 0; c < m.clusters; c++ {
		for p := 0; p < m.points; p++ {
			if m.Has(c, p) {
				d.Set(c, p, 1)
			}
		}
	}
	return d
}
