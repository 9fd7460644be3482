package m3w

// Points is a flat row-major view over a subset of the original point set.
// Row i of the view is Data[i*Dims:(i+1)*Dims] and corresponds to original
// point Orig[i]. Views are immutable; filtering produces a new view with its
// own index mapping rather than re-deriving positions.
type Points struct {
	Data []float64
	N    int
	Dims int
	Orig []int
}

// NewPoints flattens data into a Points view whose mapping is the identity.
// All rows must have the same length.
func NewPoints(data [][]float64) *Points {
	n := len(data)
	if n == 0 {
		return &Points{}
	}
	dims := len(data[0])
	flat := make([]float64, n*dims)
	orig := make([]int, n)
	for i, row := range data {
		copy(flat[i*dims:], row)
		orig[i] = i
	}
	return &Points{Data: flat, N: n, Dims: dims, Orig: orig}
}

// Row returns the coordinates of local row i.
func (p *Points) Row(i int) []float64 {
	return p.Data[i*p.Dims : (i+1)*p.Dims]
}

// Subset returns the rows whose keep flag is set, preserving order.
func (p *Points) Subset(keep []bool) *Points {
	var rows []int
	for i, k := range keep {
		if k {
			rows = append(rows, i)
		}
	}
	return p.Rows(rows)
}

// Rows returns a view over the given local rows, in the given order.
func (p *Points) Rows(rows []int) *Points {
	out := &Points{
		Data: make([]float64, len(rows)*p.Dims),
		N:    len(rows),
		Dims: p.Dims,
		Orig: make([]int, len(rows)),
	}
	for j, i := range rows {
		copy(out.Data[j*p.Dims:], p.Row(i))
		out.Orig[j] = p.Orig[i]
	}
	return out
}
