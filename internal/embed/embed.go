// Package embed reduces point dimensionality before clustering.
package embed

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/TrevorS/m3w"
)

// PCA projects data onto its first dims principal components. The data is
// centered before projection.
func PCA(data [][]float64, dims int) ([][]float64, error) {
	x, err := denseInput(data, dims)
	if err != nil {
		return nil, err
	}
	n, d := x.Dims()
	if dims > min(n, d) {
		return nil, fmt.Errorf("%w: pca needs at least %d points, got %d", m3w.ErrConfiguration, dims, n)
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(x, nil); !ok {
		return nil, errors.New("pca: decomposition failed")
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)

	for j := 0; j < d; j++ {
		col := mat.Col(nil, j, x)
		mean := stat.Mean(col, nil)
		for i := range col {
			x.Set(i, j, col[i]-mean)
		}
	}

	var proj mat.Dense
	proj.Mul(x, vecs.Slice(0, d, 0, dims))
	return rows(&proj), nil
}

// Spectral embeds data with the eigenvectors of the symmetric normalized
// Laplacian of a k-nearest-neighbor connectivity graph, with
// k = max(n/10, 1) counting the point itself. The trivial first eigenvector
// is dropped and the rest are rescaled by D^-1/2.
func Spectral(data [][]float64, dims int, searcher m3w.NeighborSearcher) ([][]float64, error) {
	if _, err := denseInput(data, dims); err != nil {
		return nil, err
	}
	n := len(data)
	if dims+1 > n {
		return nil, fmt.Errorf("%w: spectral embedding needs more than %d points, got %d", m3w.ErrConfiguration, dims, n)
	}

	adj := mat.NewSymDense(n, nil)
	if k := max(n/10, 1) - 1; k > 0 {
		nb, err := searcher.KNN(m3w.NewPoints(data), k)
		if err != nil {
			return nil, fmt.Errorf("spectral: neighbor graph: %w", err)
		}
		// Symmetrize the connectivity matrix: 0.5 * (A + Aᵀ).
		for i, row := range nb.Indices {
			for _, j := range row {
				adj.SetSym(i, j, adj.At(i, j)+0.5)
			}
		}
	}

	scale := make([]float64, n)
	for i := 0; i < n; i++ {
		var deg float64
		for j := 0; j < n; j++ {
			deg += adj.At(i, j)
		}
		scale[i] = 1
		if deg > 0 {
			scale[i] = math.Sqrt(deg)
		}
	}

	lap := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		lap.SetSym(i, i, 1)
		for j := i + 1; j < n; j++ {
			if w := adj.At(i, j); w != 0 {
				lap.SetSym(i, j, -w/(scale[i]*scale[j]))
			}
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(lap, true); !ok {
		return nil, errors.New("spectral: eigendecomposition failed")
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, dims)
	}
	for c := 0; c < dims; c++ {
		col := mat.Col(nil, c+1, &vecs)
		flipSign(col)
		for i := range col {
			out[i][c] = col[i] / scale[i]
		}
	}
	return out, nil
}

// flipSign makes the largest-magnitude entry positive so the output does not
// depend on the solver's sign choice.
func flipSign(v []float64) {
	best := 0
	for i := range v {
		if math.Abs(v[i]) > math.Abs(v[best]) {
			best = i
		}
	}
	if v[best] < 0 {
		for i := range v {
			v[i] = -v[i]
		}
	}
}

func denseInput(data [][]float64, dims int) (*mat.Dense, error) {
	if len(data) == 0 {
		return nil, errors.New("embed: no data")
	}
	d := len(data[0])
	if dims < 1 {
		return nil, fmt.Errorf("%w: target dimension must be >= 1, got %d", m3w.ErrConfiguration, dims)
	}
	if dims >= d {
		return nil, fmt.Errorf("%w: target dimension %d must be smaller than data dimension %d", m3w.ErrConfiguration, dims, d)
	}
	x := mat.NewDense(len(data), d, nil)
	for i, row := range data {
		if len(row) != d {
			return nil, fmt.Errorf("embed: row %d has %d columns, expected %d", i, len(row), d)
		}
		x.SetRow(i, row)
	}
	return x, nil
}

func rows(m *mat.Dense) [][]float64 {
	r, _ := m.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = mat.Row(nil, i, m)
	}
	return out
}
