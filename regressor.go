package m3w

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// KNNRegressor predicts a scalar at each query point as the uniform mean of
// the values of its K nearest training points.
type KNNRegressor struct {
	Searcher NeighborSearcher
	K        int
}

// FitPredict trains on (train, values) and predicts at every row of query.
// K is clamped to the training-set size. An empty training set, or a value
// count that does not match the training rows, returns ErrRegressionFailure.
func (r KNNRegressor) FitPredict(train *Points, values []float64, query *Points) ([]float64, error) {
	if train.N == 0 {
		return nil, fmt.Errorf("%w: empty training set", ErrRegressionFailure)
	}
	if len(values) != train.N {
		return nil, fmt.Errorf("%w: %d values for %d training points", ErrRegressionFailure, len(values), train.N)
	}
	if query.N == 0 {
		return []float64{}, nil
	}

	k := min(r.K, train.N)
	nb, err := r.Searcher.Query(train, query, k)
	if err != nil {
		if errors.Is(err, ErrInfeasibleNeighborQuery) {
			return nil, fmt.Errorf("%w: %v", ErrRegressionFailure, err)
		}
		return nil, err
	}

	out := make([]float64, query.N)
	vals := make([]float64, k)
	for q, row := range nb.Indices {
		for j, i := range row {
			vals[j] = values[i]
		}
		out[q] = stat.Mean(vals[:len(row)], nil)
	}
	return out, nil
}
