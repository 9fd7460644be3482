package m3w

import (
	"fmt"
	"math"
)

// InterpolationMethod names a scattered-data interpolation scheme.
type InterpolationMethod string

// InterpolateNearest takes the value of the closest known coordinate.
const InterpolateNearest InterpolationMethod = "nearest"

// Interpolator evaluates a scalar field known at scattered coordinates.
// Queries that fall outside the support of a method come back as NaN.
type Interpolator struct {
	Searcher NeighborSearcher
}

// Interpolate evaluates the field sampled as (known, values) at every row of
// query. Only the nearest method is implemented; it is defined everywhere,
// so it never produces NaN for a non-empty sample set. With no samples
// every query is NaN.
func (ip Interpolator) Interpolate(known *Points, values []float64, query *Points, method InterpolationMethod) ([]float64, error) {
	if method != InterpolateNearest {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedInterpolation, method)
	}

	out := make([]float64, query.N)
	if known.N == 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out, nil
	}
	if query.N == 0 {
		return out, nil
	}

	nb, err := ip.Searcher.Query(known, query, 1)
	if err != nil {
		return nil, err
	}
	for q, row := range nb.Indices {
		out[q] = values[row[0]]
	}
	return out, nil
}
