package m3w

import "errors"

var (
	// ErrInfeasibleNeighborQuery is returned by a NeighborSearcher when the
	// requested neighbor count cannot be satisfied by the point set (k < 1,
	// k >= n for self queries, or an empty training set).
	ErrInfeasibleNeighborQuery = errors.New("m3w: infeasible neighbor query")

	// ErrRegressionFailure is returned when a k-NN regression cannot be
	// trained, typically because the training set is empty.
	ErrRegressionFailure = errors.New("m3w: regression failure")

	// ErrConfiguration marks invalid configuration. Returned (wrapped) from
	// Cluster and from preprocessing steps that reject their parameters.
	ErrConfiguration = errors.New("m3w: invalid configuration")

	// ErrUnsupportedInterpolation is returned for interpolation methods the
	// scalar-field interpolator does not implement.
	ErrUnsupportedInterpolation = errors.New("m3w: unsupported interpolation method")
)
