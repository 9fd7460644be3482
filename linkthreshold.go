package m3w

import (
	"math"

	"go.uber.org/zap"
)

// iteration carries the geometry of the iteration that just ran: the
// active view before shrinking, its k-NN graph and the keep mask.
type iteration struct {
	before *Points
	nb     *Neighbors
	keep   []bool
}

// linkThresholds maintains the per-point link radius, indexed by original
// point index. Every value starts at the global distance threshold.
type linkThresholds struct {
	values    []float64
	global    float64
	expansion float64
	estimator ThresholdEstimator
	regressor KNNRegressor
	interp    Interpolator
	log       *zap.Logger
}

func newLinkThresholds(n int, global float64, searcher NeighborSearcher, cfg Config) *linkThresholds {
	values := make([]float64, n)
	for i := range values {
		values[i] = global
	}
	return &linkThresholds{
		values:    values,
		global:    global,
		expansion: cfg.LinkExpansionFactor,
		estimator: cfg.ThresholdEstimator,
		regressor: KNNRegressor{Searcher: searcher, K: cfg.K},
		interp:    Interpolator{Searcher: searcher},
		log:       cfg.Logger,
	}
}

// update re-estimates the thresholds of the points still active. training
// lists the peeled original indices whose geometry and thresholds drive the
// regression estimator. On failure the previous values are kept.
func (lt *linkThresholds) update(all *Points, training []int, active *Points, it iteration) {
	if active.N == 0 {
		return
	}

	var estimates []float64
	var err error
	switch lt.estimator {
	case EstimatorInterpolation:
		estimates, err = lt.interpolate(it, active)
	default:
		vals := make([]float64, len(training))
		for i, o := range training {
			vals[i] = lt.values[o]
		}
		estimates, err = lt.regressor.FitPredict(all.Rows(training), vals, active)
	}
	if err != nil {
		lt.log.Warn("link threshold estimate failed, keeping previous thresholds", zap.Error(err))
		return
	}

	nonFinite := 0
	for i, t := range estimates {
		if math.IsNaN(t) || math.IsInf(t, 0) {
			nonFinite++
		}
		lt.set(active.Orig[i], t)
	}
	if nonFinite > 0 {
		lt.log.Warn("non-finite link thresholds reset to the global threshold", zap.Int("count", nonFinite))
	}
}

// set stores t scaled by the expansion factor, falling back to the global
// threshold when t is not finite or the scaled value exceeds it.
func (lt *linkThresholds) set(o int, t float64) {
	scaled := t * lt.expansion
	if math.IsNaN(scaled) || math.IsInf(scaled, 0) || scaled > lt.global {
		lt.values[o] = lt.global
		return
	}
	lt.values[o] = scaled
}

// interpolate samples, for every kept point, the distance to its nearest
// peeled neighbor at that neighbor's coordinates, and evaluates the sample
// field at the surviving points.
func (lt *linkThresholds) interpolate(it iteration, active *Points) ([]float64, error) {
	var rows []int
	var vals []float64
	for i, kept := range it.keep {
		if !kept {
			continue
		}
		for j, nbr := range it.nb.Indices[i] {
			if it.keep[nbr] {
				continue
			}
			rows = append(rows, nbr)
			vals = append(vals, it.nb.Distances[i][j])
			break
		}
	}
	return lt.interp.Interpolate(it.before.Rows(rows), vals, active, InterpolateNearest)
}
