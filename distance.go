package m3w

import "math"

// DistanceMetric measures dissimilarity between two points of equal
// dimensionality. The reduced form is any monotonic transform of the true
// distance that is cheaper to compute (squared Euclidean, for instance); the
// KD-tree compares reduced distances while pruning and converts back with
// RdistToDist before reporting.
type DistanceMetric interface {
	Distance(a, b []float64) float64
	ReducedDistance(a, b []float64) float64
	DistToRdist(d float64) float64
	RdistToDist(rd float64) float64
}

// DistanceFunc adapts a plain function into a DistanceMetric whose reduced
// distance is the distance itself. Metrics built this way are only served by
// the brute-force searcher.
type DistanceFunc func(a, b []float64) float64

func (f DistanceFunc) Distance(a, b []float64) float64        { return f(a, b) }
func (f DistanceFunc) ReducedDistance(a, b []float64) float64 { return f(a, b) }
func (DistanceFunc) DistToRdist(d float64) float64            { return d }
func (DistanceFunc) RdistToDist(rd float64) float64           { return rd }

// EuclideanMetric is the L2 distance. Its reduced distance is the squared
// distance.
type EuclideanMetric struct{}

func (EuclideanMetric) Distance(a, b []float64) float64 {
	return math.Sqrt(squaredL2(a, b))
}

func (EuclideanMetric) ReducedDistance(a, b []float64) float64 { return squaredL2(a, b) }
func (EuclideanMetric) DistToRdist(d float64) float64           { return d * d }
func (EuclideanMetric) RdistToDist(rd float64) float64          { return math.Sqrt(rd) }

func squaredL2(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// ManhattanMetric is the L1 (city-block) distance.
type ManhattanMetric struct{}

func (ManhattanMetric) Distance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += math.Abs(a[i] - b[i])
	}
	return sum
}

func (m ManhattanMetric) ReducedDistance(a, b []float64) float64 { return m.Distance(a, b) }
func (ManhattanMetric) DistToRdist(d float64) float64             { return d }
func (ManhattanMetric) RdistToDist(rd float64) float64            { return rd }

// ChebyshevMetric is the L-infinity distance.
type ChebyshevMetric struct{}

func (ChebyshevMetric) Distance(a, b []float64) float64 {
	var largest float64
	for i := range a {
		if v := math.Abs(a[i] - b[i]); v > largest {
			largest = v
		}
	}
	return largest
}

func (m ChebyshevMetric) ReducedDistance(a, b []float64) float64 { return m.Distance(a, b) }
func (ChebyshevMetric) DistToRdist(d float64) float64             { return d }
func (ChebyshevMetric) RdistToDist(rd float64) float64            { return rd }

// MinkowskiMetric is the L-P distance. P must be >= 1; the reduced distance
// is sum(|a[i]-b[i]|^P) without the final root.
type MinkowskiMetric struct {
	P float64
}

func (m MinkowskiMetric) Distance(a, b []float64) float64 {
	return m.RdistToDist(m.ReducedDistance(a, b))
}

func (m MinkowskiMetric) ReducedDistance(a, b []float64) float64 {
	if m.P < 1 {
		panic("MinkowskiMetric: P must be >= 1")
	}
	var sum float64
	for i := range a {
		sum += math.Pow(math.Abs(a[i]-b[i]), m.P)
	}
	return sum
}

func (m MinkowskiMetric) DistToRdist(d float64) float64  { return math.Pow(d, m.P) }
func (m MinkowskiMetric) RdistToDist(rd float64) float64 { return math.Pow(rd, 1.0/m.P) }

// KDTreeValidMetric reports whether m decomposes along coordinate axes, which
// the KD-tree bound computation requires.
func KDTreeValidMetric(m DistanceMetric) bool {
	switch m.(type) {
	case EuclideanMetric, ManhattanMetric, ChebyshevMetric, MinkowskiMetric:
		return true
	default:
		return false
	}
}
