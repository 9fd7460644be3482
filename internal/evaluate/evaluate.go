// Package evaluate scores a clustering against ground-truth labels.
package evaluate

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// contingency is the cluster-by-class count table of two labelings.
type contingency struct {
	n      int
	counts [][]float64 // counts[i][j]: points with truth class i and predicted cluster j
	rows   []float64   // class sizes
	cols   []float64   // cluster sizes
}

func newContingency(truth, pred []int) (*contingency, error) {
	if len(truth) != len(pred) {
		return nil, fmt.Errorf("evaluate: label lengths differ: %d vs %d", len(truth), len(pred))
	}
	ti, tk := relabel(truth)
	pi, pk := relabel(pred)

	c := &contingency{
		n:      len(truth),
		counts: make([][]float64, tk),
		rows:   make([]float64, tk),
		cols:   make([]float64, pk),
	}
	for i := range c.counts {
		c.counts[i] = make([]float64, pk)
	}
	for p := range truth {
		c.counts[ti[p]][pi[p]]++
		c.rows[ti[p]]++
		c.cols[pi[p]]++
	}
	return c, nil
}

// relabel maps arbitrary labels onto 0..k-1 in ascending label order. Noise
// (-1) is treated as one more class.
func relabel(labels []int) ([]int, int) {
	uniq := slices.Clone(labels)
	slices.Sort(uniq)
	uniq = slices.Compact(uniq)

	out := make([]int, len(labels))
	for i, l := range labels {
		out[i], _ = slices.BinarySearch(uniq, l)
	}
	return out, len(uniq)
}

func comb2(x float64) float64 { return x * (x - 1) / 2 }

// AdjustedRandIndex returns the Rand index of pred against truth, adjusted
// for chance: 1 for identical partitions, around 0 for random ones.
func AdjustedRandIndex(truth, pred []int) (float64, error) {
	c, err := newContingency(truth, pred)
	if err != nil {
		return 0, err
	}
	if trivialMatch(c) {
		return 1, nil
	}

	var sumComb float64
	for _, row := range c.counts {
		for _, v := range row {
			sumComb += comb2(v)
		}
	}
	var sumRows, sumCols float64
	for _, v := range c.rows {
		sumRows += comb2(v)
	}
	for _, v := range c.cols {
		sumCols += comb2(v)
	}

	expected := sumRows * sumCols / comb2(float64(c.n))
	maxIndex := (sumRows + sumCols) / 2
	if maxIndex == expected {
		return 1, nil
	}
	return (sumComb - expected) / (maxIndex - expected), nil
}

// trivialMatch covers the degenerate cases where both labelings put every
// point into one cluster, or every point into its own cluster.
func trivialMatch(c *contingency) bool {
	k, m := len(c.rows), len(c.cols)
	return c.n == 0 || (k == 1 && m == 1) || (k == c.n && m == c.n)
}

// AdjustedMutualInformation returns the mutual information of pred and truth
// adjusted for chance, normalized by the arithmetic mean of the two
// entropies.
func AdjustedMutualInformation(truth, pred []int) (float64, error) {
	c, err := newContingency(truth, pred)
	if err != nil {
		return 0, err
	}
	k, m := len(c.rows), len(c.cols)
	if c.n == 0 || (k == 1 && m == 1) || (k == 0 && m == 0) {
		return 1, nil
	}

	mi := mutualInformation(c)
	emi := expectedMutualInformation(c)
	hTruth := entropy(c.rows, c.n)
	hPred := entropy(c.cols, c.n)

	denom := (hTruth+hPred)/2 - emi
	const eps = 2.220446049250313e-16
	if denom < 0 {
		denom = min(denom, -eps)
	} else {
		denom = max(denom, eps)
	}
	return (mi - emi) / denom, nil
}

func entropy(sizes []float64, n int) float64 {
	p := slices.Clone(sizes)
	floats.Scale(1/float64(n), p)
	return stat.Entropy(p)
}

func mutualInformation(c *contingency) float64 {
	n := float64(c.n)
	var mi float64
	for i, row := range c.counts {
		for j, v := range row {
			if v == 0 {
				continue
			}
			mi += v / n * math.Log(n*v/(c.rows[i]*c.cols[j]))
		}
	}
	return max(mi, 0)
}

// expectedMutualInformation is the mutual information expected under the
// hypergeometric model of random labelings with the same cluster sizes.
func expectedMutualInformation(c *contingency) float64 {
	n := float64(c.n)
	lgN1 := lgamma(n + 1)
	var emi float64
	for _, a := range c.rows {
		for _, b := range c.cols {
			start := max(1, a+b-n)
			end := min(a, b)
			base := lgamma(a+1) + lgamma(b+1) + lgamma(n-a+1) + lgamma(n-b+1) - lgN1
			for nij := start; nij <= end; nij++ {
				term := nij / n * math.Log(n*nij/(a*b))
				logP := base - lgamma(nij+1) - lgamma(a-nij+1) - lgamma(b-nij+1) - lgamma(n-a-b+nij+1)
				emi += term * math.Exp(logP)
			}
		}
	}
	return emi
}

func lgamma(x float64) float64 {
	v, _ := math.Lgamma(x)
	return v
}
