package m3w

import (
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

// reattacher assigns peeled points to clusters by k-core-neighbor voting.
// The core set grows as points are promoted, so later layers vote against
// a larger pool.
type reattacher struct {
	all      *Points
	searcher NeighborSearcher
	log      *zap.Logger
	k        int
	alpha    float64
	beta     float64

	membership *Membership
	core       []int // original indices
	coreLabel  []int // cluster of each core point, -1 if none
}

func newReattacher(all *Points, searcher NeighborSearcher, cfg Config, skeleton []int, clusters [][]int, n int) *reattacher {
	ra := &reattacher{
		all:        all,
		searcher:   searcher,
		log:        cfg.Logger,
		k:          cfg.K,
		alpha:      cfg.CorePointsThreshold,
		beta:       cfg.AmbiguityThreshold,
		membership: NewMembership(len(clusters), n),
	}

	label := make(map[int]int)
	for c, members := range clusters {
		for _, o := range members {
			ra.membership.Set(c, o)
			label[o] = c
		}
	}

	ra.core = make([]int, len(skeleton))
	ra.coreLabel = make([]int, len(skeleton))
	for i, o := range skeleton {
		ra.core[i] = o
		if c, ok := label[o]; ok {
			ra.coreLabel[i] = c
		} else {
			ra.coreLabel[i] = -1
		}
	}
	return ra
}

// reattachLayer resolves the membership of every point in layer. Neighbors
// are found against the core set as it stood when the layer started.
func (ra *reattacher) reattachLayer(layer []int) {
	clusterCount := ra.membership.Clusters()
	if len(layer) == 0 || clusterCount == 0 {
		return
	}

	k := min(ra.k, len(ra.core))
	nb, err := ra.searcher.Query(ra.all.Rows(ra.core), ra.all.Rows(layer), k)
	if err != nil {
		ra.log.Warn("border layer left unassigned", zap.Int("points", len(layer)), zap.Error(err))
		return
	}

	band := ra.beta / float64(clusterCount)
	means := make([]float64, clusterCount)
	for j, x := range layer {
		clear(means)
		for _, i := range nb.Indices[j] {
			if c := ra.coreLabel[i]; c >= 0 {
				means[c]++
			}
		}
		floats.Scale(1/float64(len(nb.Indices[j])), means)

		best := floats.MaxIdx(means)
		bestValue := means[best]
		ra.membership.Set(best, x)

		var ambiguous []int
		for c, v := range means {
			if bestValue-v <= band {
				ambiguous = append(ambiguous, c)
			}
		}

		if bestValue >= ra.alpha || len(ambiguous) <= 1 {
			ra.core = append(ra.core, x)
			ra.coreLabel = append(ra.coreLabel, best)
			continue
		}
		for _, c := range ambiguous {
			ra.membership.Set(c, x)
		}
	}
}
