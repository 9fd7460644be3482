package m3w

import (
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// peeler owns the state of the iterative peeling loop. The score buffer,
// active view and alive mask are reset or replaced each iteration and never
// escape the loop.
type peeler struct {
	cfg      Config
	log      *zap.Logger
	searcher NeighborSearcher
	policy   ThresholdPolicy

	all    *Points
	full   *Neighbors // every point's neighbors over the full set, nearest first
	active *Points
	alive  []bool // by original index: still in the active set
	scores []float64
	links  *linkThresholds

	layers      [][]int
	layerScores [][]float64
	layerMeans  []float64
	linked      []Link
	held        []int // unlinked peeled points kept as core

	lastPeeled int
	iterations int
	stop       StopReason
}

func newPeeler(all *Points, searcher NeighborSearcher, cfg Config, distThreshold float64) *peeler {
	alive := make([]bool, all.N)
	for i := range alive {
		alive[i] = true
	}

	p := &peeler{
		cfg:      cfg,
		log:      cfg.Logger,
		searcher: searcher,
		policy:   thresholdPolicy(cfg),
		all:      all,
		active:   all,
		alive:    alive,
		links:    newLinkThresholds(all.N, distThreshold, searcher, cfg),
	}

	full, err := searcher.KNN(all, all.N-1)
	if err != nil {
		p.log.Warn("full neighbor graph unavailable, peeled points will not link", zap.Error(err))
		full = &Neighbors{Indices: make([][]int, all.N), Distances: make([][]float64, all.N)}
	}
	p.full = full
	return p
}

// run iterates until a stopping condition fires.
func (p *peeler) run() {
	total := p.all.N
	for t := 0; t < p.cfg.MaxIterations; t++ {
		if !p.step(t) {
			p.stop = StopDepleted
			return
		}
		p.iterations++

		if reason, done := p.shouldStop(t, total); done {
			p.stop = reason
			p.log.Info("peeling stopped",
				zap.String("reason", string(reason)),
				zap.Int("iteration", t),
				zap.Int("remaining", p.active.N))
			return
		}
	}
	p.stop = StopMaxIterations
}

// step runs one peeling iteration. It reports false when the neighbor
// oracle cannot serve the active subset.
func (p *peeler) step(t int) bool {
	before := p.active
	k := min(p.cfg.K, before.N-1)
	nb, err := p.searcher.KNN(before, k)
	if err != nil {
		p.log.Debug("neighbor search infeasible, stopping", zap.Int("iteration", t), zap.Error(err))
		return false
	}

	p.scores = resetBuffer(p.scores, before.N)
	p.cfg.Scorer.Score(nb, p.scores)
	keep := p.policy.Keep(p.scores)

	var layer []int
	var layerScores []float64
	for i, kept := range keep {
		if kept {
			continue
		}
		o := before.Orig[i]
		p.alive[o] = false
		layer = append(layer, o)
		layerScores = append(layerScores, p.scores[i])
	}
	p.layerMeans = append(p.layerMeans, mean(layerScores))

	links, unlinked := associate(layer, p.full, p.alive, p.links.values)
	for _, l := range links {
		p.links.values[l.From] = l.Distance
	}
	p.linked = append(p.linked, links...)

	training := layer
	if p.cfg.KeepUnlinkedAsCore && len(unlinked) > 0 {
		layer, layerScores = withoutPoints(layer, layerScores, unlinked)
		p.held = append(p.held, unlinked...)
	}
	p.layers = append(p.layers, layer)
	p.layerScores = append(p.layerScores, layerScores)

	p.active = before.Subset(keep)
	p.lastPeeled = before.N - p.active.N

	if p.cfg.CumulativeThresholdTraining {
		training = training[:0:0]
		for o, a := range p.alive {
			if !a {
				training = append(training, o)
			}
		}
	}
	p.links.update(p.all, training, p.active, iteration{before: before, nb: nb, keep: keep})

	p.log.Debug("peeling iteration",
		zap.Int("iteration", t),
		zap.Int("peeled", p.lastPeeled),
		zap.Int("linked", len(links)),
		zap.Int("remaining", p.active.N))
	return true
}

// shouldStop evaluates the stopping conditions after iteration t, first match wins.
func (p *peeler) shouldStop(t, total int) (StopReason, bool) {
	if p.lastPeeled < p.cfg.ConvergenceConstant {
		return StopConverged, true
	}
	if p.cfg.MeanBorderEps > 0 && t+1 >= p.cfg.MinIterations && p.meanBorderDiverged() {
		return StopConverged, true
	}
	if float64(p.active.N) < p.cfg.StoppingPercentile*float64(total) {
		return StopConverged, true
	}
	if t+1 >= p.cfg.MaxIterations {
		return StopMaxIterations, true
	}
	return "", false
}

func (p *peeler) meanBorderDiverged() bool {
	m := p.layerMeans
	if len(m) < 3 {
		return false
	}
	a, b, c := m[len(m)-3], m[len(m)-2], m[len(m)-1]
	if a == 0 || b == 0 || math.IsNaN(a+b+c) {
		return false
	}
	diff := c/b - b/a
	p.log.Debug("mean border ratio difference", zap.Float64("diff", diff))
	return diff > p.cfg.MeanBorderEps
}

// corePoints returns the surviving active points followed by any held
// unlinked points, by original index.
func (p *peeler) corePoints() []int {
	core := make([]int, 0, p.active.N+len(p.held))
	core = append(core, p.active.Orig...)
	return append(core, p.held...)
}

func resetBuffer(buf []float64, n int) []float64 {
	if cap(buf) < n {
		return make([]float64, n)
	}
	buf = buf[:n]
	clear(buf)
	return buf
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	return stat.Mean(xs, nil)
}

// withoutPoints drops the listed original indices from a layer and its
// aligned scores.
func withoutPoints(layer []int, scores []float64, drop []int) ([]int, []float64) {
	skip := make(map[int]bool, len(drop))
	for _, o := range drop {
		skip[o] = true
	}
	var outLayer []int
	var outScores []float64
	for i, o := range layer {
		if skip[o] {
			continue
		}
		outLayer = append(outLayer, o)
		outScores = append(outScores, scores[i])
	}
	return outLayer, outScores
}
