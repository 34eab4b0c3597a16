// Package forest implements a random forest regressor over small dense
// datasets. Fit returns an immutable Model; the same data, parameters and
// seed always produce the same model.
package forest

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
)

const (
	// seedMix decorrelates the two PCG state words
	seedMix = 0x9e3779b97f4a7c15
	epsilon = 1e-12
)

var (
	ErrEmptyTrainingSet = errors.New("forest: empty training set")
	ErrShape            = errors.New("forest: inconsistent shape")
	ErrNotFinite        = errors.New("forest: non-finite value")
)

// Params configures tree growth
type Params struct {
	Trees           int
	MaxDepth        int // 0 grows until leaves are pure
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     int // 0 considers every feature at each split
	Bootstrap       bool
	Seed            uint64
}

// DefaultParams mirrors the usual random forest regressor defaults
func DefaultParams() Params {
	return Params{
		Trees:           100,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Bootstrap:       true,
	}
}

type node struct {
	feature   int // -1 marks a leaf
	threshold float64
	left      int
	right     int
	value     float64
}

type tree struct {
	nodes []node
}

func (t *tree) predict(x []float64) float64 {
	i := 0
	for t.nodes[i].feature >= 0 {
		n := t.nodes[i]
		if x[n.feature] <= n.threshold {
			i = n.left
		} else {
			i = n.right
		}
	}
	return t.nodes[i].value
}

// Model is a fitted forest
type Model struct {
	trees       []tree
	nFeatures   int
	importances []float64
}

// Fit grows a forest on rows X with targets y
func Fit(X [][]float64, y []float64, p Params) (*Model, error) {
	if len(X) == 0 {
		return nil, ErrEmptyTrainingSet
	}
	if len(X) != len(y) {
		return nil, fmt.Errorf("%w: %d rows, %d targets", ErrShape, len(X), len(y))
	}
	nf := len(X[0])
	if nf == 0 {
		return nil, fmt.Errorf("%w: no features", ErrShape)
	}
	for i, row := range X {
		if len(row) != nf {
			return nil, fmt.Errorf("%w: row %d has %d features, want %d", ErrShape, i, len(row), nf)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: row %d feature %d", ErrNotFinite, i, j)
			}
		}
		if math.IsNaN(y[i]) || math.IsInf(y[i], 0) {
			return nil, fmt.Errorf("%w: target %d", ErrNotFinite, i)
		}
	}

	p = withDefaults(p, nf)
	master := rand.New(rand.NewPCG(p.Seed, p.Seed^seedMix))

	m := &Model{
		trees:       make([]tree, 0, p.Trees),
		nFeatures:   nf,
		importances: make([]float64, nf),
	}

	contributing := 0
	for t := 0; t < p.Trees; t++ {
		child := master.Uint64()
		b := &builder{
			X:          X,
			y:          y,
			p:          p,
			rng:        rand.New(rand.NewPCG(child, child^seedMix)),
			importance: make([]float64, nf),
		}

		idx := b.sample(len(X))
		b.build(idx, 0)
		m.trees = append(m.trees, tree{nodes: b.nodes})

		var total float64
		for _, v := range b.importance {
			total += v
		}
		if total > 0 {
			for j, v := range b.importance {
				m.importances[j] += v / total
			}
			contributing++
		}
	}

	if contributing > 0 {
		var sum float64
		for j := range m.importances {
			m.importances[j] /= float64(contributing)
			sum += m.importances[j]
		}
		for j := range m.importances {
			m.importances[j] /= sum
		}
	}

	return m, nil
}

func withDefaults(p Params, nf int) Params {
	if p.Trees <= 0 {
		p.Trees = 100
	}
	if p.MinSamplesSplit < 2 {
		p.MinSamplesSplit = 2
	}
	if p.MinSamplesLeaf < 1 {
		p.MinSamplesLeaf = 1
	}
	if p.MaxFeatures <= 0 || p.MaxFeatures > nf {
		p.MaxFeatures = nf
	}
	return p
}

// Predict returns the mean prediction of all trees for x
func (m *Model) Predict(x []float64) (float64, error) {
	if len(x) != m.nFeatures {
		return 0, fmt.Errorf("%w: got %d features, want %d", ErrShape, len(x), m.nFeatures)
	}
	var sum float64
	for i := range m.trees {
		sum += m.trees[i].predict(x)
	}
	return sum / float64(len(m.trees)), nil
}

// FeatureImportances returns the normalised impurity decrease per feature.
// All values are zero when no tree found a useful split.
func (m *Model) FeatureImportances() []float64 {
	return append([]float64(nil), m.importances...)
}

// NumTrees returns the number of trees in the forest
func (m *Model) NumTrees() int {
	return len(m.trees)
}

type builder struct {
	X          [][]float64
	y          []float64
	p          Params
	rng        *rand.Rand
	nodes      []node
	importance []float64
}

func (b *builder) sample(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		if b.p.Bootstrap {
			idx[i] = b.rng.IntN(n)
		} else {
			idx[i] = i
		}
	}
	return idx
}

type split struct {
	feature   int
	threshold float64
	sse       float64
	left      []int
	right     []int
}

func (b *builder) build(idx []int, depth int) int {
	n := len(idx)
	var sum float64
	for _, i := range idx {
		sum += b.y[i]
	}
	mean := sum / float64(n)
	var sse float64
	for _, i := range idx {
		d := b.y[i] - mean
		sse += d * d
	}

	id := len(b.nodes)
	b.nodes = append(b.nodes, node{feature: -1, value: mean})

	if n < b.p.MinSamplesSplit || sse <= epsilon || (b.p.MaxDepth > 0 && depth >= b.p.MaxDepth) {
		return id
	}

	best, ok := b.bestSplit(idx, sse)
	if !ok {
		return id
	}

	b.importance[best.feature] += sse - best.sse
	left := b.build(best.left, depth+1)
	right := b.build(best.right, depth+1)

	b.nodes[id] = node{
		feature:   best.feature,
		threshold: best.threshold,
		left:      left,
		right:     right,
		value:     mean,
	}
	return id
}

func (b *builder) bestSplit(idx []int, nodeSSE float64) (split, bool) {
	n := len(idx)
	var sum, sumSq float64
	for _, i := range idx {
		sum += b.y[i]
		sumSq += b.y[i] * b.y[i]
	}

	best := split{sse: nodeSSE - epsilon}
	found := false

	features := b.rng.Perm(len(b.importance))[:b.p.MaxFeatures]
	sorted := make([]int, n)
	for _, f := range features {
		copy(sorted, idx)
		slices.SortStableFunc(sorted, func(a, c int) int {
			return cmp.Compare(b.X[a][f], b.X[c][f])
		})

		var sumL, sqL float64
		for pos := 0; pos < n-1; pos++ {
			yi := b.y[sorted[pos]]
			sumL += yi
			sqL += yi * yi

			lo, hi := b.X[sorted[pos]][f], b.X[sorted[pos+1]][f]
			if lo == hi {
				continue
			}
			nl, nr := pos+1, n-pos-1
			if nl < b.p.MinSamplesLeaf || nr < b.p.MinSamplesLeaf {
				continue
			}

			sseL := math.Max(0, sqL-sumL*sumL/float64(nl))
			sumR := sum - sumL
			sseR := math.Max(0, (sumSq-sqL)-sumR*sumR/float64(nr))
			if sseL+sseR >= best.sse {
				continue
			}

			threshold := (lo + hi) / 2
			if threshold >= hi {
				threshold = lo
			}
			best = split{
				feature:   f,
				threshold: threshold,
				sse:       sseL + sseR,
				left:      append([]int(nil), sorted[:nl]...),
				right:     append([]int(nil), sorted[nl:]...),
			}
			found = true
		}
	}

	return best, found
}
