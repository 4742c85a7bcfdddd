package ml

import (
	"math"
	"math/rand"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// featureThreshold is the smallest gap between two values that can be split on.
const featureThreshold = 1e-7

// RegressionTree is a CART tree with squared-error splits and mean-valued leaves.
type RegressionTree struct {
	MaxDepth        int // 0 means unlimited
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     int // features tried per split, 0 means all

	nodes       []TreeNode
	importances []float64
}

// TreeNode is one node of the flattened tree. Children are indexes into the node slice.
type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	Value      float64 `json:"value"`
	Samples    int     `json:"samples"`
	IsLeaf     bool    `json:"is_leaf"`
}

// Fit trains the tree on every row of X.
func (dt *RegressionTree) Fit(X [][]float64, y []float64) error {
	idx := make([]int, len(X))
	for i := range idx {
		idx[i] = i
	}
	return dt.fit(X, y, idx, rand.New(rand.NewSource(0)))
}

// fit trains on the rows listed in idx, which may repeat rows (bootstrap samples).
func (dt *RegressionTree) fit(X [][]float64, y []float64, idx []int, rnd *rand.Rand) error {
	if len(X) == 0 || len(y) == 0 {
		return errors.New("features or targets empty")
	}
	if len(X) != len(y) {
		return errors.New("features and targets size mismatch")
	}
	p := len(X[0])
	for i := range X {
		if len(X[i]) != p {
			return errors.Errorf("row %d has %d features, expected %d", i, len(X[i]), p)
		}
	}
	if dt.MinSamplesSplit < 2 {
		dt.MinSamplesSplit = 2
	}
	if dt.MinSamplesLeaf < 1 {
		dt.MinSamplesLeaf = 1
	}

	b := &treeBuilder{tree: dt, X: X, y: y, rnd: rnd, features: make([]int, p)}
	for j := range b.features {
		b.features[j] = j
	}
	dt.nodes = nil
	dt.importances = make([]float64, p)
	b.build(idx, 0)
	return nil
}

// Predict walks the tree for one feature vector.
func (dt *RegressionTree) Predict(x []float64) (float64, error) {
	if len(dt.nodes) == 0 {
		return 0, errors.New("model not trained")
	}
	idx := 0
	for {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return node.Value, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(x) {
			return 0, errors.New("feature index out of range")
		}
		if x[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx <= 0 || idx >= len(dt.nodes) {
			return 0, errors.New("invalid tree state")
		}
	}
}

// Nodes returns the flattened tree.
func (dt *RegressionTree) Nodes() []TreeNode { return dt.nodes }

// Depth returns the length of the longest root-to-leaf path.
func (dt *RegressionTree) Depth() int {
	if len(dt.nodes) == 0 {
		return 0
	}
	var walk func(i int) int
	walk = func(i int) int {
		node := dt.nodes[i]
		if node.IsLeaf {
			return 0
		}
		return 1 + max(walk(node.LeftChild), walk(node.RightChild))
	}
	return walk(0)
}

// FeatureImportances returns the total squared-error reduction per feature, normalized to sum to 1.
func (dt *RegressionTree) FeatureImportances() []float64 {
	out := append([]float64(nil), dt.importances...)
	total := 0.0
	for _, v := range out {
		total += v
	}
	if total > 0 {
		for i := range out {
			out[i] /= total
		}
	}
	return out
}

type treeBuilder struct {
	tree     *RegressionTree
	X        [][]float64
	y        []float64
	rnd      *rand.Rand
	features []int
}

type split struct {
	feature     int
	threshold   float64
	improvement float64
}

func (b *treeBuilder) build(idx []int, depth int) int {
	t := b.tree
	targets := make([]float64, len(idx))
	for i, row := range idx {
		targets[i] = b.y[row]
	}
	mean := stat.Mean(targets, nil)

	id := len(t.nodes)
	t.nodes = append(t.nodes, TreeNode{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		Value:      mean,
		Samples:    len(idx),
		IsLeaf:     true,
	})

	if len(idx) < t.MinSamplesSplit || len(idx) < 2*t.MinSamplesLeaf {
		return id
	}
	if t.MaxDepth > 0 && depth >= t.MaxDepth {
		return id
	}
	sse := 0.0
	for _, v := range targets {
		sse += (v - mean) * (v - mean)
	}
	if sse <= 0 {
		return id
	}

	best, ok := b.findBestSplit(idx)
	if !ok {
		return id
	}
	t.importances[best.feature] += math.Max(best.improvement, 0)

	var leftIdx, rightIdx []int
	for _, row := range idx {
		if b.X[row][best.feature] <= best.threshold {
			leftIdx = append(leftIdx, row)
		} else {
			rightIdx = append(rightIdx, row)
		}
	}
	left := b.build(leftIdx, depth+1)
	right := b.build(rightIdx, depth+1)
	t.nodes[id].IsLeaf = false
	t.nodes[id].FeatureIdx = best.feature
	t.nodes[id].Threshold = best.threshold
	t.nodes[id].LeftChild = left
	t.nodes[id].RightChild = right
	return id
}

// findBestSplit visits features in random order until MaxFeatures non-constant features have
// been tried, and returns the split with the largest squared-error reduction.
func (b *treeBuilder) findBestSplit(idx []int) (split, bool) {
	t := b.tree
	p := len(b.features)
	budget := t.MaxFeatures
	if budget <= 0 || budget > p {
		budget = p
	}
	for i := 0; i < p; i++ {
		j := i + b.rnd.Intn(p-i)
		b.features[i], b.features[j] = b.features[j], b.features[i]
	}

	n := float64(len(idx))
	total := 0.0
	for _, row := range idx {
		total += b.y[row]
	}
	parent := total * total / n

	best := split{feature: -1}
	bestProxy := math.Inf(-1)
	order := make([]int, len(idx))
	visited := 0
	for _, f := range b.features {
		if visited >= budget {
			break
		}
		copy(order, idx)
		sort.SliceStable(order, func(a, c int) bool { return b.X[order[a]][f] < b.X[order[c]][f] })
		if b.X[order[len(order)-1]][f] <= b.X[order[0]][f]+featureThreshold {
			continue
		}
		visited++

		sumLeft := 0.0
		for k := 0; k < len(order)-1; k++ {
			sumLeft += b.y[order[k]]
			cur, next := b.X[order[k]][f], b.X[order[k+1]][f]
			if next <= cur+featureThreshold {
				continue
			}
			nLeft := k + 1
			nRight := len(order) - nLeft
			if nLeft < t.MinSamplesLeaf || nRight < t.MinSamplesLeaf {
				continue
			}
			sumRight := total - sumLeft
			proxy := sumLeft*sumLeft/float64(nLeft) + sumRight*sumRight/float64(nRight)
			if proxy > bestProxy {
				threshold := cur/2 + next/2
				if threshold == next || math.IsInf(threshold, 0) || math.IsNaN(threshold) {
					threshold = cur
				}
				bestProxy = proxy
				best = split{feature: f, threshold: threshold, improvement: proxy - parent}
			}
		}
	}
	return best, best.feature >= 0
}
