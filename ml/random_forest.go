package ml

import (
	"math/rand"
	"runtime"
	"sync"

	"github.com/pkg/errors"
)

// RandomForest averages bootstrapped regression trees.
type RandomForest struct {
	NEstimators     int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     float64 // fraction of features tried per split
	Bootstrap       bool
	RandomState     int64
	Workers         int

	Trees []*RegressionTree
}

// RandomForestOption configures a RandomForest.
type RandomForestOption func(*RandomForest)

// WithNEstimators sets the number of trees.
func WithNEstimators(n int) RandomForestOption {
	return func(rf *RandomForest) { rf.NEstimators = n }
}

// WithMaxDepth limits tree depth. 0 grows trees until leaves are pure.
func WithMaxDepth(d int) RandomForestOption {
	return func(rf *RandomForest) { rf.MaxDepth = d }
}

func WithMinSamplesSplit(n int) RandomForestOption {
	return func(rf *RandomForest) { rf.MinSamplesSplit = n }
}

func WithMinSamplesLeaf(n int) RandomForestOption {
	return func(rf *RandomForest) { rf.MinSamplesLeaf = n }
}

// WithMaxFeatures sets the fraction of features tried at each split.
func WithMaxFeatures(frac float64) RandomForestOption {
	return func(rf *RandomForest) { rf.MaxFeatures = frac }
}

func WithBootstrap(b bool) RandomForestOption {
	return func(rf *RandomForest) { rf.Bootstrap = b }
}

func WithRandomState(seed int64) RandomForestOption {
	return func(rf *RandomForest) { rf.RandomState = seed }
}

// WithWorkers bounds the number of trees fitted at the same time.
func WithWorkers(n int) RandomForestOption { return func(rf *RandomForest) { rf.Workers = n } }

// NewRandomForest returns an unfitted forest: 100 fully grown trees over bootstrap samples,
// every feature considered at each split, seed 42.
func NewRandomForest(opts ...RandomForestOption) *RandomForest {
	rf := &RandomForest{
		NEstimators:     100,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		MaxFeatures:     1.0,
		Bootstrap:       true,
		RandomState:     42,
		Workers:         runtime.NumCPU(),
	}
	for _, o := range opts {
		o(rf)
	}
	return rf
}

// Fit trains every tree. Tree i draws its bootstrap sample and feature order from a source
// seeded with RandomState+i, so the result does not depend on scheduling.
func (rf *RandomForest) Fit(X [][]float64, y []float64) error {
	if len(X) == 0 {
		return errors.New("randomforest: empty X")
	}
	n := len(X)
	if len(y) != n {
		return errors.New("randomforest: X and y length mismatch")
	}
	if rf.NEstimators < 1 {
		return errors.Errorf("randomforest: n_estimators must be positive, got %d", rf.NEstimators)
	}
	if rf.MaxFeatures <= 0 || rf.MaxFeatures > 1 {
		return errors.Errorf("randomforest: max_features must be in (0, 1], got %v", rf.MaxFeatures)
	}
	maxFeatures := max(1, int(rf.MaxFeatures*float64(len(X[0]))))
	workers := rf.Workers
	if workers < 1 {
		workers = 1
	}

	trees := make([]*RegressionTree, rf.NEstimators)
	var wg sync.WaitGroup
	errCh := make(chan error, rf.NEstimators)
	sem := make(chan struct{}, workers)

	for i := 0; i < rf.NEstimators; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			treeRand := rand.New(rand.NewSource(rf.RandomState + int64(idx)))
			sample := make([]int, n)
			for j := range sample {
				if rf.Bootstrap {
					sample[j] = treeRand.Intn(n)
				} else {
					sample[j] = j
				}
			}

			tree := &RegressionTree{
				MaxDepth:        rf.MaxDepth,
				MinSamplesSplit: rf.MinSamplesSplit,
				MinSamplesLeaf:  rf.MinSamplesLeaf,
				MaxFeatures:     maxFeatures,
			}
			if err := tree.fit(X, y, sample, treeRand); err != nil {
				errCh <- errors.Wrapf(err, "tree %d", idx)
				return
			}
			trees[idx] = tree
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			return err
		}
	}
	rf.Trees = trees
	return nil
}

// Predict returns the mean of the tree predictions, summed in tree order.
func (rf *RandomForest) Predict(x []float64) (float64, error) {
	if len(rf.Trees) == 0 {
		return 0, errors.New("randomforest: not trained")
	}
	sum := 0.0
	for i, tree := range rf.Trees {
		v, err := tree.Predict(x)
		if err != nil {
			return 0, errors.Wrapf(err, "tree %d", i)
		}
		sum += v
	}
	return sum / float64(len(rf.Trees)), nil
}

// FeatureImportances averages the normalized importances of all trees.
func (rf *RandomForest) FeatureImportances() []float64 {
	if len(rf.Trees) == 0 {
		return nil
	}
	var out []float64
	for _, tree := range rf.Trees {
		imp := tree.FeatureImportances()
		if out == nil {
			out = make([]float64, len(imp))
		}
		for j, v := range imp {
			out[j] += v
		}
	}
	for j := range out {
		out[j] /= float64(len(rf.Trees))
	}
	return out
}
