package ml

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"

	"github.com/zegonz1/housing-tbs/dataset"
)

// TargetVector converts target cells to floats. Every cell must be a finite number.
func TargetVector(values []dataset.Value) ([]float64, error) {
	out := make([]float64, len(values))
	for i, v := range values {
		if v.Kind != dataset.KindNumeric {
			return nil, errors.Wrapf(ErrTraining, "target row %d is %s, expected a number", i, v.Kind)
		}
		if math.IsNaN(v.Num) || math.IsInf(v.Num, 0) {
			return nil, errors.Wrapf(ErrTraining, "target row %d is not finite", i)
		}
		out[i] = v.Num
	}
	return out, nil
}

// Train fits a new pipeline on a loaded dataset using its inferred schema.
func Train(ds *dataset.Dataset, opts ...RandomForestOption) (*Pipeline, error) {
	if ds == nil {
		return nil, errors.Wrap(ErrTraining, "no dataset")
	}
	y, err := TargetVector(ds.Target)
	if err != nil {
		return nil, err
	}
	p := NewPipeline(opts...)
	if err := p.Fit(ds.Records, y, ds.Schema.Numeric, ds.Schema.Categorical); err != nil {
		return nil, err
	}
	return p, nil
}

// TrainTestSplit shuffles row indexes with a seeded source and holds out testRatio of them.
// Ratios outside (0, 1) fall back to 0.2.
func TrainTestSplit(n int, testRatio float64, seed int64) (train, test []int) {
	if testRatio <= 0 || testRatio >= 1 {
		testRatio = 0.2
	}
	indices := rand.New(rand.NewSource(seed)).Perm(n)
	split := int(math.Round(float64(n) * (1 - testRatio)))
	return indices[:split], indices[split:]
}

// Subset picks the records and targets at the given row indexes.
func Subset(records []dataset.Record, target []float64, idx []int) ([]dataset.Record, []float64) {
	outX := make([]dataset.Record, len(idx))
	outY := make([]float64, len(idx))
	for i, j := range idx {
		outX[i] = records[j]
		outY[i] = target[j]
	}
	return outX, outY
}
