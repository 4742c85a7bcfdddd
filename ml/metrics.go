package ml

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/zegonz1/housing-tbs/dataset"
)

// Metrics summarizes regression error on a holdout set.
type Metrics struct {
	MAE  float64 `json:"mae"`
	RMSE float64 `json:"rmse"`
	R2   float64 `json:"r2"`
	N    int     `json:"n"`
}

// MAE is the mean absolute error.
func MAE(pred, actual []float64) float64 {
	if len(pred) == 0 {
		return 0
	}
	diff := make([]float64, len(pred))
	floats.SubTo(diff, pred, actual)
	return floats.Norm(diff, 1) / float64(len(pred))
}

// RMSE is the root mean squared error.
func RMSE(pred, actual []float64) float64 {
	if len(pred) == 0 {
		return 0
	}
	diff := make([]float64, len(pred))
	floats.SubTo(diff, pred, actual)
	return floats.Norm(diff, 2) / math.Sqrt(float64(len(pred)))
}

// R2 is the coefficient of determination of pred against actual. A constant actual has no
// variance to explain: R2 is 1 when pred matches it exactly and 0 otherwise.
func R2(pred, actual []float64) float64 {
	if len(actual) == 0 {
		return 0
	}
	if floats.Max(actual) == floats.Min(actual) {
		if floats.Equal(pred, actual) {
			return 1
		}
		return 0
	}
	return stat.RSquaredFrom(pred, actual, nil)
}

// Evaluate predicts every record and scores the result against target.
func Evaluate(p *Pipeline, records []dataset.Record, target []float64) (Metrics, error) {
	if len(records) != len(target) {
		return Metrics{}, errors.Errorf("%d records but %d targets", len(records), len(target))
	}
	if len(records) == 0 {
		return Metrics{}, errors.New("nothing to evaluate")
	}
	pred, err := p.PredictBatch(records)
	if err != nil {
		return Metrics{}, err
	}
	return Metrics{
		MAE:  MAE(pred, target),
		RMSE: RMSE(pred, target),
		R2:   R2(pred, target),
		N:    len(pred),
	}, nil
}
