package ml

import (
	"github.com/pkg/errors"

	"github.com/zegonz1/housing-tbs/dataset"
)

var (
	// ErrTraining means the training data cannot produce a model.
	ErrTraining = errors.New("training error")
	// ErrSchemaMismatch means a query record does not fit the columns the pipeline was fitted on.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrNotFitted is returned by predictions on a pipeline that has not been fitted.
	ErrNotFitted = errors.New("pipeline not fitted")
)

// Regressor learns a scalar target from dense feature vectors.
type Regressor interface {
	Fit(X [][]float64, y []float64) error
	Predict(x []float64) (float64, error)
}

// Predictor estimates a price from one query record.
type Predictor interface {
	Predict(record dataset.Record) (float64, error)
}

var (
	_ Regressor = (*RegressionTree)(nil)
	_ Regressor = (*RandomForest)(nil)
	_ Predictor = (*Pipeline)(nil)
)
