package ml

import (
	"math"

	"github.com/pkg/errors"

	"github.com/zegonz1/housing-tbs/dataset"
)

// Pipeline chains the column preprocessor and the random forest. It is fitted at most once;
// after Fit returns it is read-only and safe for concurrent Predict calls.
type Pipeline struct {
	opts []RandomForestOption

	pre    *Preprocessor
	forest *RandomForest
	rows   int
	fitted bool
}

// NewPipeline returns an unfitted pipeline. Options configure the forest.
func NewPipeline(opts ...RandomForestOption) *Pipeline {
	return &Pipeline{opts: opts}
}

// Fit learns imputation statistics and category vocabularies from the features, then trains
// the forest on the transformed rows.
func (p *Pipeline) Fit(features []dataset.Record, target []float64, numeric, categorical []string) error {
	if p.fitted {
		return errors.Wrap(ErrTraining, "pipeline already fitted")
	}
	if len(features) < 2 {
		return errors.Wrapf(ErrTraining, "need at least 2 rows, got %d", len(features))
	}
	if len(features) != len(target) {
		return errors.Wrapf(ErrTraining, "%d feature rows but %d targets", len(features), len(target))
	}
	for i, v := range target {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Wrapf(ErrTraining, "target row %d is not finite", i)
		}
	}

	pre := NewPreprocessor(numeric, categorical)
	if err := pre.Fit(features); err != nil {
		return err
	}
	X := make([][]float64, len(features))
	for i, record := range features {
		row, err := pre.Transform(record)
		if err != nil {
			return errors.Wrapf(ErrTraining, "row %d: %v", i, err)
		}
		X[i] = row
	}
	if pre.Width() == 0 {
		return errors.Wrap(ErrTraining, "no feature columns")
	}

	forest := NewRandomForest(p.opts...)
	if err := forest.Fit(X, target); err != nil {
		return errors.Wrap(ErrTraining, err.Error())
	}

	p.pre = pre
	p.forest = forest
	p.rows = len(features)
	p.fitted = true
	return nil
}

// Predict estimates the target for one record. Every fitted column must be present in the
// record, possibly as a missing value; extra columns are ignored.
func (p *Pipeline) Predict(record dataset.Record) (float64, error) {
	if !p.fitted {
		return 0, ErrNotFitted
	}
	x, err := p.pre.Transform(record)
	if err != nil {
		return 0, err
	}
	return p.forest.Predict(x)
}

// PredictBatch predicts every record, stopping at the first error.
func (p *Pipeline) PredictBatch(records []dataset.Record) ([]float64, error) {
	out := make([]float64, len(records))
	for i, record := range records {
		v, err := p.Predict(record)
		if err != nil {
			return nil, errors.Wrapf(err, "record %d", i)
		}
		out[i] = v
	}
	return out, nil
}

// Fitted reports whether Fit has succeeded.
func (p *Pipeline) Fitted() bool { return p.fitted }

// Rows is the number of training rows.
func (p *Pipeline) Rows() int { return p.rows }

// Trees is the number of trees in the fitted forest.
func (p *Pipeline) Trees() int {
	if !p.fitted {
		return 0
	}
	return len(p.forest.Trees)
}

// Schema returns the columns the pipeline was fitted on.
func (p *Pipeline) Schema() dataset.Schema {
	if !p.fitted {
		return dataset.Schema{}
	}
	return dataset.Schema{
		Numeric:     append([]string(nil), p.pre.Numeric...),
		Categorical: append([]string(nil), p.pre.Categorical...),
	}
}

// FeatureNames names the columns of the transformed vectors.
func (p *Pipeline) FeatureNames() []string {
	if !p.fitted {
		return nil
	}
	return p.pre.FeatureNames()
}

// FeatureImportances maps every transformed column to its forest importance.
func (p *Pipeline) FeatureImportances() map[string]float64 {
	if !p.fitted {
		return nil
	}
	names := p.pre.FeatureNames()
	imp := p.forest.FeatureImportances()
	out := make(map[string]float64, len(names))
	for j, name := range names {
		if j < len(imp) {
			out[name] = imp[j]
		}
	}
	return out
}

// Medians returns the fill value of each numeric column.
func (p *Pipeline) Medians() map[string]float64 {
	if !p.fitted {
		return nil
	}
	return p.pre.Medians()
}

// Modes returns the fill value of each categorical column.
func (p *Pipeline) Modes() map[string]string {
	if !p.fitted {
		return nil
	}
	return p.pre.Modes()
}
