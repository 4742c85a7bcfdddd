package ml

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/zegonz1/housing-tbs/dataset"
)

// MedianImputer fills missing numeric cells with the column median seen at fit time.
type MedianImputer struct {
	Median float64 `json:"median"`
}

// Fit computes the median of the observed values.
func (m *MedianImputer) Fit(values []float64) error {
	observed := lo.Filter(values, func(v float64, _ int) bool { return !math.IsNaN(v) })
	if len(observed) == 0 {
		return errors.New("no observed values")
	}
	sort.Float64s(observed)
	mid := len(observed) / 2
	if len(observed)%2 == 0 {
		m.Median = (observed[mid-1] + observed[mid]) / 2
	} else {
		m.Median = observed[mid]
	}
	return nil
}

// Transform replaces NaN with the fitted median.
func (m *MedianImputer) Transform(v float64) float64 {
	if math.IsNaN(v) {
		return m.Median
	}
	return v
}

// MostFrequentImputer fills missing categorical cells with the most frequent label.
// Ties go to the lexicographically smallest label.
type MostFrequentImputer struct {
	Mode string `json:"mode"`
}

// Fit counts the observed labels. An empty string means missing.
func (m *MostFrequentImputer) Fit(values []string) error {
	counts := lo.CountValues(lo.Filter(values, func(v string, _ int) bool { return v != "" }))
	if len(counts) == 0 {
		return errors.New("no observed values")
	}
	best, bestCount := "", -1
	for label, count := range counts {
		if count > bestCount || (count == bestCount && label < best) {
			best, bestCount = label, count
		}
	}
	m.Mode = best
	return nil
}

// Transform replaces the empty label with the fitted mode.
func (m *MostFrequentImputer) Transform(v string) string {
	if v == "" {
		return m.Mode
	}
	return v
}

// OneHotEncoder expands a label into indicator columns over the sorted labels seen at fit time.
// Labels never seen during fit encode as all zeros.
type OneHotEncoder struct {
	Categories []string `json:"categories"`
	index      map[string]int
}

// Fit records the distinct labels.
func (e *OneHotEncoder) Fit(values []string) {
	e.Categories = lo.Uniq(values)
	sort.Strings(e.Categories)
	e.index = make(map[string]int, len(e.Categories))
	for i, c := range e.Categories {
		e.index[c] = i
	}
}

// Width is the number of indicator columns.
func (e *OneHotEncoder) Width() int { return len(e.Categories) }

// Encode writes the indicator block of v into dst, which must have Width() elements.
func (e *OneHotEncoder) Encode(v string, dst []float64) {
	for i := range dst {
		dst[i] = 0
	}
	if i, ok := e.index[v]; ok {
		dst[i] = 1
	}
}

// Preprocessor is the column transformer in front of the regressor: median imputation for
// numeric columns, most-frequent imputation plus one-hot encoding for categorical columns.
// Output vectors hold the numeric columns first, then one indicator block per categorical column.
type Preprocessor struct {
	Numeric     []string
	Categorical []string

	medians  []MedianImputer
	modes    []MostFrequentImputer
	encoders []OneHotEncoder
	width    int
}

// NewPreprocessor declares which columns are numeric and which are categorical.
func NewPreprocessor(numeric, categorical []string) *Preprocessor {
	return &Preprocessor{
		Numeric:     append([]string(nil), numeric...),
		Categorical: append([]string(nil), categorical...),
	}
}

// Fit learns medians, modes and category vocabularies from the training records.
func (p *Preprocessor) Fit(records []dataset.Record) error {
	schema := dataset.Schema{Numeric: p.Numeric, Categorical: p.Categorical}
	if err := schema.Validate(); err != nil {
		return errors.Wrap(ErrTraining, err.Error())
	}
	for _, name := range schema.Columns() {
		for i, record := range records {
			if _, ok := record[name]; !ok {
				return errors.Wrapf(ErrTraining, "column %q absent from row %d", name, i)
			}
		}
	}

	p.medians = make([]MedianImputer, len(p.Numeric))
	for j, name := range p.Numeric {
		values := make([]float64, len(records))
		for i, record := range records {
			v, err := numericValue(record[name])
			if err != nil {
				return errors.Wrapf(ErrTraining, "column %q row %d: %v", name, i, err)
			}
			values[i] = v
		}
		if err := p.medians[j].Fit(values); err != nil {
			return errors.Wrapf(ErrTraining, "column %q: %v", name, err)
		}
	}

	p.modes = make([]MostFrequentImputer, len(p.Categorical))
	p.encoders = make([]OneHotEncoder, len(p.Categorical))
	for j, name := range p.Categorical {
		values := make([]string, len(records))
		for i, record := range records {
			values[i] = categoricalValue(record[name])
		}
		if err := p.modes[j].Fit(values); err != nil {
			return errors.Wrapf(ErrTraining, "column %q: %v", name, err)
		}
		p.encoders[j].Fit(lo.Map(values, func(v string, _ int) string { return p.modes[j].Transform(v) }))
	}

	p.width = len(p.Numeric)
	for j := range p.encoders {
		p.width += p.encoders[j].Width()
	}
	return nil
}

// Width is the length of transformed vectors.
func (p *Preprocessor) Width() int { return p.width }

// Transform applies the fitted imputation and encoding to one record.
func (p *Preprocessor) Transform(record dataset.Record) ([]float64, error) {
	missing := lo.Filter(append(append([]string(nil), p.Numeric...), p.Categorical...), func(name string, _ int) bool {
		_, ok := record[name]
		return !ok
	})
	if len(missing) > 0 {
		return nil, errors.Wrapf(ErrSchemaMismatch, "missing columns %s", strings.Join(missing, ", "))
	}

	out := make([]float64, p.width)
	for j, name := range p.Numeric {
		v, err := numericValue(record[name])
		if err != nil {
			return nil, errors.Wrapf(ErrSchemaMismatch, "column %q: %v", name, err)
		}
		out[j] = p.medians[j].Transform(v)
	}
	offset := len(p.Numeric)
	for j, name := range p.Categorical {
		enc := &p.encoders[j]
		enc.Encode(p.modes[j].Transform(categoricalValue(record[name])), out[offset:offset+enc.Width()])
		offset += enc.Width()
	}
	return out, nil
}

// FeatureNames names every output column: numeric columns as-is, indicators as "column=label".
func (p *Preprocessor) FeatureNames() []string {
	names := make([]string, 0, p.width)
	names = append(names, p.Numeric...)
	for j, name := range p.Categorical {
		for _, c := range p.encoders[j].Categories {
			names = append(names, name+"="+c)
		}
	}
	return names
}

// Medians returns the fitted median per numeric column.
func (p *Preprocessor) Medians() map[string]float64 {
	out := make(map[string]float64, len(p.Numeric))
	for j, name := range p.Numeric {
		out[name] = p.medians[j].Median
	}
	return out
}

// Modes returns the fitted most frequent label per categorical column.
func (p *Preprocessor) Modes() map[string]string {
	out := make(map[string]string, len(p.Categorical))
	for j, name := range p.Categorical {
		out[name] = p.modes[j].Mode
	}
	return out
}

// numericValue reads a cell of a numeric column. Missing cells come back as NaN;
// text is accepted when it parses as a number.
func numericValue(v dataset.Value) (float64, error) {
	switch v.Kind {
	case dataset.KindNumeric:
		return v.Num, nil
	case dataset.KindCategorical:
		s := strings.TrimSpace(v.Str)
		if s == "" || dataset.IsNA(s) {
			return math.NaN(), nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, errors.Errorf("%q is not a number", v.Str)
		}
		return f, nil
	default:
		return math.NaN(), nil
	}
}

// categoricalValue reads a cell of a categorical column. Missing cells come back empty.
func categoricalValue(v dataset.Value) string {
	switch v.Kind {
	case dataset.KindNumeric:
		if math.IsNaN(v.Num) {
			return ""
		}
		return v.String()
	case dataset.KindCategorical:
		return v.Str
	default:
		return ""
	}
}
