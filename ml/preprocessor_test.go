package ml

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zegonz1/housing-tbs/dataset"
)

func TestMedianImputer(t *testing.T) {
	var m MedianImputer
	require.NoError(t, m.Fit([]float64{4, math.NaN(), 1, 3, 2}))
	assert.Equal(t, 2.5, m.Median)
	assert.Equal(t, 2.5, m.Transform(math.NaN()))
	assert.Equal(t, 9.0, m.Transform(9))

	require.NoError(t, m.Fit([]float64{5, 1, 3}))
	assert.Equal(t, 3.0, m.Median)

	assert.Error(t, m.Fit([]float64{math.NaN()}))
}

func TestMostFrequentImputer(t *testing.T) {
	var m MostFrequentImputer
	require.NoError(t, m.Fit([]string{"GasW", "GasA", "", "GasW", "GasA", "Grav"}))
	assert.Equal(t, "GasA", m.Mode)
	assert.Equal(t, "GasA", m.Transform(""))
	assert.Equal(t, "Wall", m.Transform("Wall"))

	assert.Error(t, m.Fit([]string{"", ""}))
}

func TestOneHotEncoder(t *testing.T) {
	var e OneHotEncoder
	e.Fit([]string{"Grav", "GasA", "GasW", "GasA"})
	assert.Equal(t, []string{"GasA", "GasW", "Grav"}, e.Categories)
	assert.Equal(t, 3, e.Width())

	dst := make([]float64, 3)
	e.Encode("GasW", dst)
	assert.Equal(t, []float64{0, 1, 0}, dst)
	e.Encode("Solar", dst)
	assert.Equal(t, []float64{0, 0, 0}, dst)
}

func TestPreprocessorTransform(t *testing.T) {
	records := []dataset.Record{
		{"LotArea": dataset.Numeric(100), "Heating": dataset.Categorical("GasA"), "Alley": dataset.Categorical("Pave")},
		{"LotArea": dataset.Missing(), "Heating": dataset.Categorical("Grav"), "Alley": dataset.Missing()},
		{"LotArea": dataset.Numeric(300), "Heating": dataset.Missing(), "Alley": dataset.Categorical("Grvl")},
		{"LotArea": dataset.Categorical("200"), "Heating": dataset.Categorical("Grav"), "Alley": dataset.Categorical("Pave")},
	}
	p := NewPreprocessor([]string{"LotArea"}, []string{"Heating", "Alley"})
	require.NoError(t, p.Fit(records))
	assert.Equal(t, 5, p.Width())
	assert.Equal(t, []string{"LotArea", "Heating=GasA", "Heating=Grav", "Alley=Grvl", "Alley=Pave"}, p.FeatureNames())
	assert.Equal(t, map[string]float64{"LotArea": 200}, p.Medians())
	assert.Equal(t, map[string]string{"Heating": "Grav", "Alley": "Pave"}, p.Modes())

	out, err := p.Transform(records[1])
	require.NoError(t, err)
	assert.Equal(t, []float64{200, 0, 1, 0, 1}, out)

	out, err = p.Transform(dataset.Record{
		"LotArea": dataset.Numeric(50),
		"Heating": dataset.Categorical("Floor"),
		"Alley":   dataset.Categorical("Grvl"),
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{50, 0, 0, 1, 0}, out)

	_, err = p.Transform(dataset.Record{"LotArea": dataset.Numeric(1)})
	assert.True(t, errors.Is(err, ErrSchemaMismatch))
	assert.Contains(t, err.Error(), "Heating, Alley")
}
