package ml

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"

	"github.com/zegonz1/housing-tbs/dataset"
)

func TestHouseFeaturesValidate(t *testing.T) {
	assert.NoError(t, DefaultHouseFeatures().Validate())

	h := DefaultHouseFeatures()
	h.Heating = "Hot water"
	assert.NoError(t, h.Validate())

	tests := []struct {
		name   string
		mutate func(h *HouseFeatures)
		match  string
	}{
		{name: "lot too large", mutate: func(h *HouseFeatures) { h.LotArea = 100001 }, match: "LotArea must be at most 100000"},
		{name: "year too early", mutate: func(h *HouseFeatures) { h.YearBuilt = 1799 }, match: "YearBuilt must be at least 1800"},
		{name: "negative pool", mutate: func(h *HouseFeatures) { h.PoolArea = -1 }, match: "PoolArea"},
		{name: "too many kitchens", mutate: func(h *HouseFeatures) { h.KitchenAbvGr = 6 }, match: "KitchenAbvGr"},
		{name: "unknown heating", mutate: func(h *HouseFeatures) { h.Heating = "Solar" }, match: "Heating must be one of"},
		{name: "empty heating", mutate: func(h *HouseFeatures) { h.Heating = "" }, match: "Heating"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := DefaultHouseFeatures()
			tt.mutate(&h)
			err := h.Validate()
			assert.True(t, errors.Is(err, ErrInvalidFeatures))
			assert.Contains(t, err.Error(), tt.match)
		})
	}
}

func TestHouseFeaturesRecord(t *testing.T) {
	record := DefaultHouseFeatures().Record()
	assert.ElementsMatch(t, HouseColumns, lo.Keys(record))
	assert.Equal(t, dataset.Numeric(7000), record["LotArea"])
	assert.Equal(t, dataset.Categorical("GasA"), record["Heating"])
}

func TestHouseFieldsMatchDefaults(t *testing.T) {
	h := DefaultHouseFeatures()
	for _, f := range HouseFields {
		assert.Equal(t, f.Default, h.Field(f.Name), f.Name)
		assert.Contains(t, HouseColumns, f.Name)
	}
	h.SetField("GarageCars", 4)
	assert.Equal(t, 4, h.GarageCars)
}
