package ml

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/zegonz1/housing-tbs/dataset"
)

// ErrInvalidFeatures means a house form value is outside its allowed range.
var ErrInvalidFeatures = errors.New("invalid house features")

// HeatingTypes are the heating labels offered by the form.
var HeatingTypes = []string{"GasA", "GasW", "Grav", "Wall", "Floor", "Steam", "Hot water", "Other"}

// HouseFeatures is the set of attributes a user enters to get an estimate.
type HouseFeatures struct {
	LotArea      int    `json:"LotArea" validate:"gte=0,lte=100000"`
	BedroomAbvGr int    `json:"BedroomAbvGr" validate:"gte=0,lte=10"`
	FullBath     int    `json:"FullBath" validate:"gte=0,lte=5"`
	Fireplaces   int    `json:"Fireplaces" validate:"gte=0,lte=5"`
	KitchenAbvGr int    `json:"KitchenAbvGr" validate:"gte=0,lte=5"`
	YearBuilt    int    `json:"YearBuilt" validate:"gte=1800,lte=2025"`
	PoolArea     int    `json:"PoolArea" validate:"gte=0,lte=1000"`
	GarageCars   int    `json:"GarageCars" validate:"gte=0,lte=10"`
	Heating      string `json:"Heating" validate:"required,oneof=GasA GasW Grav Wall Floor Steam 'Hot water' Other"`
}

// HouseField describes one numeric input of the form.
type HouseField struct {
	Name    string
	Label   string
	Min     int
	Max     int
	Step    int
	Default int
}

// HouseFields lists the numeric inputs in form order.
var HouseFields = []HouseField{
	{Name: "LotArea", Label: "Lot area (m²)", Min: 0, Max: 100000, Step: 100, Default: 7000},
	{Name: "BedroomAbvGr", Label: "Bedrooms", Min: 0, Max: 10, Step: 1, Default: 3},
	{Name: "FullBath", Label: "Bathrooms", Min: 0, Max: 5, Step: 1, Default: 2},
	{Name: "Fireplaces", Label: "Fireplaces", Min: 0, Max: 5, Step: 1, Default: 1},
	{Name: "KitchenAbvGr", Label: "Kitchens", Min: 0, Max: 5, Step: 1, Default: 1},
	{Name: "YearBuilt", Label: "Year built", Min: 1800, Max: 2025, Step: 1, Default: 2005},
	{Name: "PoolArea", Label: "Pool area (m²)", Min: 0, Max: 1000, Step: 10, Default: 0},
	{Name: "GarageCars", Label: "Garage (cars)", Min: 0, Max: 10, Step: 1, Default: 2},
}

// HouseColumns are the dataset columns the form fills.
var HouseColumns = []string{
	"LotArea", "YearBuilt", "Heating", "BedroomAbvGr", "PoolArea",
	"GarageCars", "Fireplaces", "KitchenAbvGr", "FullBath",
}

var validate = validator.New()

// DefaultHouseFeatures returns the values the form starts with.
func DefaultHouseFeatures() HouseFeatures {
	return HouseFeatures{
		LotArea:      7000,
		BedroomAbvGr: 3,
		FullBath:     2,
		Fireplaces:   1,
		KitchenAbvGr: 1,
		YearBuilt:    2005,
		PoolArea:     0,
		GarageCars:   2,
		Heating:      "GasA",
	}
}

// Validate checks every field against its bounds.
func (h HouseFeatures) Validate() error {
	err := validate.Struct(h)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.Wrap(ErrInvalidFeatures, err.Error())
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "gte":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param()))
		case "lte":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param()))
		case "oneof", "required":
			msgs = append(msgs, fmt.Sprintf("%s must be one of %s", fe.Field(), strings.Join(HeatingTypes, ", ")))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", fe.Field()))
		}
	}
	return errors.Wrap(ErrInvalidFeatures, strings.Join(msgs, "; "))
}

// Record converts the form into a query record keyed by dataset column.
func (h HouseFeatures) Record() dataset.Record {
	return dataset.Record{
		"LotArea":      dataset.Numeric(float64(h.LotArea)),
		"YearBuilt":    dataset.Numeric(float64(h.YearBuilt)),
		"Heating":      dataset.Categorical(h.Heating),
		"BedroomAbvGr": dataset.Numeric(float64(h.BedroomAbvGr)),
		"PoolArea":     dataset.Numeric(float64(h.PoolArea)),
		"GarageCars":   dataset.Numeric(float64(h.GarageCars)),
		"Fireplaces":   dataset.Numeric(float64(h.Fireplaces)),
		"KitchenAbvGr": dataset.Numeric(float64(h.KitchenAbvGr)),
		"FullBath":     dataset.Numeric(float64(h.FullBath)),
	}
}

// Field returns the integer value of a numeric input by column name.
func (h HouseFeatures) Field(name string) int {
	switch name {
	case "LotArea":
		return h.LotArea
	case "BedroomAbvGr":
		return h.BedroomAbvGr
	case "FullBath":
		return h.FullBath
	case "Fireplaces":
		return h.Fireplaces
	case "KitchenAbvGr":
		return h.KitchenAbvGr
	case "YearBuilt":
		return h.YearBuilt
	case "PoolArea":
		return h.PoolArea
	case "GarageCars":
		return h.GarageCars
	}
	return 0
}

// SetField sets a numeric input by column name. Unknown names are ignored.
func (h *HouseFeatures) SetField(name string, v int) {
	switch name {
	case "LotArea":
		h.LotArea = v
	case "BedroomAbvGr":
		h.BedroomAbvGr = v
	case "FullBath":
		h.FullBath = v
	case "Fireplaces":
		h.Fireplaces = v
	case "KitchenAbvGr":
		h.KitchenAbvGr = v
	case "YearBuilt":
		h.YearBuilt = v
	case "PoolArea":
		h.PoolArea = v
	case "GarageCars":
		h.GarageCars = v
	}
}
