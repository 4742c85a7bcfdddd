package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zegonz1/housing-tbs/estimator"
	"github.com/zegonz1/housing-tbs/ml"
)

// houseFlags maps form columns to flag names.
var houseFlags = map[string]string{
	"LotArea":      "lot-area",
	"BedroomAbvGr": "bedrooms",
	"FullBath":     "bathrooms",
	"Fireplaces":   "fireplaces",
	"KitchenAbvGr": "kitchens",
	"YearBuilt":    "year-built",
	"PoolArea":     "pool-area",
	"GarageCars":   "garage-cars",
}

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Fit the model and print the estimate for one house",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := loadConfig(cmd)
		cfg.Database.Path = ""

		house := ml.DefaultHouseFeatures()
		for _, f := range ml.HouseFields {
			v, _ := cmd.Flags().GetInt(houseFlags[f.Name])
			house.SetField(f.Name, v)
		}
		house.Heating, _ = cmd.Flags().GetString("heating")
		if err := house.Validate(); err != nil {
			return err
		}

		est, err := estimator.New(cfg)
		if err != nil {
			return err
		}
		ctx := context.Background()
		if err := est.Fit(ctx); err != nil {
			return err
		}
		result, err := est.EstimateHouse(ctx, house)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), result.Display)
		return nil
	},
}

func init() {
	defaults := ml.DefaultHouseFeatures()
	for _, f := range ml.HouseFields {
		estimateCmd.Flags().Int(houseFlags[f.Name], defaults.Field(f.Name), fmt.Sprintf("%s (%d-%d)", f.Label, f.Min, f.Max))
	}
	estimateCmd.Flags().String("heating", defaults.Heating, fmt.Sprintf("heating type, one of %v", ml.HeatingTypes))
	estimateCmd.Flags().String("dataset", "", "dataset path (overrides config)")
}
