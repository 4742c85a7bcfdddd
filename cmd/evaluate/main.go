package main

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zegonz1/housing-tbs/config"
	"github.com/zegonz1/housing-tbs/dataset"
	"github.com/zegonz1/housing-tbs/estimator"
	"github.com/zegonz1/housing-tbs/log"
	"github.com/zegonz1/housing-tbs/ml"
)

var rootCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score the random forest on a held-out split of the dataset",
	Args:  cobra.NoArgs,
	RunE:  evaluate,
}

func init() {
	rootCmd.Flags().StringP("config", "c", "", "path of config.yaml (defaults apply when empty)")
	rootCmd.Flags().String("dataset", "", "dataset path (overrides config)")
	rootCmd.Flags().Float64("test-ratio", 0.2, "share of rows held out for scoring")
	rootCmd.Flags().Int64("seed", 42, "seed of the shuffle before splitting")
	rootCmd.Flags().Int("trees", 0, "number of trees (overrides config)")
	rootCmd.Flags().Bool("json", false, "print the metrics as JSON")
	log.AddFlags(rootCmd.Flags())
}

func evaluate(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return err
	}
	opts := log.Options{Level: cfg.Log.Level, Path: cfg.Log.Path, MaxSize: cfg.Log.MaxSize}
	log.ApplyFlags(cmd.Flags(), &opts)
	if err := log.SetLogger(opts); err != nil {
		return err
	}
	if cmd.Flags().Changed("dataset") {
		cfg.Dataset.Path, _ = cmd.Flags().GetString("dataset")
	}
	if cmd.Flags().Changed("trees") {
		cfg.Model.NEstimators, _ = cmd.Flags().GetInt("trees")
	}
	testRatio, _ := cmd.Flags().GetFloat64("test-ratio")
	seed, _ := cmd.Flags().GetInt64("seed")

	ds, err := dataset.Load(cfg.Dataset.Path,
		dataset.WithTarget(cfg.Dataset.Target),
		dataset.WithSheet(cfg.Dataset.Sheet),
		dataset.WithRequiredColumns(cfg.Dataset.RequiredColumns...))
	if err != nil {
		return err
	}
	y, err := ml.TargetVector(ds.Target)
	if err != nil {
		return err
	}
	trainIdx, testIdx := ml.TrainTestSplit(ds.Len(), testRatio, seed)
	if len(testIdx) == 0 {
		return errors.Errorf("%d rows leave nothing to hold out", ds.Len())
	}
	trainX, trainY := ml.Subset(ds.Records, y, trainIdx)
	testX, testY := ml.Subset(ds.Records, y, testIdx)

	pipeline := ml.NewPipeline(estimator.ForestOptions(cfg.Model)...)
	if err := pipeline.Fit(trainX, trainY, ds.Schema.Numeric, ds.Schema.Categorical); err != nil {
		return err
	}
	metrics, err := ml.Evaluate(pipeline, testX, testY)
	if err != nil {
		return err
	}
	log.Logger().Info("evaluated",
		zap.String("dataset", cfg.Dataset.Path),
		zap.Int("train", len(trainIdx)),
		zap.Int("test", len(testIdx)),
		zap.Int("trees", pipeline.Trees()))

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(metrics)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "rows: train=%d test=%d\n", len(trainIdx), len(testIdx))
	fmt.Fprintf(cmd.OutOrStdout(), "MAE:  %s\n", estimator.FormatPrice(metrics.MAE))
	fmt.Fprintf(cmd.OutOrStdout(), "RMSE: %s\n", estimator.FormatPrice(metrics.RMSE))
	fmt.Fprintf(cmd.OutOrStdout(), "R2:   %.4f\n", metrics.R2)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Logger().Fatal("evaluation failed", zap.Error(err))
	}
}
