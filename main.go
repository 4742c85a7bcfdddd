package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zegonz1/housing-tbs/config"
	"github.com/zegonz1/housing-tbs/dataset"
	"github.com/zegonz1/housing-tbs/db"
	"github.com/zegonz1/housing-tbs/estimator"
	hhttp "github.com/zegonz1/housing-tbs/http"
	"github.com/zegonz1/housing-tbs/log"
	"github.com/zegonz1/housing-tbs/monitoring"
)

var rootCmd = &cobra.Command{
	Use:   "housing",
	Short: "House price estimator",
	Long:  "Fits a random forest on a housing spreadsheet and serves price estimates.",
	Run:   runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Fit the model and serve the estimate form and API",
	Run:   runServe,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "path of config.yaml (defaults apply when empty)")
	log.AddFlags(rootCmd.PersistentFlags())
	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().Int("port", 0, "http port (overrides config)")
		cmd.Flags().Bool("watch", false, "refit when the dataset file changes (overrides config)")
		cmd.Flags().String("dataset", "", "dataset path (overrides config)")
	}
	rootCmd.AddCommand(serveCmd, estimateCmd)
}

// loadConfig reads --config and sets up the logger from the log section and flags.
func loadConfig(cmd *cobra.Command) *config.Config {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(path)
	if err != nil {
		log.Logger().Fatal("failed to load config", zap.String("path", path), zap.Error(err))
	}
	opts := log.Options{
		Level:      cfg.Log.Level,
		Path:       cfg.Log.Path,
		MaxSize:    cfg.Log.MaxSize,
		MaxAge:     cfg.Log.MaxAge,
		MaxBackups: cfg.Log.MaxBackups,
	}
	log.ApplyFlags(cmd.Flags(), &opts)
	if err := log.SetLogger(opts); err != nil {
		log.Logger().Fatal("failed to set up logger", zap.Error(err))
	}
	if cmd.Flags().Changed("dataset") {
		cfg.Dataset.Path, _ = cmd.Flags().GetString("dataset")
	}
	return cfg
}

func runServe(cmd *cobra.Command, _ []string) {
	cfg := loadConfig(cmd)
	if cmd.Flags().Changed("port") {
		cfg.Http.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("watch") {
		cfg.Dataset.Watch, _ = cmd.Flags().GetBool("watch")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		est      *estimator.Estimator
		services hhttp.Services
		opts     []estimator.Option
	)
	hub := monitoring.NewWebSocketHub(func(ctx context.Context, record dataset.Record) (any, error) {
		return est.Estimate(ctx, record)
	})
	services.Hub = hub
	opts = append(opts, estimator.WithFitListener(func(info estimator.Info) {
		if err := hub.Publish(monitoring.ModelFittedEvent, info); err != nil {
			log.Logger().Warn("failed to publish fit event", zap.Error(err))
		}
	}))

	if cfg.Database.Path != "" {
		storage, err := db.NewStorage(cfg.Database.Path)
		if err != nil {
			log.Logger().Fatal("failed to open history database", zap.String("path", cfg.Database.Path), zap.Error(err))
		}
		defer storage.Close()
		services.History = storage
		opts = append(opts, estimator.WithHistory(storage))
		log.Logger().Info("history database opened", zap.String("path", storage.Path()))
	}

	est, err := estimator.New(cfg, opts...)
	if err != nil {
		log.Logger().Fatal("failed to create estimator", zap.Error(err))
	}
	services.Estimator = est
	if err := est.Fit(ctx); err != nil {
		log.Logger().Fatal("failed to fit model", zap.String("dataset", cfg.Dataset.Path), zap.Error(err))
	}

	go hub.Start()
	defer hub.Stop()
	if cfg.Dataset.Watch {
		go func() {
			if err := est.Watch(ctx); err != nil {
				log.Logger().Error("dataset watcher stopped", zap.Error(err))
			}
		}()
	}

	server := hhttp.NewServer(hhttp.NewServerConfig(cfg.Http), services)
	go func() {
		if err := server.Start(); err != nil {
			log.Logger().Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	if err := server.Stop(); err != nil {
		log.Logger().Error("failed to stop http server", zap.Error(err))
	}
	log.Logger().Info("exiting")
	_ = log.Logger().Sync()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Logger().Fatal("command failed", zap.Error(err))
	}
}
