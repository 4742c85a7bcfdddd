package config

import (
	"io"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Config is the content of config.yaml.
type Config struct {
	Dataset  DatasetConfig  `yaml:"dataset"`
	Model    ModelConfig    `yaml:"model"`
	Cache    CacheConfig    `yaml:"cache"`
	Database DatabaseConfig `yaml:"database"`
	Http     HttpConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
}

// DatasetConfig locates the training spreadsheet.
type DatasetConfig struct {
	Path            string        `yaml:"path" validate:"required"`
	Sheet           string        `yaml:"sheet"`
	Target          string        `yaml:"target" validate:"required"`
	RequiredColumns []string      `yaml:"required_columns"`
	Watch           bool          `yaml:"watch"`
	WatchDebounce   time.Duration `yaml:"watch_debounce" validate:"gte=0"`
}

// ModelConfig holds the random forest hyperparameters.
type ModelConfig struct {
	NEstimators     int     `yaml:"n_estimators" validate:"gte=1"`
	MaxDepth        int     `yaml:"max_depth" validate:"gte=0"`
	MinSamplesSplit int     `yaml:"min_samples_split" validate:"gte=2"`
	MinSamplesLeaf  int     `yaml:"min_samples_leaf" validate:"gte=1"`
	MaxFeatures     float64 `yaml:"max_features" validate:"gt=0,lte=1"`
	Bootstrap       bool    `yaml:"bootstrap"`
	RandomState     int64   `yaml:"random_state"`
	Workers         int     `yaml:"workers" validate:"gte=0"`
}

// CacheConfig sizes the estimate cache. Size 0 disables it.
type CacheConfig struct {
	Size int `yaml:"size" validate:"gte=0"`
}

// DatabaseConfig locates the history database. An empty path disables history.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type HttpConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port" validate:"gte=1,lte=65535"`
	ReadTimeout    time.Duration `yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout   time.Duration `yaml:"write_timeout" validate:"gte=0"`
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"gte=0"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes" validate:"gte=0"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

type LogConfig struct {
	Level      string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size" validate:"gte=0"`
	MaxAge     int    `yaml:"max_age" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
}

// Default returns the configuration used when config.yaml leaves a key out.
func Default() *Config {
	return &Config{
		Dataset: DatasetConfig{
			Path:   "data/train_light.csv",
			Target: "SalePrice",
			RequiredColumns: []string{
				"LotArea", "YearBuilt", "Heating", "BedroomAbvGr", "PoolArea",
				"GarageCars", "Fireplaces", "KitchenAbvGr", "FullBath",
			},
			WatchDebounce: 500 * time.Millisecond,
		},
		Model: ModelConfig{
			NEstimators:     100,
			MinSamplesSplit: 2,
			MinSamplesLeaf:  1,
			MaxFeatures:     1.0,
			Bootstrap:       true,
			RandomState:     42,
		},
		Cache:    CacheConfig{Size: 1024},
		Database: DatabaseConfig{Path: "data/housing.db"},
		Http: HttpConfig{
			Port:           8080,
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   15 * time.Second,
			RequestTimeout: 10 * time.Second,
			MaxBodyBytes:   1 << 20,
			AllowedOrigins: []string{"*"},
		},
		Log: LogConfig{Level: "info", MaxSize: 100},
	}
}

// LoadConfig reads a YAML file over the defaults and validates the result.
// An empty path returns the defaults.
func LoadConfig(path string) (*Config, error) {
	config := Default()
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		defer file.Close()
		if err := yaml.NewDecoder(file).Decode(config); err != nil && err != io.EOF {
			return nil, errors.Wrapf(err, "parse %s", path)
		}
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

var validate = validator.New()

// Validate checks value ranges.
func (c *Config) Validate() error {
	return errors.Wrap(validate.Struct(c), "invalid config")
}
