// Package config loads the YAML configuration of the predictor service.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v2"
	"recyclerate/logger"
	"recyclerate/ml"
)

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Log      logger.Config  `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Model    ModelConfig    `yaml:"model"`
	Training TrainingConfig `yaml:"training"`
}

type HTTPConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	RateLimit       float64       `yaml:"rate_limit"` // requests per second per client, 0 disables
	RateBurst       int           `yaml:"rate_burst"`
	MaxBatchBytes   int64         `yaml:"max_batch_bytes"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type ModelConfig struct {
	Path      string `yaml:"path"`
	CacheSize int    `yaml:"cache_size"`
	Watch     bool   `yaml:"watch"`
}

type TrainingConfig struct {
	DataPath  string        `yaml:"data_path"`
	Encoding  string        `yaml:"encoding"`
	TestRatio float64       `yaml:"test_ratio"`
	Seed      int64         `yaml:"seed"`
	Trials    int           `yaml:"trials"`
	Folds     int           `yaml:"folds"`
	Workers   int           `yaml:"workers"`
	Schedule  string        `yaml:"schedule"` // cron expression, empty disables
	Grid      *ml.ParamGrid `yaml:"grid"`
}

func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"*"},
			RateLimit:       20,
			RateBurst:       40,
			MaxBatchBytes:   10 << 20,
		},
		Log: logger.Config{
			Level:  "info",
			Format: "json",
		},
		Database: DatabaseConfig{Path: "recyclerate.db"},
		Model: ModelConfig{
			Path:      "models/recycling_rate_model.json",
			CacheSize: 1024,
			Watch:     true,
		},
		Training: TrainingConfig{
			DataPath:  "Waste_Management_and_Recycling_India.csv",
			Encoding:  "utf-8",
			TestRatio: 0.2,
			Seed:      42,
			Trials:    20,
			Folds:     3,
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, cfg.Validate()
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port out of range: %d", c.HTTP.Port)
	}
	if c.HTTP.RateLimit < 0 {
		return errors.New("http.rate_limit must not be negative")
	}
	if c.Model.Path == "" {
		return errors.New("model.path is required")
	}
	if c.Model.CacheSize < 0 {
		return errors.New("model.cache_size must not be negative")
	}
	t := c.Training
	if t.TestRatio <= 0 || t.TestRatio >= 1 {
		return fmt.Errorf("training.test_ratio must be in (0, 1), got %v", t.TestRatio)
	}
	if t.Trials <= 0 {
		return errors.New("training.trials must be positive")
	}
	if t.Folds < 2 {
		return errors.New("training.folds must be at least 2")
	}
	if t.Grid != nil && t.Grid.Size() == 0 {
		return errors.New("training.grid has an empty dimension")
	}
	if t.Schedule != "" {
		if _, err := cron.ParseStandard(t.Schedule); err != nil {
			return fmt.Errorf("training.schedule: %w", err)
		}
	}
	return nil
}

// TrainConfig converts the training section into trainer settings.
func (t TrainingConfig) TrainConfig() ml.TrainConfig {
	cfg := ml.DefaultTrainConfig()
	cfg.TestRatio = t.TestRatio
	cfg.Seed = t.Seed
	cfg.Workers = t.Workers
	cfg.Search.Trials = t.Trials
	cfg.Search.Folds = t.Folds
	if t.Grid != nil {
		cfg.Search.Grid = *t.Grid
	}
	return cfg
}
