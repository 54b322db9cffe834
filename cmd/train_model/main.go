package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"recyclerate/config"
	"recyclerate/db"
	"recyclerate/logger"
	"recyclerate/ml"
	"recyclerate/training"
)

func main() {
	defaults := config.Default()
	configPath := flag.String("config", "", "optional YAML config; flags override it")
	dataPath := flag.String("data", defaults.Training.DataPath, "training CSV")
	encoding := flag.String("encoding", defaults.Training.Encoding, "CSV character encoding")
	modelPath := flag.String("model_path", defaults.Model.Path, "model output path")
	dbPath := flag.String("db", "", "record the run in this SQLite database")
	seed := flag.Int64("seed", defaults.Training.Seed, "random seed for split, forest and search")
	testRatio := flag.Float64("test_ratio", defaults.Training.TestRatio, "held-out fraction")
	trials := flag.Int("trials", defaults.Training.Trials, "randomized search trials")
	folds := flag.Int("folds", defaults.Training.Folds, "cross-validation folds")
	workers := flag.Int("workers", 0, "parallel fits, 0 uses every CPU")
	logLevel := flag.String("log_level", "info", "log level")
	flag.Parse()

	cfg := defaults
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "data":
			cfg.Training.DataPath = *dataPath
		case "encoding":
			cfg.Training.Encoding = *encoding
		case "model_path":
			cfg.Model.Path = *modelPath
		case "db":
			cfg.Database.Path = *dbPath
		case "seed":
			cfg.Training.Seed = *seed
		case "test_ratio":
			cfg.Training.TestRatio = *testRatio
		case "trials":
			cfg.Training.Trials = *trials
		case "folds":
			cfg.Training.Folds = *folds
		case "workers":
			cfg.Training.Workers = *workers
		case "log_level":
			cfg.Log.Level = *logLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid settings: %v\n", err)
		os.Exit(2)
	}

	log := logger.New(cfg.Log)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store *db.Store
	if *configPath != "" || *dbPath != "" {
		s, err := db.Open(cfg.Database.Path)
		if err != nil {
			log.Fatal("failed to open database", zap.Error(err))
		}
		defer s.Close()
		store = s
	}

	job := training.NewJob(training.Config{
		DataPath:  cfg.Training.DataPath,
		Encoding:  cfg.Training.Encoding,
		ModelPath: cfg.Model.Path,
		Train:     cfg.Training.TrainConfig(),
	}, store, log)

	result, err := job.Run(ctx)
	if err != nil {
		log.Fatal("training failed", zap.Error(err))
	}

	printReport(result, cfg.Model.Path)
}

func printReport(r *ml.TrainResult, modelPath string) {
	fmt.Println("Baseline Random Forest Performance:")
	printMetrics(r.Baseline)
	fmt.Printf("\nBest Hyperparameters: %s\n", r.BestParams)
	fmt.Printf("Best CV score (neg RMSE): %.4f\n", r.BestScore)
	fmt.Println("\nTuned Random Forest Performance:")
	printMetrics(r.Tuned)
	fmt.Printf("\nmodel %s saved to %s (%d train rows, %d test rows, %s)\n",
		r.Model.Version, modelPath, r.TrainRows, r.TestRows, r.Duration.Round(time.Millisecond))
}

func printMetrics(m ml.Metrics) {
	fmt.Printf("RMSE: %.4f\n", m.RMSE)
	fmt.Printf("MAE: %.4f\n", m.MAE)
	fmt.Printf("MSE: %.4f\n", m.MSE)
	fmt.Printf("R2 Score: %.4f\n", m.R2)
}
