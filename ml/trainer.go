package ml

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"recyclerate/dataset"
	"recyclerate/feature"
)

// TrainingError wraps a failure in one stage of the training pipeline.
type TrainingError struct {
	Stage string
	Err   error
}

func (e *TrainingError) Error() string {
	return fmt.Sprintf("training failed at %s: %v", e.Stage, e.Err)
}

func (e *TrainingError) Unwrap() error {
	return e.Err
}

type TrainConfig struct {
	Target    string
	TestRatio float64
	Seed      int64
	Baseline  ForestParams
	Search    SearchConfig
	Workers   int
}

func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		Target:    feature.TargetColumn,
		TestRatio: 0.2,
		Seed:      42,
		Baseline:  DefaultForestParams(),
		Search:    DefaultSearchConfig(),
	}
}

type TrainResult struct {
	Model      *TrainedModel
	Baseline   Metrics
	Tuned      Metrics
	BestParams ForestParams
	BestScore  float64
	Trials     []SearchTrial
	TrainRows  int
	TestRows   int
	Duration   time.Duration
}

// Train fits a baseline forest, runs the randomized search and returns the
// tuned model with the schema of frame minus the target column.
func Train(ctx context.Context, frame *dataset.Frame, enc *dataset.Encoding, cfg TrainConfig, logger *zap.Logger) (*TrainResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	start := time.Now()
	if cfg.Target == "" {
		cfg.Target = feature.TargetColumn
	}

	x, y, names, err := frame.SplitTarget(cfg.Target)
	if err != nil {
		return nil, &TrainingError{Stage: "prepare", Err: err}
	}
	trainX, trainY, testX, testY, err := TrainTestSplit(x, y, cfg.TestRatio, cfg.Seed)
	if err != nil {
		return nil, &TrainingError{Stage: "split", Err: err}
	}
	logger.Info("training data split",
		zap.Int("train_rows", len(trainX)),
		zap.Int("test_rows", len(testX)),
		zap.Int("features", len(names)))

	baselineParams := cfg.Baseline
	baselineParams.Seed = cfg.Seed
	baselineParams.Workers = cfg.Workers
	baseline := NewRandomForest(baselineParams)
	if err := baseline.Fit(ctx, trainX, trainY); err != nil {
		return nil, &TrainingError{Stage: "baseline", Err: err}
	}
	baselineMetrics, err := Evaluate(baseline, testX, testY)
	if err != nil {
		return nil, &TrainingError{Stage: "baseline", Err: err}
	}
	logMetrics(logger, "baseline random forest performance", baselineMetrics)

	searchCfg := cfg.Search
	searchCfg.Seed = cfg.Seed
	searchCfg.Workers = cfg.Workers
	search, err := RandomizedSearch(ctx, trainX, trainY, searchCfg, logger)
	if err != nil {
		return nil, &TrainingError{Stage: "search", Err: err}
	}
	logger.Info("best hyperparameters", zap.Stringer("params", search.Best))

	tunedMetrics, err := Evaluate(search.Model, testX, testY)
	if err != nil {
		return nil, &TrainingError{Stage: "evaluate", Err: err}
	}
	logMetrics(logger, "tuned random forest performance", tunedMetrics)

	var categories []feature.CategoricalField
	if enc != nil {
		categories = enc.Fields
	}
	model, err := NewTrainedModel(search.Model, names, categories)
	if err != nil {
		return nil, &TrainingError{Stage: "package", Err: err}
	}
	model.Version = uuid.NewString()
	model.Metrics = tunedMetrics
	model.Params = search.Best

	return &TrainResult{
		Model:      model,
		Baseline:   baselineMetrics,
		Tuned:      tunedMetrics,
		BestParams: search.Best,
		BestScore:  search.BestScore,
		Trials:     search.Trials,
		TrainRows:  len(trainX),
		TestRows:   len(testX),
		Duration:   time.Since(start),
	}, nil
}

func logMetrics(logger *zap.Logger, msg string, m Metrics) {
	logger.Info(msg,
		zap.Float64("rmse", m.RMSE),
		zap.Float64("mae", m.MAE),
		zap.Float64("mse", m.MSE),
		zap.Float64("r2", m.R2))
}
