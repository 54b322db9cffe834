// Package training runs the end-to-end retraining pipeline: load the dataset,
// encode it, fit and tune the forest, persist the artifact and record the run.
package training

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"recyclerate/dataset"
	"recyclerate/db"
	"recyclerate/metrics"
	"recyclerate/ml"
)

var ErrAlreadyRunning = errors.New("training already running")

type Config struct {
	DataPath  string
	Encoding  string
	ModelPath string
	Train     ml.TrainConfig
}

// Job serializes training runs. OnModel, when set, receives every newly saved
// model so the caller can swap it into service.
type Job struct {
	cfg     Config
	store   *db.Store
	logger  *zap.Logger
	OnModel func(*ml.TrainedModel)

	running atomic.Bool
	last    atomic.Pointer[Status]
}

// Status describes the most recent run.
type Status struct {
	ModelVersion string        `json:"model_version,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
	Error        string        `json:"error,omitempty"`
}

func NewJob(cfg Config, store *db.Store, logger *zap.Logger) *Job {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Job{cfg: cfg, store: store, logger: logger.Named("training")}
}

func (j *Job) Running() bool {
	return j.running.Load()
}

func (j *Job) LastStatus() *Status {
	return j.last.Load()
}

// Run trains once. Concurrent calls fail fast with ErrAlreadyRunning.
func (j *Job) Run(ctx context.Context) (*ml.TrainResult, error) {
	if !j.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	return j.execute(ctx)
}

// Start claims the job and trains in the background.
func (j *Job) Start(ctx context.Context) error {
	if !j.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	go j.execute(ctx)
	return nil
}

func (j *Job) execute(ctx context.Context) (*ml.TrainResult, error) {
	defer j.running.Store(false)

	start := time.Now()
	result, err := j.run(ctx)
	elapsed := time.Since(start)
	metrics.TrainingDuration.Observe(elapsed.Seconds())

	status := &Status{StartedAt: start.UTC(), Duration: elapsed}
	if err != nil {
		metrics.TrainingRuns.WithLabelValues("failed").Inc()
		status.Error = err.Error()
		j.last.Store(status)
		j.logger.Error("training run failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		return nil, err
	}
	metrics.TrainingRuns.WithLabelValues("success").Inc()
	metrics.TrainingRMSE.WithLabelValues("baseline").Set(result.Baseline.RMSE)
	metrics.TrainingRMSE.WithLabelValues("tuned").Set(result.Tuned.RMSE)
	status.ModelVersion = result.Model.Version
	j.last.Store(status)

	if j.OnModel != nil {
		j.OnModel(result.Model)
	}
	return result, nil
}

func (j *Job) run(ctx context.Context) (*ml.TrainResult, error) {
	if j.cfg.ModelPath == "" {
		return nil, errors.New("model path is required")
	}
	table, err := dataset.LoadCSV(j.cfg.DataPath, j.cfg.Encoding)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	frame, enc, err := dataset.Preprocess(table)
	if err != nil {
		return nil, fmt.Errorf("preprocess dataset: %w", err)
	}
	j.logger.Info("dataset loaded",
		zap.String("path", j.cfg.DataPath),
		zap.Int("rows", frame.Len()),
		zap.Int("columns", len(frame.Columns)))

	result, err := ml.Train(ctx, frame, enc, j.cfg.Train, j.logger)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(j.cfg.ModelPath), 0o755); err != nil {
		return nil, err
	}
	if err := ml.SaveModel(j.cfg.ModelPath, result.Model); err != nil {
		return nil, fmt.Errorf("save model: %w", err)
	}
	j.logger.Info("model saved",
		zap.String("path", j.cfg.ModelPath),
		zap.String("version", result.Model.Version))

	if j.store != nil {
		if err := j.store.SaveTrainingLog(ctx, Log(result)); err != nil {
			j.logger.Warn("failed to record training run", zap.Error(err))
		}
	}
	return result, nil
}

// Log converts a training result into its persisted form.
func Log(r *ml.TrainResult) db.TrainingLog {
	return db.TrainingLog{
		ModelVersion: r.Model.Version,
		BaselineRMSE: r.Baseline.RMSE,
		BaselineR2:   r.Baseline.R2,
		TunedRMSE:    r.Tuned.RMSE,
		TunedMAE:     r.Tuned.MAE,
		TunedR2:      r.Tuned.R2,
		BestParams:   r.BestParams.String(),
		BestScore:    r.BestScore,
		TrainRows:    r.TrainRows,
		TestRows:     r.TestRows,
		DurationMS:   r.Duration.Milliseconds(),
		TrainedAt:    r.Model.TrainedAt,
	}
}
