package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"recyclerate/config"
	"recyclerate/db"
	rhttp "recyclerate/http"
	"recyclerate/logger"
	"recyclerate/metrics"
	"recyclerate/ml"
	"recyclerate/predict"
	"recyclerate/training"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config")
	flag.Parse()

	// 1. Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log)
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("service failed", zap.Error(err))
	}
	log.Info("exiting")
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Initialize database
	store, err := db.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()
	log.Info("database initialized", zap.String("path", cfg.Database.Path))

	// 3. Training job and API
	job := training.NewJob(training.Config{
		DataPath:  cfg.Training.DataPath,
		Encoding:  cfg.Training.Encoding,
		ModelPath: cfg.Model.Path,
		Train:     cfg.Training.TrainConfig(),
	}, store, log)

	api := rhttp.NewAPI(rhttp.Options{
		Store:          store,
		Job:            job,
		Logger:         log,
		CacheSize:      cfg.Model.CacheSize,
		MaxBatchBytes:  cfg.HTTP.MaxBatchBytes,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		BaseContext:    ctx,
	})
	serve := func(model *ml.TrainedModel) {
		if err := api.SetModel(model); err != nil {
			log.Error("failed to serve model", zap.Error(err))
		}
	}
	// With the watcher on, the saved artifact is picked up from disk.
	if !cfg.Model.Watch {
		job.OnModel = serve
	}

	// 4. Load the model; the service still starts without one so it can be
	// trained through the API.
	if model, err := ml.LoadModel(cfg.Model.Path); err != nil {
		log.Warn("no model loaded, predictions unavailable until one is trained",
			zap.String("path", cfg.Model.Path),
			zap.Error(err))
	} else {
		metrics.ModelLoadedTimestamp.SetToCurrentTime()
		serve(model)
	}

	if cfg.Model.Watch {
		watcher, err := predict.NewWatcher(cfg.Model.Path, serve, log.Named("watcher"))
		if err != nil {
			return fmt.Errorf("watch model: %w", err)
		}
		go watcher.Run(ctx)
	}

	if cfg.Training.Schedule != "" {
		scheduler, err := training.NewScheduler(cfg.Training.Schedule, job, log)
		if err != nil {
			return fmt.Errorf("schedule training: %w", err)
		}
		scheduler.Start()
		defer scheduler.Stop()
		log.Info("scheduled retraining enabled", zap.String("schedule", cfg.Training.Schedule))
	}

	// 5. Start HTTP server
	server := rhttp.NewServer(cfg.HTTP, api, log)
	errc := make(chan error, 1)
	go func() {
		errc <- server.Start()
	}()

	// 6. Handle graceful shutdown
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return server.Stop(shutdownCtx)
}
