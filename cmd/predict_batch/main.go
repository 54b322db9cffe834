package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	"recyclerate/dataset"
	"recyclerate/logger"
	"recyclerate/ml"
	"recyclerate/predict"
)

func main() {
	modelPath := flag.String("model_path", "models/recycling_rate_model.json", "trained model artifact")
	input := flag.String("input", "", "CSV of rows to score")
	output := flag.String("output", "predictions.csv", "output CSV")
	encoding := flag.String("encoding", "utf-8", "input character encoding")
	logLevel := flag.String("log_level", "info", "log level")
	flag.Parse()

	log := logger.New(logger.Config{Level: *logLevel, Format: "console"})
	defer log.Sync()

	if *input == "" {
		fmt.Fprintln(os.Stderr, "input is required")
		flag.Usage()
		os.Exit(2)
	}

	n, err := scoreFile(context.Background(), *modelPath, *input, *output, *encoding, log)
	if err != nil {
		log.Fatal("batch prediction failed", zap.Error(err))
	}
	fmt.Printf("wrote %d predictions to %s\n", n, *output)
}

// scoreFile loads the model once, scores every row of input in order and
// writes one prediction per row to output.
func scoreFile(ctx context.Context, modelPath, input, output, encoding string, log *zap.Logger) (int, error) {
	model, err := ml.LoadModel(modelPath)
	if err != nil {
		return 0, fmt.Errorf("load model: %w", err)
	}
	p, err := predict.New(model, predict.WithLogger(log))
	if err != nil {
		return 0, err
	}

	table, err := dataset.LoadCSV(input, encoding)
	if err != nil {
		return 0, fmt.Errorf("load input: %w", err)
	}
	frame, err := p.FrameFromTable(table)
	if err != nil {
		return 0, err
	}
	predictions, err := p.PredictBatch(ctx, frame)
	if err != nil {
		return 0, err
	}
	if err := dataset.WritePredictions(output, predictions); err != nil {
		return 0, fmt.Errorf("write predictions: %w", err)
	}
	return len(predictions), nil
}
