package ml

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Metrics are the regression scores reported after training.
type Metrics struct {
	RMSE float64 `json:"rmse"`
	MAE  float64 `json:"mae"`
	MSE  float64 `json:"mse"`
	R2   float64 `json:"r2"`
}

func ComputeMetrics(actual, predicted []float64) (Metrics, error) {
	if len(actual) == 0 {
		return Metrics{}, errors.New("no values to score")
	}
	if len(actual) != len(predicted) {
		return Metrics{}, errors.New("actual/predicted length mismatch")
	}
	n := float64(len(actual))
	mse := math.Pow(floats.Distance(actual, predicted, 2), 2) / n
	mae := floats.Distance(actual, predicted, 1) / n

	var r2 float64
	if stat.Variance(actual, nil) == 0 || len(actual) < 2 {
		if mse == 0 {
			r2 = 1
		}
	} else {
		r2 = stat.RSquaredFrom(predicted, actual, nil)
	}

	return Metrics{
		RMSE: math.Sqrt(mse),
		MAE:  mae,
		MSE:  mse,
		R2:   r2,
	}, nil
}

// Evaluate scores model on a held-out partition.
func Evaluate(model Regressor, features [][]float64, targets []float64) (Metrics, error) {
	predicted := make([]float64, len(features))
	for i, row := range features {
		v, err := model.Predict(row)
		if err != nil {
			return Metrics{}, err
		}
		predicted[i] = v
	}
	return ComputeMetrics(targets, predicted)
}
