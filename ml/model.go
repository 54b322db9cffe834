package ml

import (
	"errors"
	"time"

	"recyclerate/feature"
)

// Regressor produces a point estimate from a schema-ordered row.
type Regressor interface {
	Predict(features []float64) (float64, error)
}

// TrainedModel is a fitted forest together with the schema it was trained on.
// It is never mutated after construction.
type TrainedModel struct {
	Version    string                     `json:"version"`
	TrainedAt  time.Time                  `json:"trained_at"`
	Features   feature.Schema             `json:"features"`
	Categories []feature.CategoricalField `json:"categories"`
	Params     ForestParams               `json:"params"`
	Metrics    Metrics                    `json:"metrics"`

	forest *RandomForest
}

func NewTrainedModel(forest *RandomForest, schema feature.Schema, categories []feature.CategoricalField) (*TrainedModel, error) {
	if forest == nil || len(forest.trees) == 0 {
		return nil, errors.New("model not trained")
	}
	if forest.featureCount != len(schema) {
		return nil, errors.New("schema does not match forest feature count")
	}
	return &TrainedModel{
		TrainedAt:  time.Now().UTC(),
		Features:   append(feature.Schema(nil), schema...),
		Categories: categories,
		Params:     forest.params,
		forest:     forest,
	}, nil
}

func (m *TrainedModel) Schema() feature.Schema {
	return m.Features
}

func (m *TrainedModel) Fields() []feature.CategoricalField {
	return m.Categories
}

func (m *TrainedModel) ModelVersion() string {
	return m.Version
}

func (m *TrainedModel) Predict(features []float64) (float64, error) {
	if m.forest == nil {
		return 0, errors.New("model not trained")
	}
	return m.forest.Predict(features)
}

func (m *TrainedModel) TreeCount() int {
	if m.forest == nil {
		return 0
	}
	return len(m.forest.trees)
}
