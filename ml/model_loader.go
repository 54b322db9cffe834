package ml

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"recyclerate/feature"
)

const artifactFormat = "recyclerate/random_forest/v1"

type artifact struct {
	Format     string                     `json:"format"`
	Version    string                     `json:"version"`
	TrainedAt  time.Time                  `json:"trained_at"`
	Features   []string                   `json:"features"`
	Categories []feature.CategoricalField `json:"categories,omitempty"`
	Params     ForestParams               `json:"params"`
	Metrics    Metrics                    `json:"metrics"`
	Trees      [][]TreeNode               `json:"trees"`
}

// SaveModel writes the artifact to a temp file and renames it into place so
// a watcher never sees a partial file.
func SaveModel(path string, model *TrainedModel) error {
	if model == nil || model.forest == nil || len(model.forest.trees) == 0 {
		return errors.New("model not trained")
	}
	a := artifact{
		Format:     artifactFormat,
		Version:    model.Version,
		TrainedAt:  model.TrainedAt,
		Features:   model.Features,
		Categories: model.Categories,
		Params:     model.Params,
		Metrics:    model.Metrics,
		Trees:      make([][]TreeNode, len(model.forest.trees)),
	}
	for i, tree := range model.forest.trees {
		a.Trees[i] = tree.nodes
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".model-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func LoadModel(path string) (*TrainedModel, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var a artifact
	if err := json.Unmarshal(payload, &a); err != nil {
		return nil, fmt.Errorf("decode model artifact: %w", err)
	}
	if a.Format != artifactFormat {
		return nil, fmt.Errorf("unsupported model format %q", a.Format)
	}
	if len(a.Features) == 0 {
		return nil, errors.New("model artifact has no feature names")
	}
	if len(a.Trees) == 0 {
		return nil, errors.New("model artifact has no trees")
	}

	forest := &RandomForest{
		params:       a.Params,
		trees:        make([]*DecisionTree, len(a.Trees)),
		featureCount: len(a.Features),
	}
	for i, nodes := range a.Trees {
		tree, err := treeFromNodes(nodes, len(a.Features))
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		forest.trees[i] = tree
	}

	return &TrainedModel{
		Version:    a.Version,
		TrainedAt:  a.TrainedAt,
		Features:   a.Features,
		Categories: a.Categories,
		Params:     a.Params,
		Metrics:    a.Metrics,
		forest:     forest,
	}, nil
}
