package ml

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"
)

const (
	MaxFeaturesAll  = ""
	MaxFeaturesSqrt = "sqrt"
	MaxFeaturesLog2 = "log2"
)

// ForestParams are the hyperparameters of a random forest regressor.
// MaxDepth 0 grows trees until leaves are pure or MinSamplesSplit stops them.
type ForestParams struct {
	NEstimators     int    `json:"n_estimators" yaml:"n_estimators"`
	MaxDepth        int    `json:"max_depth" yaml:"max_depth"`
	MinSamplesSplit int    `json:"min_samples_split" yaml:"min_samples_split"`
	MinSamplesLeaf  int    `json:"min_samples_leaf" yaml:"min_samples_leaf"`
	MaxFeatures     string `json:"max_features" yaml:"max_features"`
	Seed            int64  `json:"seed" yaml:"seed"`
	Workers         int    `json:"-" yaml:"-"`
}

func DefaultForestParams() ForestParams {
	return ForestParams{
		NEstimators:     100,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		MaxFeatures:     MaxFeaturesAll,
		Seed:            42,
	}
}

func (p ForestParams) String() string {
	depth := "none"
	if p.MaxDepth > 0 {
		depth = fmt.Sprint(p.MaxDepth)
	}
	features := p.MaxFeatures
	if features == MaxFeaturesAll {
		features = "all"
	}
	return fmt.Sprintf("n_estimators=%d max_depth=%s min_samples_split=%d min_samples_leaf=%d max_features=%s",
		p.NEstimators, depth, p.MinSamplesSplit, p.MinSamplesLeaf, features)
}

// ResolveMaxFeatures turns the max_features strategy into a feature count.
func ResolveMaxFeatures(strategy string, featureCount int) (int, error) {
	switch strategy {
	case MaxFeaturesAll, "all", "none":
		return featureCount, nil
	case MaxFeaturesSqrt:
		return max(1, int(math.Sqrt(float64(featureCount)))), nil
	case MaxFeaturesLog2:
		return max(1, int(math.Log2(float64(featureCount)))), nil
	default:
		return 0, fmt.Errorf("unknown max_features %q", strategy)
	}
}

// RandomForest averages bootstrapped regression trees.
type RandomForest struct {
	params       ForestParams
	trees        []*DecisionTree
	featureCount int
}

func NewRandomForest(params ForestParams) *RandomForest {
	return &RandomForest{params: params}
}

func (f *RandomForest) Params() ForestParams {
	return f.params
}

func (f *RandomForest) FeatureCount() int {
	return f.featureCount
}

func (f *RandomForest) Trees() []*DecisionTree {
	return f.trees
}

// Fit trains every tree on its own bootstrap sample. Tree i draws from a
// generator seeded with Seed+i, so the result does not depend on Workers.
func (f *RandomForest) Fit(ctx context.Context, features [][]float64, targets []float64) error {
	if len(features) == 0 || len(targets) == 0 {
		return errors.New("features or targets empty")
	}
	if len(features) != len(targets) {
		return errors.New("features and targets size mismatch")
	}
	if f.params.NEstimators <= 0 {
		return fmt.Errorf("n_estimators must be positive, got %d", f.params.NEstimators)
	}
	featureCount := len(features[0])
	maxFeatures, err := ResolveMaxFeatures(f.params.MaxFeatures, featureCount)
	if err != nil {
		return err
	}

	workers := f.params.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	trees := make([]*DecisionTree, f.params.NEstimators)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range trees {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(f.params.Seed + int64(i)))
			samples := make([]int, len(features))
			for j := range samples {
				samples[j] = rng.Intn(len(features))
			}
			tree := NewDecisionTree(TreeParams{
				MaxDepth:        f.params.MaxDepth,
				MinSamplesSplit: f.params.MinSamplesSplit,
				MinSamplesLeaf:  f.params.MinSamplesLeaf,
				MaxFeatures:     maxFeatures,
			})
			if err := tree.Fit(features, targets, samples, rng); err != nil {
				return fmt.Errorf("tree %d: %w", i, err)
			}
			trees[i] = tree
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	f.trees = trees
	f.featureCount = featureCount
	return nil
}

func (f *RandomForest) Predict(features []float64) (float64, error) {
	if len(f.trees) == 0 {
		return 0, errors.New("model not trained")
	}
	if len(features) != f.featureCount {
		return 0, fmt.Errorf("expected %d features, got %d", f.featureCount, len(features))
	}
	var sum float64
	for _, tree := range f.trees {
		v, err := tree.Predict(features)
		if err != nil {
			return 0, err
		}
		sum += v
	}
	return sum / float64(len(f.trees)), nil
}

func (f *RandomForest) PredictBatch(rows [][]float64) ([]float64, error) {
	out := make([]float64, len(rows))
	for i, row := range rows {
		v, err := f.Predict(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
