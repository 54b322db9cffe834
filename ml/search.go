package ml

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// ParamGrid lists the candidate values of each forest hyperparameter.
// MaxDepth 0 stands for unlimited depth.
type ParamGrid struct {
	NEstimators     []int    `yaml:"n_estimators"`
	MaxDepth        []int    `yaml:"max_depth"`
	MinSamplesSplit []int    `yaml:"min_samples_split"`
	MinSamplesLeaf  []int    `yaml:"min_samples_leaf"`
	MaxFeatures     []string `yaml:"max_features"`
}

func DefaultParamGrid() ParamGrid {
	return ParamGrid{
		NEstimators:     []int{100, 200, 300, 400, 500},
		MaxDepth:        []int{0, 10, 20, 30, 40, 50},
		MinSamplesSplit: []int{2, 5, 10},
		MinSamplesLeaf:  []int{1, 2, 4},
		MaxFeatures:     []string{MaxFeaturesSqrt, MaxFeaturesLog2, MaxFeaturesAll},
	}
}

func (g ParamGrid) Size() int {
	return len(g.NEstimators) * len(g.MaxDepth) * len(g.MinSamplesSplit) * len(g.MinSamplesLeaf) * len(g.MaxFeatures)
}

// At decodes a flat grid index into a parameter set.
func (g ParamGrid) At(index int) ForestParams {
	var p ForestParams
	p.MaxFeatures = g.MaxFeatures[index%len(g.MaxFeatures)]
	index /= len(g.MaxFeatures)
	p.MinSamplesLeaf = g.MinSamplesLeaf[index%len(g.MinSamplesLeaf)]
	index /= len(g.MinSamplesLeaf)
	p.MinSamplesSplit = g.MinSamplesSplit[index%len(g.MinSamplesSplit)]
	index /= len(g.MinSamplesSplit)
	p.MaxDepth = g.MaxDepth[index%len(g.MaxDepth)]
	index /= len(g.MaxDepth)
	p.NEstimators = g.NEstimators[index%len(g.NEstimators)]
	return p
}

type SearchConfig struct {
	Grid    ParamGrid
	Trials  int
	Folds   int
	Seed    int64
	Workers int
}

func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		Grid:   DefaultParamGrid(),
		Trials: 20,
		Folds:  3,
		Seed:   42,
	}
}

// SearchTrial is one sampled configuration and its cross-validation scores.
// Scores are negative RMSE, higher is better.
type SearchTrial struct {
	ID        int           `json:"id"`
	Params    ForestParams  `json:"params"`
	Scores    []float64     `json:"scores"`
	MeanScore float64       `json:"mean_score"`
	Duration  time.Duration `json:"duration"`
}

type SearchResult struct {
	Best      ForestParams
	BestScore float64
	Trials    []SearchTrial
	Model     *RandomForest
}

// RandomizedSearch samples Trials distinct configurations from the grid,
// cross-validates each and refits the best one on all rows. The first failing
// fit aborts the search.
func RandomizedSearch(ctx context.Context, features [][]float64, targets []float64, cfg SearchConfig, logger *zap.Logger) (*SearchResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	size := cfg.Grid.Size()
	if size == 0 {
		return nil, errors.New("parameter grid is empty")
	}
	if cfg.Trials <= 0 {
		return nil, fmt.Errorf("trials must be positive, got %d", cfg.Trials)
	}
	folds, err := KFold(len(features), cfg.Folds)
	if err != nil {
		return nil, err
	}

	rnd := rand.New(rand.NewSource(cfg.Seed))
	picks := rnd.Perm(size)
	if cfg.Trials < size {
		picks = picks[:cfg.Trials]
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	logger.Info("starting randomized search",
		zap.Int("trials", len(picks)),
		zap.Int("folds", cfg.Folds),
		zap.Int("grid_size", size))

	trials := make([]SearchTrial, len(picks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, pick := range picks {
		i, pick := i, pick
		g.Go(func() error {
			params := cfg.Grid.At(pick)
			params.Seed = cfg.Seed
			params.Workers = 1
			start := time.Now()
			scores, err := crossValidate(gctx, features, targets, folds, params)
			if err != nil {
				return fmt.Errorf("trial %d (%s): %w", i+1, params, err)
			}
			params.Workers = 0
			trials[i] = SearchTrial{
				ID:        i + 1,
				Params:    params,
				Scores:    scores,
				MeanScore: stat.Mean(scores, nil),
				Duration:  time.Since(start),
			}
			logger.Debug("search trial finished",
				zap.Int("trial", i+1),
				zap.Stringer("params", params),
				zap.Float64("mean_score", trials[i].MeanScore))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	best := 0
	for i := range trials {
		if trials[i].MeanScore > trials[best].MeanScore {
			best = i
		}
	}

	bestParams := trials[best].Params
	bestParams.Workers = cfg.Workers
	model := NewRandomForest(bestParams)
	if err := model.Fit(ctx, features, targets); err != nil {
		return nil, fmt.Errorf("refit best params: %w", err)
	}

	logger.Info("randomized search completed",
		zap.Stringer("best_params", trials[best].Params),
		zap.Float64("best_score", trials[best].MeanScore))

	return &SearchResult{
		Best:      trials[best].Params,
		BestScore: trials[best].MeanScore,
		Trials:    trials,
		Model:     model,
	}, nil
}

func crossValidate(ctx context.Context, features [][]float64, targets []float64, folds [][]int, params ForestParams) ([]float64, error) {
	scores := make([]float64, len(folds))
	for i, fold := range folds {
		trainX, trainY := selectRows(features, targets, complement(len(features), fold))
		testX, testY := selectRows(features, targets, fold)

		model := NewRandomForest(params)
		if err := model.Fit(ctx, trainX, trainY); err != nil {
			return nil, fmt.Errorf("fold %d: %w", i+1, err)
		}
		m, err := Evaluate(model, testX, testY)
		if err != nil {
			return nil, fmt.Errorf("fold %d: %w", i+1, err)
		}
		scores[i] = -m.RMSE
	}
	return scores, nil
}
