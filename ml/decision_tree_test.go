package ml

import (
	"context"
	"math"
	"testing"
)

func stepData() ([][]float64, []float64) {
	features := make([][]float64, 0, 10)
	targets := make([]float64, 0, 10)
	for i := 0; i < 10; i++ {
		features = append(features, []float64{float64(i), float64(i % 2)})
		if i < 5 {
			targets = append(targets, 0)
		} else {
			targets = append(targets, 10)
		}
	}
	return features, targets
}

func TestDecisionTreeFitPredict(t *testing.T) {
	features, targets := stepData()

	model := NewDecisionTree(TreeParams{MaxDepth: 3})
	if err := model.Fit(features, targets, nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	low, err := model.Predict([]float64{2, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	high, err := model.Predict([]float64{7, 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if low != 0 || high != 10 {
		t.Fatalf("expected 0 and 10, got %v and %v", low, high)
	}
	if model.Depth() != 1 {
		t.Fatalf("expected a single split, got depth %d", model.Depth())
	}
}

func TestDecisionTreeRespectsMinSamplesLeaf(t *testing.T) {
	features := [][]float64{{0}, {1}, {2}, {3}}
	targets := []float64{0, 0, 0, 100}

	model := NewDecisionTree(TreeParams{MinSamplesLeaf: 2})
	if err := model.Fit(features, targets, nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, _ := model.Predict([]float64{3})
	if v != 50 {
		t.Fatalf("expected leaf mean 50, got %v", v)
	}
}

func TestDecisionTreeErrors(t *testing.T) {
	model := NewDecisionTree(TreeParams{})
	if _, err := model.Predict([]float64{1}); err == nil {
		t.Fatal("expected error for untrained tree")
	}
	if err := model.Fit([][]float64{{1}}, []float64{1, 2}, nil, nil); err == nil {
		t.Fatal("expected size mismatch error")
	}
	if err := model.Fit([][]float64{{1}, {1, 2}}, []float64{1, 2}, nil, nil); err == nil {
		t.Fatal("expected ragged rows error")
	}
}

func TestTreeFromNodesRejectsCycles(t *testing.T) {
	nodes := []TreeNode{{FeatureIdx: 0, LeftChild: 0, RightChild: 1}, {IsLeaf: true}}
	if _, err := treeFromNodes(nodes, 1); err == nil {
		t.Fatal("expected invalid tree error")
	}
}

func TestRandomForestDeterministicAcrossWorkers(t *testing.T) {
	features, targets := linearData(60)

	single := NewRandomForest(ForestParams{NEstimators: 12, MaxFeatures: MaxFeaturesSqrt, Seed: 7, Workers: 1})
	parallel := NewRandomForest(ForestParams{NEstimators: 12, MaxFeatures: MaxFeaturesSqrt, Seed: 7, Workers: 4})
	if err := single.Fit(context.Background(), features, targets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := parallel.Fit(context.Background(), features, targets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, row := range features[:10] {
		a, err := single.Predict(row)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		b, _ := parallel.Predict(row)
		if a != b {
			t.Fatalf("expected identical predictions, got %v and %v", a, b)
		}
	}
}

func TestRandomForestPredictValidatesWidth(t *testing.T) {
	features, targets := linearData(20)
	forest := NewRandomForest(ForestParams{NEstimators: 3, Seed: 1})
	if err := forest.Fit(context.Background(), features, targets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := forest.Predict([]float64{1}); err == nil {
		t.Fatal("expected width mismatch error")
	}
}

func TestRandomForestRejectsBadParams(t *testing.T) {
	features, targets := linearData(10)
	if err := NewRandomForest(ForestParams{NEstimators: 0}).Fit(context.Background(), features, targets); err == nil {
		t.Fatal("expected error for zero estimators")
	}
	if err := NewRandomForest(ForestParams{NEstimators: 2, MaxFeatures: "half"}).Fit(context.Background(), features, targets); err == nil {
		t.Fatal("expected error for unknown max_features")
	}
}

func TestResolveMaxFeatures(t *testing.T) {
	cases := []struct {
		strategy string
		want     int
	}{
		{MaxFeaturesAll, 16},
		{MaxFeaturesSqrt, 4},
		{MaxFeaturesLog2, 4},
	}
	for _, c := range cases {
		got, err := ResolveMaxFeatures(c.strategy, 16)
		if err != nil || got != c.want {
			t.Fatalf("%q: expected %d, got %d (%v)", c.strategy, c.want, got, err)
		}
	}
	if got, _ := ResolveMaxFeatures(MaxFeaturesLog2, 1); got != 1 {
		t.Fatalf("expected at least one feature, got %d", got)
	}
}

// linearData builds y = 3*x0 - x1 over a small grid.
func linearData(n int) ([][]float64, []float64) {
	features := make([][]float64, n)
	targets := make([]float64, n)
	for i := 0; i < n; i++ {
		x0 := float64(i % 10)
		x1 := math.Floor(float64(i) / 10)
		features[i] = []float64{x0, x1, float64(i % 3)}
		targets[i] = 3*x0 - x1
	}
	return features, targets
}
