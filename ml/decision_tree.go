package ml

import (
	"errors"
	"math/rand"
	"sort"
)

// TreeParams controls how a single regression tree grows. MaxDepth 0 means
// unlimited, MaxFeatures 0 means every feature is considered at each split.
type TreeParams struct {
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     int
}

type DecisionTree struct {
	nodes  []TreeNode
	params TreeParams
}

type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	Value      float64 `json:"value"`
	IsLeaf     bool    `json:"is_leaf"`
}

func NewDecisionTree(params TreeParams) *DecisionTree {
	if params.MinSamplesSplit < 2 {
		params.MinSamplesSplit = 2
	}
	if params.MinSamplesLeaf < 1 {
		params.MinSamplesLeaf = 1
	}
	return &DecisionTree{params: params}
}

// Fit grows the tree on the rows selected by samples (duplicates allowed, as
// produced by bootstrapping). A nil samples slice uses every row. rng picks
// the candidate features when MaxFeatures is set.
func (dt *DecisionTree) Fit(features [][]float64, targets []float64, samples []int, rng *rand.Rand) error {
	if len(features) == 0 || len(targets) == 0 {
		return errors.New("features or targets empty")
	}
	if len(features) != len(targets) {
		return errors.New("features and targets size mismatch")
	}
	featureCount := len(features[0])
	if featureCount == 0 {
		return errors.New("rows have no features")
	}
	for _, row := range features {
		if len(row) != featureCount {
			return errors.New("ragged feature rows")
		}
	}
	if samples == nil {
		samples = make([]int, len(features))
		for i := range samples {
			samples[i] = i
		}
	}
	if len(samples) == 0 {
		return errors.New("no samples to fit")
	}

	b := &treeBuilder{
		x:            features,
		y:            targets,
		params:       dt.params,
		rng:          rng,
		featureCount: featureCount,
	}
	b.build(samples, 0)
	dt.nodes = b.nodes
	return nil
}

func (dt *DecisionTree) Predict(features []float64) (float64, error) {
	if len(dt.nodes) == 0 {
		return 0, errors.New("model not trained")
	}
	idx := 0
	for {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return node.Value, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return 0, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(dt.nodes) {
			return 0, errors.New("invalid tree state")
		}
	}
}

func (dt *DecisionTree) Nodes() []TreeNode {
	return append([]TreeNode(nil), dt.nodes...)
}

func (dt *DecisionTree) Depth() int {
	if len(dt.nodes) == 0 {
		return 0
	}
	var walk func(idx int) int
	walk = func(idx int) int {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return 0
		}
		return 1 + max(walk(node.LeftChild), walk(node.RightChild))
	}
	return walk(0)
}

// treeFromNodes restores a tree from its flattened form. Children must point
// forward so a corrupt artifact cannot make Predict loop.
func treeFromNodes(nodes []TreeNode, featureCount int) (*DecisionTree, error) {
	if len(nodes) == 0 {
		return nil, errors.New("tree has no nodes")
	}
	for i, node := range nodes {
		if node.IsLeaf {
			continue
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= featureCount {
			return nil, errors.New("feature index out of range")
		}
		if node.LeftChild <= i || node.LeftChild >= len(nodes) || node.RightChild <= i || node.RightChild >= len(nodes) {
			return nil, errors.New("invalid tree state")
		}
	}
	return &DecisionTree{nodes: append([]TreeNode(nil), nodes...)}, nil
}

type treeBuilder struct {
	x            [][]float64
	y            []float64
	params       TreeParams
	rng          *rand.Rand
	featureCount int
	nodes        []TreeNode
}

func (b *treeBuilder) build(samples []int, depth int) int {
	mean, sse := meanAndSSE(b.y, samples)
	idx := len(b.nodes)
	b.nodes = append(b.nodes, TreeNode{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		Value:      mean,
		IsLeaf:     true,
	})

	if b.params.MaxDepth > 0 && depth >= b.params.MaxDepth {
		return idx
	}
	if len(samples) < b.params.MinSamplesSplit || len(samples) < 2*b.params.MinSamplesLeaf || sse <= 1e-12 {
		return idx
	}

	feature, threshold, ok := b.bestSplit(samples, sse)
	if !ok {
		return idx
	}

	left := make([]int, 0, len(samples))
	right := make([]int, 0, len(samples))
	for _, s := range samples {
		if b.x[s][feature] <= threshold {
			left = append(left, s)
		} else {
			right = append(right, s)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return idx
	}

	leftIdx := b.build(left, depth+1)
	rightIdx := b.build(right, depth+1)
	b.nodes[idx] = TreeNode{
		FeatureIdx: feature,
		Threshold:  threshold,
		LeftChild:  leftIdx,
		RightChild: rightIdx,
		Value:      mean,
		IsLeaf:     false,
	}
	return idx
}

// bestSplit finds the split with the lowest summed squared error of the two
// children, scanning every boundary between distinct sorted values.
func (b *treeBuilder) bestSplit(samples []int, parentSSE float64) (int, float64, bool) {
	bestFeature := -1
	bestThreshold := 0.0
	bestSSE := parentSSE - 1e-12
	minLeaf := b.params.MinSamplesLeaf

	order := make([]int, len(samples))
	for _, feature := range b.candidateFeatures() {
		copy(order, samples)
		sort.SliceStable(order, func(i, j int) bool {
			return b.x[order[i]][feature] < b.x[order[j]][feature]
		})

		var totalSum, totalSq float64
		for _, s := range order {
			totalSum += b.y[s]
			totalSq += b.y[s] * b.y[s]
		}

		var leftSum, leftSq float64
		n := len(order)
		for i := 0; i < n-1; i++ {
			v := b.y[order[i]]
			leftSum += v
			leftSq += v * v
			nl := i + 1
			nr := n - nl
			if nl < minLeaf || nr < minLeaf {
				continue
			}
			lo := b.x[order[i]][feature]
			hi := b.x[order[i+1]][feature]
			if lo >= hi {
				continue
			}
			rightSum := totalSum - leftSum
			rightSq := totalSq - leftSq
			sse := (leftSq - leftSum*leftSum/float64(nl)) + (rightSq - rightSum*rightSum/float64(nr))
			if sse < bestSSE {
				bestSSE = sse
				bestFeature = feature
				bestThreshold = lo + (hi-lo)/2
				if bestThreshold >= hi {
					bestThreshold = lo
				}
			}
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

func (b *treeBuilder) candidateFeatures() []int {
	k := b.params.MaxFeatures
	if k <= 0 || k >= b.featureCount || b.rng == nil {
		all := make([]int, b.featureCount)
		for i := range all {
			all[i] = i
		}
		return all
	}
	return b.rng.Perm(b.featureCount)[:k]
}

func meanAndSSE(y []float64, samples []int) (float64, float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	var sum float64
	for _, s := range samples {
		sum += y[s]
	}
	mean := sum / float64(len(samples))
	var sse float64
	for _, s := range samples {
		d := y[s] - mean
		sse += d * d
	}
	return mean, sse
}
