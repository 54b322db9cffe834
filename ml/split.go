package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// TrainTestSplit shuffles rows with a fixed seed and holds out ceil(n*testRatio)
// of them for evaluation.
func TrainTestSplit(features [][]float64, targets []float64, testRatio float64, seed int64) (trainX [][]float64, trainY []float64, testX [][]float64, testY []float64, err error) {
	if len(features) != len(targets) {
		return nil, nil, nil, nil, errors.New("features and targets size mismatch")
	}
	if testRatio <= 0 || testRatio >= 1 {
		testRatio = 0.2
	}
	n := len(features)
	testSize := int(math.Ceil(float64(n) * testRatio))
	if n < 2 || testSize >= n {
		return nil, nil, nil, nil, fmt.Errorf("need at least 2 rows to split, got %d", n)
	}

	rnd := rand.New(rand.NewSource(seed))
	indices := rnd.Perm(n)
	for i, idx := range indices {
		if i < testSize {
			testX = append(testX, features[idx])
			testY = append(testY, targets[idx])
		} else {
			trainX = append(trainX, features[idx])
			trainY = append(trainY, targets[idx])
		}
	}
	return trainX, trainY, testX, testY, nil
}

// KFold partitions n rows into k contiguous folds; the first n%k folds get one
// extra row.
func KFold(n, k int) ([][]int, error) {
	if k < 2 {
		return nil, fmt.Errorf("folds must be at least 2, got %d", k)
	}
	if k > n {
		return nil, fmt.Errorf("cannot split %d rows into %d folds", n, k)
	}
	folds := make([][]int, k)
	start := 0
	for i := 0; i < k; i++ {
		size := n / k
		if i < n%k {
			size++
		}
		fold := make([]int, size)
		for j := range fold {
			fold[j] = start + j
		}
		folds[i] = fold
		start += size
	}
	return folds, nil
}

func selectRows(features [][]float64, targets []float64, rows []int) ([][]float64, []float64) {
	x := make([][]float64, len(rows))
	y := make([]float64, len(rows))
	for i, r := range rows {
		x[i] = features[r]
		y[i] = targets[r]
	}
	return x, y
}

func complement(n int, fold []int) []int {
	skip := make(map[int]bool, len(fold))
	for _, r := range fold {
		skip[r] = true
	}
	rest := make([]int, 0, n-len(fold))
	for i := 0; i < n; i++ {
		if !skip[i] {
			rest = append(rest, i)
		}
	}
	return rest
}
