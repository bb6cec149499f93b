package main

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func softmaxInPlace(row []float64) {
	maxv := floats.Max(row)
	for i, v := range row {
		row[i] = math.Exp(v - maxv)
	}
	floats.Scale(1/floats.Sum(row), row)
}

func softmax(logits []float64) []float64 {
	out := append([]float64(nil), logits...)
	softmaxInPlace(out)
	return out
}

// crossEntropy returns the summed negative log-likelihood of targets under
// the row-wise softmax of logits, and d(sum)/d(logits).
func crossEntropy(logits *mat.Dense, targets []int) (float64, *mat.Dense, error) {
	t, vocab := logits.Dims()
	if len(targets) != t {
		return 0, nil, fmt.Errorf("cross entropy: %d targets for %d positions", len(targets), t)
	}

	grad := mat.DenseCopyOf(logits)
	var total float64
	for i, target := range targets {
		if target < 0 || target >= vocab {
			return 0, nil, fmt.Errorf("cross entropy: target %d: %w", target, ErrUnknownID)
		}
		row := grad.RawRowView(i)
		softmaxInPlace(row)
		total -= math.Log(math.Max(row[target], 1e-300))
		row[target] -= 1
	}
	return total, grad, nil
}

// meanLoss averages crossEntropy over every position of every sequence.
func meanLoss(logits []*mat.Dense, targets [][]int) (float64, error) {
	if len(logits) != len(targets) {
		return 0, fmt.Errorf("loss: %d sequences for %d targets", len(logits), len(targets))
	}
	var total float64
	var n int
	for i, l := range logits {
		s, _, err := crossEntropy(l, targets[i])
		if err != nil {
			return 0, err
		}
		total += s
		n += len(targets[i])
	}
	if n == 0 {
		return 0, nil
	}
	return total / float64(n), nil
}
