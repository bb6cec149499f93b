package main

import (
	"fmt"
	"math/rand"
)

const trainFraction = 0.9

// Dataset holds the train and validation token streams. Neither is modified
// after SplitDataset returns.
type Dataset struct {
	train []int
	val   []int
}

func SplitDataset(data []int, frac float64) (*Dataset, error) {
	if frac <= 0 || frac >= 1 {
		return nil, configErrorf("train fraction", "must be in (0, 1), got %g", frac)
	}
	n := int(frac * float64(len(data)))
	ids := append([]int(nil), data...)
	return &Dataset{train: ids[:n:n], val: ids[n:]}, nil
}

func (d *Dataset) Train() []int { return d.train }
func (d *Dataset) Val() []int   { return d.val }

// Batch pairs every input window with the same window shifted by one token.
type Batch struct {
	Inputs  [][]int
	Targets [][]int
	Starts  []int
}

func (b Batch) Size() int { return len(b.Inputs) }

type Sampler struct {
	rng *rand.Rand
}

func NewSampler(rng *rand.Rand) *Sampler {
	return &Sampler{rng: rng}
}

// Sample draws batchSize windows of blockSize tokens with starts uniform in
// [0, len(split)-blockSize).
func (s *Sampler) Sample(split []int, batchSize, blockSize int) (Batch, error) {
	if batchSize <= 0 {
		return Batch{}, configErrorf("batch size", "must be positive, got %d", batchSize)
	}
	if blockSize <= 0 {
		return Batch{}, configErrorf("block size", "must be positive, got %d", blockSize)
	}
	if len(split) <= blockSize {
		return Batch{}, fmt.Errorf("%w: %d tokens, block size %d", ErrSplitTooShort, len(split), blockSize)
	}

	b := Batch{
		Inputs:  make([][]int, batchSize),
		Targets: make([][]int, batchSize),
		Starts:  make([]int, batchSize),
	}
	for k := 0; k < batchSize; k++ {
		start := s.rng.Intn(len(split) - blockSize)
		b.Starts[k] = start
		b.Inputs[k] = append([]int(nil), split[start:start+blockSize]...)
		b.Targets[k] = append([]int(nil), split[start+1:start+blockSize+1]...)
	}
	return b, nil
}
