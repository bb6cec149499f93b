package main

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"
)

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestSplitDataset(t *testing.T) {
	for _, n := range []int{0, 1, 9, 10, 11, 99, 1000, 1001} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			data := seq(n)
			d, err := SplitDataset(data, trainFraction)
			if err != nil {
				t.Fatal(err)
			}
			if len(d.Train())+len(d.Val()) != n {
				t.Errorf("train %d + val %d != %d", len(d.Train()), len(d.Val()), n)
			}
			if want := int(math.Floor(0.9 * float64(n))); len(d.Train()) != want {
				t.Errorf("train = %d, want %d", len(d.Train()), want)
			}
			for i, id := range append(d.Train(), d.Val()...) {
				if id != i {
					t.Fatalf("token %d = %d, order not preserved", i, id)
				}
			}
		})
	}
}

func TestSplitDatasetCopiesInput(t *testing.T) {
	data := seq(20)
	d, err := SplitDataset(data, trainFraction)
	if err != nil {
		t.Fatal(err)
	}
	data[0] = 99
	if d.Train()[0] != 0 {
		t.Error("split shares memory with the input slice")
	}
}

func TestSplitDatasetBadFraction(t *testing.T) {
	for _, f := range []float64{0, 1, -0.5, 1.5} {
		if _, err := SplitDataset(seq(10), f); !errors.Is(err, ErrConfig) {
			t.Errorf("fraction %g: expected ErrConfig, got %v", f, err)
		}
	}
}

func TestSamplerShapes(t *testing.T) {
	split := make([]int, 200)
	rng := rand.New(rand.NewSource(7))
	for i := range split {
		split[i] = rng.Intn(50)
	}

	s := NewSampler(rand.New(rand.NewSource(1)))
	const batchSize, blockSize = 16, 8
	for round := 0; round < 20; round++ {
		b, err := s.Sample(split, batchSize, blockSize)
		if err != nil {
			t.Fatal(err)
		}
		if len(b.Inputs) != batchSize || len(b.Targets) != batchSize || b.Size() != batchSize {
			t.Fatalf("batch has %d inputs, %d targets", len(b.Inputs), len(b.Targets))
		}
		for k := range b.Inputs {
			start := b.Starts[k]
			if start < 0 || start >= len(split)-blockSize {
				t.Fatalf("start %d out of range", start)
			}
			if len(b.Inputs[k]) != blockSize || len(b.Targets[k]) != blockSize {
				t.Fatalf("window %d has shape %d/%d", k, len(b.Inputs[k]), len(b.Targets[k]))
			}
			for i := 0; i < blockSize; i++ {
				if b.Inputs[k][i] != split[start+i] {
					t.Errorf("input[%d][%d] = %d, want %d", k, i, b.Inputs[k][i], split[start+i])
				}
				if b.Targets[k][i] != split[start+i+1] {
					t.Errorf("target[%d][%d] = %d, want %d", k, i, b.Targets[k][i], split[start+i+1])
				}
			}
		}
	}
}

func TestSamplerCoversAllStarts(t *testing.T) {
	split := seq(12)
	s := NewSampler(rand.New(rand.NewSource(3)))
	seen := make(map[int]bool)
	for i := 0; i < 200; i++ {
		b, err := s.Sample(split, 4, 8)
		if err != nil {
			t.Fatal(err)
		}
		for _, st := range b.Starts {
			seen[st] = true
		}
	}
	for st := 0; st < 4; st++ {
		if !seen[st] {
			t.Errorf("start %d never sampled", st)
		}
	}
	if len(seen) != 4 {
		t.Errorf("sampled %d distinct starts, want 4", len(seen))
	}
}

func TestSamplerSplitTooShort(t *testing.T) {
	s := NewSampler(rand.New(rand.NewSource(1)))
	for _, n := range []int{0, 4, 8} {
		if _, err := s.Sample(seq(n), 2, 8); !errors.Is(err, ErrSplitTooShort) {
			t.Errorf("len %d: expected ErrSplitTooShort, got %v", n, err)
		}
	}
	if _, err := s.Sample(seq(9), 2, 8); err != nil {
		t.Errorf("len 9 with block 8 should sample, got %v", err)
	}
	if _, err := s.Sample(seq(20), 0, 8); !errors.Is(err, ErrConfig) {
		t.Errorf("batch 0: expected ErrConfig, got %v", err)
	}
}
