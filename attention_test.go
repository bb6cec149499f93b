package main

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestHeadCausalWeights(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	h := NewHead("head", 8, 4, rng)
	x := randDense(6, 8, 1, rng)

	out, wei := h.Forward(x)
	if r, c := out.Dims(); r != 6 || c != 4 {
		t.Fatalf("output shape %dx%d, want 6x4", r, c)
	}
	if r, c := wei.Dims(); r != 6 || c != 6 {
		t.Fatalf("weights shape %dx%d, want 6x6", r, c)
	}
	for i := 0; i < 6; i++ {
		var sum float64
		for j := 0; j < 6; j++ {
			w := wei.At(i, j)
			if j > i && w != 0 {
				t.Errorf("weight[%d][%d] = %g, want exactly 0", i, j, w)
			}
			if w < 0 {
				t.Errorf("weight[%d][%d] = %g is negative", i, j, w)
			}
			sum += w
		}
		if math.Abs(sum-1) > 1e-12 {
			t.Errorf("row %d sums to %g", i, sum)
		}
	}
	if wei.At(0, 0) != 1 {
		t.Errorf("first position must attend only to itself, got %g", wei.At(0, 0))
	}
}

func TestHeadIgnoresFuturePositions(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	h := NewHead("head", 4, 4, rng)
	x := randDense(5, 4, 1, rng)
	changed := mat.DenseCopyOf(x)
	for j := 0; j < 4; j++ {
		changed.Set(3, j, 10)
		changed.Set(4, j, -10)
	}

	a, _ := h.Forward(x)
	b, _ := h.Forward(changed)
	for i := 0; i < 3; i++ {
		for j := 0; j < 4; j++ {
			if math.Abs(a.At(i, j)-b.At(i, j)) > 1e-12 {
				t.Errorf("position %d changed after editing later positions", i)
			}
		}
	}
}

func TestMultiHeadAttentionShape(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	a, err := NewMultiHeadAttention(16, 4, rng)
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Heads) != 4 {
		t.Fatalf("heads = %d", len(a.Heads))
	}
	y := a.Forward(randDense(7, 16, 1, rng))
	if r, c := y.Dims(); r != 7 || c != 16 {
		t.Errorf("output shape %dx%d, want 7x16", r, c)
	}
}

func TestMultiHeadAttentionRejectsIndivisibleEmbedding(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	_, err := NewMultiHeadAttention(10, 4, rng)
	var ce *ConfigError
	if !errors.As(err, &ce) || !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if _, err := NewBlock(10, 3, rng); !errors.Is(err, ErrConfig) {
		t.Errorf("NewBlock: expected ErrConfig, got %v", err)
	}
}

func TestFeedForwardShape(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	f := NewFeedForward(8, rng)
	if _, c := f.Up.Weight.W.Dims(); c != 32 {
		t.Errorf("hidden width %d, want 32", c)
	}
	y := f.Forward(randDense(3, 8, 1, rng))
	if r, c := y.Dims(); r != 3 || c != 8 {
		t.Errorf("output shape %dx%d, want 3x8", r, c)
	}
}

func TestFeedForwardIsPositionWise(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	f := NewFeedForward(4, rng)
	x := randDense(3, 4, 1, rng)
	all := f.Forward(x)
	single := f.Forward(x.Slice(1, 2, 0, 4))
	for j := 0; j < 4; j++ {
		if math.Abs(all.At(1, j)-single.At(0, j)) > 1e-12 {
			t.Errorf("row 1 col %d: %g vs %g", j, all.At(1, j), single.At(0, j))
		}
	}
}

func TestBlockShape(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	b, err := NewBlock(8, 2, rng)
	if err != nil {
		t.Fatal(err)
	}
	x := randDense(5, 8, 1, rng)
	y := b.Forward(x)
	if r, c := y.Dims(); r != 5 || c != 8 {
		t.Errorf("output shape %dx%d, want 5x8", r, c)
	}
	if mat.Equal(x, y) {
		t.Error("block returned its input unchanged")
	}
}
