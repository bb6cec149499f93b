package main

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func newTestBigram(t *testing.T, cfg BigramConfig) *BigramModel {
	t.Helper()
	m, err := NewBigramModel(cfg, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func cyclic(n, vocab int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i % vocab
	}
	return out
}

func TestBigramStepMatchesForward(t *testing.T) {
	m := newTestBigram(t, BigramConfig{VocabSize: 6, BlockSize: 4, BatchSize: 3, LR: 1e-2})
	s := NewSampler(rand.New(rand.NewSource(2)))
	b, err := s.Sample(cyclic(50, 6), 3, 4)
	if err != nil {
		t.Fatal(err)
	}

	_, want, err := m.Forward(b.Inputs, b.Targets)
	if err != nil {
		t.Fatal(err)
	}
	got, err := m.Step(b)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("step loss %g, forward loss %g", got, want)
	}

	_, after, err := m.Forward(b.Inputs, b.Targets)
	if err != nil {
		t.Fatal(err)
	}
	if after >= want {
		t.Errorf("loss did not drop after one step: %g -> %g", want, after)
	}
}

func TestBigramLearns(t *testing.T) {
	m := newTestBigram(t, BigramConfig{VocabSize: 5, BlockSize: 8, BatchSize: 4, LR: 0.1})
	data := cyclic(100, 5)
	s := NewSampler(rand.New(rand.NewSource(3)))

	var first, last float64
	for i := 0; i < 100; i++ {
		b, err := s.Sample(data, 4, 8)
		if err != nil {
			t.Fatal(err)
		}
		l, err := m.Step(b)
		if err != nil {
			t.Fatal(err)
		}
		if i == 0 {
			first = l
		}
		last = l
	}
	if first < math.Log(5)-0.2 || first > math.Log(5)+0.2 {
		t.Errorf("initial loss %g, want close to ln 5", first)
	}
	if last >= first/2 {
		t.Errorf("loss went from %.4f to %.4f", first, last)
	}

	table := m.Table()
	for id := 0; id < 5; id++ {
		next := (id + 1) % 5
		row := table.RawRowView(id)
		for j, v := range row {
			if j != next && v >= row[next] {
				t.Errorf("row %d: logit %d (%g) not below successor %d (%g)", id, j, v, next, row[next])
			}
		}
	}
}

func TestBigramForward(t *testing.T) {
	m := newTestBigram(t, BigramConfig{VocabSize: 4, BlockSize: 3, BatchSize: 1, LR: 1e-2})
	logits, loss, err := m.Forward([][]int{{2, 0}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if loss != 0 {
		t.Errorf("loss without targets = %g", loss)
	}
	if r, c := logits[0].Dims(); r != 2 || c != 4 {
		t.Fatalf("logits %dx%d, want 2x4", r, c)
	}
	table := m.Table()
	for j := 0; j < 4; j++ {
		if logits[0].At(0, j) != table.At(2, j) {
			t.Errorf("row 0 is not the table row of token 2")
		}
	}

	if _, _, err := m.Forward([][]int{{4}}, nil); !errors.Is(err, ErrUnknownID) {
		t.Errorf("expected ErrUnknownID, got %v", err)
	}
}

func TestBigramRejectsWrongBatch(t *testing.T) {
	m := newTestBigram(t, BigramConfig{VocabSize: 4, BlockSize: 2, BatchSize: 2, LR: 1e-2})
	b := Batch{Inputs: [][]int{{0, 1}}, Targets: [][]int{{1, 2}}}
	if _, err := m.Step(b); err == nil {
		t.Error("expected error for batch smaller than the graph")
	}
	b = Batch{Inputs: [][]int{{0, 1}, {1, 9}}, Targets: [][]int{{1, 2}, {2, 3}}}
	if _, err := m.Step(b); !errors.Is(err, ErrUnknownID) {
		t.Errorf("expected ErrUnknownID, got %v", err)
	}
}

func TestNewBigramConfig(t *testing.T) {
	_, err := NewBigramModel(BigramConfig{VocabSize: 0, BlockSize: 2, BatchSize: 2, LR: 1}, rand.New(rand.NewSource(1)))
	if !errors.Is(err, ErrConfig) {
		t.Errorf("expected ErrConfig, got %v", err)
	}
}
