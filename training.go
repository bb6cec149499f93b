package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
)

type TrainCfg struct {
	BatchSize    int
	BlockSize    int
	MaxIters     int
	EvalInterval int
	EvalIters    int
}

func (c TrainCfg) validate() error {
	switch {
	case c.BatchSize <= 0:
		return configErrorf("batch size", "must be positive, got %d", c.BatchSize)
	case c.BlockSize <= 0:
		return configErrorf("block size", "must be positive, got %d", c.BlockSize)
	case c.MaxIters < 0:
		return configErrorf("max iters", "must not be negative, got %d", c.MaxIters)
	case c.EvalInterval <= 0:
		return configErrorf("eval interval", "must be positive, got %d", c.EvalInterval)
	case c.EvalIters <= 0:
		return configErrorf("eval iters", "must be positive, got %d", c.EvalIters)
	}
	return nil
}

// LossReport is the mean loss over EvalIters batches of each split.
type LossReport struct {
	Step  int
	Train float64
	Val   float64
}

// Session owns one model for the duration of a training run. Create it with
// NewSession, call Run and Generate, then Close.
type Session struct {
	model   LanguageModel
	data    *Dataset
	sampler *Sampler
	rng     *rand.Rand
	cfg     TrainCfg
	out     io.Writer
	history []LossReport
}

func NewSession(model LanguageModel, data *Dataset, cfg TrainCfg, rng *rand.Rand, out io.Writer) (*Session, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.BlockSize > model.ContextSize() {
		return nil, configErrorf("block size", "%d exceeds model context %d", cfg.BlockSize, model.ContextSize())
	}
	for name, split := range map[string][]int{"train": data.Train(), "val": data.Val()} {
		if len(split) <= cfg.BlockSize {
			return nil, fmt.Errorf("%s split: %w: %d tokens, block size %d", name, ErrSplitTooShort, len(split), cfg.BlockSize)
		}
	}
	if out == nil {
		out = io.Discard
	}
	return &Session{
		model:   model,
		data:    data,
		sampler: NewSampler(rng),
		rng:     rng,
		cfg:     cfg,
		out:     out,
	}, nil
}

// Run trains for MaxIters steps, evaluating every EvalInterval steps and
// once more at the end. It stops early if ctx is cancelled.
func (s *Session) Run(ctx context.Context) ([]LossReport, error) {
	for iter := 0; iter < s.cfg.MaxIters; iter++ {
		if err := ctx.Err(); err != nil {
			return s.history, err
		}

		if iter%s.cfg.EvalInterval == 0 {
			r, err := s.evaluate(iter)
			if err != nil {
				return s.history, err
			}
			fmt.Fprintf(s.out, "step %d: train loss %.4f, val loss %.4f\n", r.Step, r.Train, r.Val)
		}

		b, err := s.sampler.Sample(s.data.Train(), s.cfg.BatchSize, s.cfg.BlockSize)
		if err != nil {
			return s.history, err
		}
		if _, err := s.model.Step(b); err != nil {
			return s.history, fmt.Errorf("step %d: %w", iter, err)
		}
	}

	r, err := s.evaluate(s.cfg.MaxIters)
	if err != nil {
		return s.history, err
	}
	fmt.Fprintf(s.out, "final: train loss %.4f, val loss %.4f\n", r.Train, r.Val)
	return s.history, nil
}

func (s *Session) evaluate(step int) (LossReport, error) {
	train, err := s.EstimateLoss(s.data.Train())
	if err != nil {
		return LossReport{}, fmt.Errorf("estimating train loss: %w", err)
	}
	val, err := s.EstimateLoss(s.data.Val())
	if err != nil {
		return LossReport{}, fmt.Errorf("estimating val loss: %w", err)
	}
	r := LossReport{Step: step, Train: train, Val: val}
	s.history = append(s.history, r)
	return r, nil
}

// EstimateLoss averages the model loss over EvalIters random batches of split.
func (s *Session) EstimateLoss(split []int) (float64, error) {
	var sum float64
	for i := 0; i < s.cfg.EvalIters; i++ {
		b, err := s.sampler.Sample(split, s.cfg.BatchSize, s.cfg.BlockSize)
		if err != nil {
			return 0, err
		}
		_, loss, err := s.model.Forward(b.Inputs, b.Targets)
		if err != nil {
			return 0, err
		}
		sum += loss
	}
	return sum / float64(s.cfg.EvalIters), nil
}

func (s *Session) History() []LossReport {
	return append([]LossReport(nil), s.history...)
}

// Generate appends n sampled tokens to seed. Each step conditions on at most
// the last ContextSize() tokens.
func (s *Session) Generate(seed []int, n int) ([]int, error) {
	if len(seed) == 0 {
		return nil, fmt.Errorf("generate: empty seed")
	}
	out := append([]int(nil), seed...)
	window := s.model.ContextSize()
	for i := 0; i < n; i++ {
		ctx := out
		if len(ctx) > window {
			ctx = ctx[len(ctx)-window:]
		}
		logits, _, err := s.model.Forward([][]int{ctx}, nil)
		if err != nil {
			return nil, fmt.Errorf("generate step %d: %w", i, err)
		}
		rows, _ := logits[0].Dims()
		probs := softmax(logits[0].RawRowView(rows - 1))
		out = append(out, choice(probs, s.rng))
	}
	return out, nil
}

func (s *Session) Close() error {
	return s.model.Close()
}

// choice samples an index from a probability distribution.
func choice(probs []float64, rng *rand.Rand) int {
	r := rng.Float64()
	var cum float64
	for i, p := range probs {
		cum += p
		if r < cum {
			return i
		}
	}
	return len(probs) - 1
}
