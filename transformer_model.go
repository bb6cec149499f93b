package main

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

type GPTConfig struct {
	VocabSize int
	BlockSize int
	NEmbd     int
	NHead     int
	LR        float64
	Clip      float64
}

func (c GPTConfig) validate() error {
	switch {
	case c.VocabSize <= 0:
		return configErrorf("vocab size", "must be positive, got %d", c.VocabSize)
	case c.BlockSize <= 0:
		return configErrorf("block size", "must be positive, got %d", c.BlockSize)
	case c.NEmbd <= 0:
		return configErrorf("n_embd", "must be positive, got %d", c.NEmbd)
	case c.NHead <= 0:
		return configErrorf("n_head", "must be positive, got %d", c.NHead)
	case c.NEmbd%c.NHead != 0:
		return configErrorf("n_embd", "%d is not divisible by %d heads", c.NEmbd, c.NHead)
	case c.LR <= 0:
		return configErrorf("learning rate", "must be positive, got %g", c.LR)
	}
	return nil
}

// GPT is the bigram model extended with position embeddings and one
// transformer block between the embeddings and the LM head.
type GPT struct {
	cfg      GPTConfig
	TokenEmb *Param // vocab×C
	PosEmb   *Param // block×C
	Block    *Block
	LMHead   *Linear
	opt      *Adam
}

type gptCache struct {
	ids    []int
	block  *blockCache
	hidden *mat.Dense
}

func NewGPT(cfg GPTConfig, rng *rand.Rand) (*GPT, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	block, err := NewBlock(cfg.NEmbd, cfg.NHead, rng)
	if err != nil {
		return nil, err
	}

	m := &GPT{
		cfg:      cfg,
		TokenEmb: newParam("token_embedding", cfg.VocabSize, cfg.NEmbd, 1, rng),
		PosEmb:   newParam("position_embedding", cfg.BlockSize, cfg.NEmbd, 1, rng),
		Block:    block,
		LMHead:   NewLinear("lm_head", cfg.NEmbd, cfg.VocabSize, true, rng),
	}
	m.opt = NewAdam(m.Params(), defaultAdam(cfg.LR, cfg.Clip))
	return m, nil
}

func (m *GPT) ContextSize() int { return m.cfg.BlockSize }

func (m *GPT) Close() error { return nil }

func (m *GPT) Params() []*Param {
	ps := []*Param{m.TokenEmb, m.PosEmb}
	ps = append(ps, m.Block.Params()...)
	return append(ps, m.LMHead.Params()...)
}

func (m *GPT) NumParams() int {
	var n int
	for _, p := range m.Params() {
		n += p.Size()
	}
	return n
}

func (m *GPT) forwardSeq(ids []int) (*mat.Dense, *gptCache, error) {
	t := len(ids)
	if t == 0 || t > m.cfg.BlockSize {
		return nil, nil, fmt.Errorf("sequence length %d outside [1, %d]", t, m.cfg.BlockSize)
	}

	x := mat.NewDense(t, m.cfg.NEmbd, nil)
	for i, id := range ids {
		if id < 0 || id >= m.cfg.VocabSize {
			return nil, nil, fmt.Errorf("position %d: id %d: %w", i, id, ErrUnknownID)
		}
		row := x.RawRowView(i)
		tok := m.TokenEmb.W.RawRowView(id)
		pos := m.PosEmb.W.RawRowView(i)
		for k := range row {
			row[k] = tok[k] + pos[k]
		}
	}

	hidden, bc := m.Block.forward(x)
	logits := m.LMHead.Forward(hidden)
	return logits, &gptCache{ids: ids, block: bc, hidden: hidden}, nil
}

func (m *GPT) backwardSeq(c *gptCache, dlogits *mat.Dense) {
	dhidden := m.LMHead.Backward(c.hidden, dlogits)
	dx := m.Block.backward(c.block, dhidden)
	for i, id := range c.ids {
		d := dx.RawRowView(i)
		gt := m.TokenEmb.Grad.RawRowView(id)
		gp := m.PosEmb.Grad.RawRowView(i)
		for k, v := range d {
			gt[k] += v
			gp[k] += v
		}
	}
}

// Forward returns T×vocab logits per input sequence and, when targets is
// non-nil, the mean cross-entropy over all positions.
func (m *GPT) Forward(inputs, targets [][]int) ([]*mat.Dense, float64, error) {
	logits := make([]*mat.Dense, len(inputs))
	for i, ids := range inputs {
		l, _, err := m.forwardSeq(ids)
		if err != nil {
			return nil, 0, err
		}
		logits[i] = l
	}
	if targets == nil {
		return logits, 0, nil
	}
	loss, err := meanLoss(logits, targets)
	return logits, loss, err
}

// Step runs forward and backward over the batch and applies one Adam update.
func (m *GPT) Step(b Batch) (float64, error) {
	loss, err := m.backprop(b)
	if err != nil {
		return 0, err
	}
	m.opt.Step()
	return loss, nil
}

// backprop leaves d(mean loss)/d(param) in every parameter's Grad.
func (m *GPT) backprop(b Batch) (float64, error) {
	if b.Size() == 0 {
		return 0, fmt.Errorf("gpt step: empty batch")
	}

	type pass struct {
		cache *gptCache
		grad  *mat.Dense
	}
	passes := make([]pass, b.Size())
	var total float64
	var n int
	for i, ids := range b.Inputs {
		logits, cache, err := m.forwardSeq(ids)
		if err != nil {
			return 0, err
		}
		s, grad, err := crossEntropy(logits, b.Targets[i])
		if err != nil {
			return 0, err
		}
		total += s
		n += len(ids)
		passes[i] = pass{cache: cache, grad: grad}
	}

	m.opt.ZeroGrad()
	for _, p := range passes {
		p.grad.Scale(1/float64(n), p.grad)
		m.backwardSeq(p.cache, p.grad)
	}
	return total / float64(n), nil
}
