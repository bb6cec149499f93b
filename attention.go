package main

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Head is one causal self-attention head projecting C-dimensional inputs
// to head size H.
type Head struct {
	Key   *Linear
	Query *Linear
	Value *Linear
	size  int
}

type headCache struct {
	x       mat.Matrix
	q, k, v *mat.Dense
	weights *mat.Dense
}

func NewHead(name string, nEmbd, headSize int, rng *rand.Rand) *Head {
	return &Head{
		Key:   NewLinear(name+".key", nEmbd, headSize, false, rng),
		Query: NewLinear(name+".query", nEmbd, headSize, false, rng),
		Value: NewLinear(name+".value", nEmbd, headSize, false, rng),
		size:  headSize,
	}
}

// Forward returns the T×H head output and the T×T attention weights. Row i
// of the weights is a distribution over positions 0..i; entries above the
// diagonal are exactly zero.
func (h *Head) Forward(x mat.Matrix) (out, weights *mat.Dense) {
	out, c := h.forward(x)
	return out, c.weights
}

func (h *Head) forward(x mat.Matrix) (*mat.Dense, *headCache) {
	q := h.Query.Forward(x)
	k := h.Key.Forward(x)
	v := h.Value.Forward(x)

	t, _ := x.Dims()
	scale := 1 / math.Sqrt(float64(h.size))
	wei := mat.NewDense(t, t, nil)
	wei.Mul(q, k.T())
	for i := 0; i < t; i++ {
		row := wei.RawRowView(i)
		for j := range row {
			if j > i {
				row[j] = math.Inf(-1)
			} else {
				row[j] *= scale
			}
		}
		softmaxInPlace(row)
	}

	out := mat.NewDense(t, h.size, nil)
	out.Mul(wei, v)
	return out, &headCache{x: x, q: q, k: k, v: v, weights: wei}
}

func (h *Head) backward(c *headCache, dout mat.Matrix) *mat.Dense {
	t, _ := c.x.Dims()
	scale := 1 / math.Sqrt(float64(h.size))

	dv := mat.NewDense(t, h.size, nil)
	dv.Mul(c.weights.T(), dout)

	dwei := mat.NewDense(t, t, nil)
	dwei.Mul(dout, c.v.T())

	// Softmax backward per row, folded with the 1/sqrt(H) scale. Masked
	// entries have zero weight and so get zero gradient.
	dscores := mat.NewDense(t, t, nil)
	for i := 0; i < t; i++ {
		p := c.weights.RawRowView(i)
		g := dwei.RawRowView(i)
		var dot float64
		for j := range p {
			dot += p[j] * g[j]
		}
		row := dscores.RawRowView(i)
		for j := range row {
			row[j] = p[j] * (g[j] - dot) * scale
		}
	}

	dq := mat.NewDense(t, h.size, nil)
	dq.Mul(dscores, c.k)
	dk := mat.NewDense(t, h.size, nil)
	dk.Mul(dscores.T(), c.q)

	dx := h.Query.Backward(c.x, dq)
	dx.Add(dx, h.Key.Backward(c.x, dk))
	dx.Add(dx, h.Value.Backward(c.x, dv))
	return dx
}

func (h *Head) Params() []*Param {
	return []*Param{h.Key.Weight, h.Query.Weight, h.Value.Weight}
}

// MultiHeadAttention runs the heads side by side, concatenates their
// outputs and projects back to C.
type MultiHeadAttention struct {
	Heads []*Head
	Proj  *Linear
}

type attnCache struct {
	heads  []*headCache
	concat *mat.Dense
}

func NewMultiHeadAttention(nEmbd, nHead int, rng *rand.Rand) (*MultiHeadAttention, error) {
	if nHead <= 0 {
		return nil, configErrorf("n_head", "must be positive, got %d", nHead)
	}
	if nEmbd <= 0 || nEmbd%nHead != 0 {
		return nil, configErrorf("n_embd", "%d is not divisible by %d heads", nEmbd, nHead)
	}

	headSize := nEmbd / nHead
	heads := make([]*Head, nHead)
	for i := range heads {
		heads[i] = NewHead(fmt.Sprintf("attn.head%d", i), nEmbd, headSize, rng)
	}
	return &MultiHeadAttention{
		Heads: heads,
		Proj:  NewLinear("attn.proj", nEmbd, nEmbd, true, rng),
	}, nil
}

func (a *MultiHeadAttention) Forward(x mat.Matrix) *mat.Dense {
	y, _ := a.forward(x)
	return y
}

func (a *MultiHeadAttention) forward(x mat.Matrix) (*mat.Dense, *attnCache) {
	t, c := x.Dims()
	hs := c / len(a.Heads)
	concat := mat.NewDense(t, c, nil)
	caches := make([]*headCache, len(a.Heads))
	for i, h := range a.Heads {
		out, hc := h.forward(x)
		concat.Slice(0, t, i*hs, (i+1)*hs).(*mat.Dense).Copy(out)
		caches[i] = hc
	}
	return a.Proj.Forward(concat), &attnCache{heads: caches, concat: concat}
}

func (a *MultiHeadAttention) backward(c *attnCache, dy *mat.Dense) *mat.Dense {
	dconcat := a.Proj.Backward(c.concat, dy)
	t, cols := dconcat.Dims()
	hs := cols / len(a.Heads)

	var dx *mat.Dense
	for i, h := range a.Heads {
		d := h.backward(c.heads[i], dconcat.Slice(0, t, i*hs, (i+1)*hs))
		if dx == nil {
			dx = d
			continue
		}
		dx.Add(dx, d)
	}
	return dx
}

func (a *MultiHeadAttention) Params() []*Param {
	var ps []*Param
	for _, h := range a.Heads {
		ps = append(ps, h.Params()...)
	}
	return append(ps, a.Proj.Params()...)
}
