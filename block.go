package main

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Block is x + attn(x) followed by x + ffwd(x).
type Block struct {
	Attn *MultiHeadAttention
	FF   *FeedForward
}

type blockCache struct {
	attn *attnCache
	ff   *ffCache
}

func NewBlock(nEmbd, nHead int, rng *rand.Rand) (*Block, error) {
	attn, err := NewMultiHeadAttention(nEmbd, nHead, rng)
	if err != nil {
		return nil, err
	}
	return &Block{Attn: attn, FF: NewFeedForward(nEmbd, rng)}, nil
}

func (b *Block) Forward(x mat.Matrix) *mat.Dense {
	y, _ := b.forward(x)
	return y
}

func (b *Block) forward(x mat.Matrix) (*mat.Dense, *blockCache) {
	a, ac := b.Attn.forward(x)
	a.Add(a, x)
	f, fc := b.FF.forward(a)
	f.Add(f, a)
	return f, &blockCache{attn: ac, ff: fc}
}

func (b *Block) backward(c *blockCache, dy *mat.Dense) *mat.Dense {
	dmid := b.FF.backward(c.ff, dy)
	dmid.Add(dmid, dy)
	dx := b.Attn.backward(c.attn, dmid)
	dx.Add(dx, dmid)
	return dx
}

func (b *Block) Params() []*Param {
	return append(b.Attn.Params(), b.FF.Params()...)
}
