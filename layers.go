package main

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Param is a trainable matrix together with its accumulated gradient.
type Param struct {
	Name string
	W    *mat.Dense
	Grad *mat.Dense
}

func newParam(name string, rows, cols int, scale float64, rng *rand.Rand) *Param {
	return &Param{
		Name: name,
		W:    randDense(rows, cols, scale, rng),
		Grad: mat.NewDense(rows, cols, nil),
	}
}

func (p *Param) ZeroGrad() {
	zero(p.Grad)
}

func (p *Param) Size() int {
	r, c := p.W.Dims()
	return r * c
}

func randDense(rows, cols int, scale float64, rng *rand.Rand) *mat.Dense {
	data := make([]float64, rows*cols)
	if scale != 0 {
		for i := range data {
			data[i] = (rng.Float64()*2 - 1) * scale
		}
	}
	return mat.NewDense(rows, cols, data)
}

func zero(m *mat.Dense) {
	r, _ := m.Dims()
	for i := 0; i < r; i++ {
		row := m.RawRowView(i)
		for j := range row {
			row[j] = 0
		}
	}
}

// addRows adds the 1×c matrix b to every row of m.
func addRows(m *mat.Dense, b *mat.Dense) {
	bias := b.RawRowView(0)
	r, _ := m.Dims()
	for i := 0; i < r; i++ {
		row := m.RawRowView(i)
		for j := range row {
			row[j] += bias[j]
		}
	}
}

// accumColSums adds the column sums of m into the 1×c matrix g.
func accumColSums(g *mat.Dense, m *mat.Dense) {
	acc := g.RawRowView(0)
	r, _ := m.Dims()
	for i := 0; i < r; i++ {
		for j, v := range m.RawRowView(i) {
			acc[j] += v
		}
	}
}

// Linear computes x·W + b for row-major inputs of shape T×in.
type Linear struct {
	Weight *Param // in×out
	Bias   *Param // 1×out, nil without bias
}

func NewLinear(name string, in, out int, bias bool, rng *rand.Rand) *Linear {
	l := &Linear{
		Weight: newParam(name+".weight", in, out, 1/math.Sqrt(float64(in)), rng),
	}
	if bias {
		l.Bias = newParam(name+".bias", 1, out, 0, rng)
	}
	return l
}

func (l *Linear) Forward(x mat.Matrix) *mat.Dense {
	r, _ := x.Dims()
	_, out := l.Weight.W.Dims()
	y := mat.NewDense(r, out, nil)
	y.Mul(x, l.Weight.W)
	if l.Bias != nil {
		addRows(y, l.Bias.W)
	}
	return y
}

// Backward accumulates the weight gradients for the upstream gradient dy of
// Forward(x) and returns the gradient with respect to x.
func (l *Linear) Backward(x mat.Matrix, dy *mat.Dense) *mat.Dense {
	var gw mat.Dense
	gw.Mul(x.T(), dy)
	l.Weight.Grad.Add(l.Weight.Grad, &gw)
	if l.Bias != nil {
		accumColSums(l.Bias.Grad, dy)
	}

	r, _ := x.Dims()
	in, _ := l.Weight.W.Dims()
	dx := mat.NewDense(r, in, nil)
	dx.Mul(dy, l.Weight.W.T())
	return dx
}

func (l *Linear) Params() []*Param {
	if l.Bias == nil {
		return []*Param{l.Weight}
	}
	return []*Param{l.Weight, l.Bias}
}

// FeedForward expands each position to 4×C, applies ReLU and projects back.
type FeedForward struct {
	Up   *Linear
	Down *Linear
}

type ffCache struct {
	x   mat.Matrix
	pre *mat.Dense
	act *mat.Dense
}

func NewFeedForward(nEmbd int, rng *rand.Rand) *FeedForward {
	return &FeedForward{
		Up:   NewLinear("ffwd.up", nEmbd, 4*nEmbd, true, rng),
		Down: NewLinear("ffwd.down", 4*nEmbd, nEmbd, true, rng),
	}
}

func (f *FeedForward) Forward(x mat.Matrix) *mat.Dense {
	y, _ := f.forward(x)
	return y
}

func (f *FeedForward) forward(x mat.Matrix) (*mat.Dense, *ffCache) {
	pre := f.Up.Forward(x)
	act := mat.DenseCopyOf(pre)
	r, _ := act.Dims()
	for i := 0; i < r; i++ {
		row := act.RawRowView(i)
		for j, v := range row {
			if v < 0 {
				row[j] = 0
			}
		}
	}
	return f.Down.Forward(act), &ffCache{x: x, pre: pre, act: act}
}

func (f *FeedForward) backward(c *ffCache, dy *mat.Dense) *mat.Dense {
	dact := f.Down.Backward(c.act, dy)
	r, _ := dact.Dims()
	for i := 0; i < r; i++ {
		pre := c.pre.RawRowView(i)
		row := dact.RawRowView(i)
		for j := range row {
			if pre[j] <= 0 {
				row[j] = 0
			}
		}
	}
	return f.Up.Backward(c.x, dact)
}

func (f *FeedForward) Params() []*Param {
	return append(f.Up.Params(), f.Down.Params()...)
}
