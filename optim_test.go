package main

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestAdamFirstStep(t *testing.T) {
	p := &Param{
		Name: "w",
		W:    mat.NewDense(1, 3, []float64{1, 1, 1}),
		Grad: mat.NewDense(1, 3, []float64{0.5, -2, 0}),
	}
	opt := NewAdam([]*Param{p}, defaultAdam(0.1, 0))
	opt.Step()

	// With bias correction the first update is -lr*sign(g).
	want := []float64{0.9, 1.1, 1}
	for j, w := range want {
		if got := p.W.At(0, j); math.Abs(got-w) > 1e-6 {
			t.Errorf("w[%d] = %g, want %g", j, got, w)
		}
	}

	opt.ZeroGrad()
	if !mat.Equal(p.Grad, mat.NewDense(1, 3, nil)) {
		t.Error("ZeroGrad left non-zero gradients")
	}
}

func TestAdamClip(t *testing.T) {
	clipped := &Param{W: mat.NewDense(1, 1, []float64{0}), Grad: mat.NewDense(1, 1, []float64{100})}
	small := &Param{W: mat.NewDense(1, 1, []float64{0}), Grad: mat.NewDense(1, 1, []float64{1})}
	a := NewAdam([]*Param{clipped}, defaultAdam(0.1, 1))
	b := NewAdam([]*Param{small}, defaultAdam(0.1, 1))
	for i := 0; i < 3; i++ {
		a.Step()
		b.Step()
	}
	if math.Abs(clipped.W.At(0, 0)-small.W.At(0, 0)) > 1e-12 {
		t.Errorf("clipped gradient moved to %g, unclipped unit gradient to %g", clipped.W.At(0, 0), small.W.At(0, 0))
	}
}
