package main

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

type AdamCfg struct {
	LR, Beta1, Beta2, Eps float64
	Clip                  float64
}

func defaultAdam(lr, clip float64) AdamCfg {
	return AdamCfg{LR: lr, Beta1: 0.9, Beta2: 0.999, Eps: 1e-8, Clip: clip}
}

// Adam keeps first and second moments for a fixed list of parameters.
type Adam struct {
	cfg    AdamCfg
	params []*Param
	m, v   []*mat.Dense
	t      int
}

func NewAdam(params []*Param, cfg AdamCfg) *Adam {
	a := &Adam{cfg: cfg, params: params}
	for _, p := range params {
		r, c := p.W.Dims()
		a.m = append(a.m, mat.NewDense(r, c, nil))
		a.v = append(a.v, mat.NewDense(r, c, nil))
	}
	return a
}

func (a *Adam) ZeroGrad() {
	for _, p := range a.params {
		p.ZeroGrad()
	}
}

// Step applies one update from the gradients currently stored in the
// parameters. Gradients are clipped element-wise to [-Clip, Clip] when Clip
// is positive.
func (a *Adam) Step() {
	cfg := a.cfg
	a.t++
	b1t := 1 - math.Pow(cfg.Beta1, float64(a.t))
	b2t := 1 - math.Pow(cfg.Beta2, float64(a.t))

	clip := func(x float64) float64 {
		if cfg.Clip <= 0 {
			return x
		}
		return math.Max(-cfg.Clip, math.Min(cfg.Clip, x))
	}

	for k, p := range a.params {
		rows, _ := p.W.Dims()
		for i := 0; i < rows; i++ {
			w := p.W.RawRowView(i)
			g := p.Grad.RawRowView(i)
			mw := a.m[k].RawRowView(i)
			vw := a.v[k].RawRowView(i)
			for j := range w {
				gij := clip(g[j])
				mw[j] = cfg.Beta1*mw[j] + (1-cfg.Beta1)*gij
				vw[j] = cfg.Beta2*vw[j] + (1-cfg.Beta2)*gij*gij
				mh := mw[j] / b1t
				vh := vw[j] / b2t
				w[j] -= cfg.LR * mh / (math.Sqrt(vh) + cfg.Eps)
			}
		}
	}
}
