package main

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// LanguageModel is what a training Session drives.
type LanguageModel interface {
	// Forward returns T×vocab logits per sequence and, when targets is
	// non-nil, the mean cross-entropy over all positions.
	Forward(inputs, targets [][]int) ([]*mat.Dense, float64, error)
	// Step trains on one batch and returns its loss before the update.
	Step(b Batch) (float64, error)
	// ContextSize is the longest context Forward accepts.
	ContextSize() int
	Close() error
}

type BigramConfig struct {
	VocabSize int
	BlockSize int
	BatchSize int
	LR        float64
}

func (c BigramConfig) validate() error {
	switch {
	case c.VocabSize <= 0:
		return configErrorf("vocab size", "must be positive, got %d", c.VocabSize)
	case c.BlockSize <= 0:
		return configErrorf("block size", "must be positive, got %d", c.BlockSize)
	case c.BatchSize <= 0:
		return configErrorf("batch size", "must be positive, got %d", c.BatchSize)
	case c.LR <= 0:
		return configErrorf("learning rate", "must be positive, got %g", c.LR)
	}
	return nil
}

// BigramModel predicts the next token from the current one through a
// vocab×vocab logit table. Training runs on a gorgonia graph sized for one
// batch of BatchSize×BlockSize positions.
type BigramModel struct {
	cfg BigramConfig
	n   int

	g      *gorgonia.ExprGraph
	table  *gorgonia.Node
	x, y   *gorgonia.Node
	cost   gorgonia.Value
	vm     gorgonia.VM
	solver gorgonia.Solver
}

func NewBigramModel(cfg BigramConfig, rng *rand.Rand) (*BigramModel, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	v := cfg.VocabSize
	n := cfg.BatchSize * cfg.BlockSize

	weights := make([]float64, v*v)
	for i := range weights {
		weights[i] = (rng.Float64()*2 - 1) * 0.1
	}

	m := &BigramModel{cfg: cfg, n: n, g: gorgonia.NewGraph()}
	m.table = gorgonia.NewMatrix(m.g, tensor.Float64,
		gorgonia.WithShape(v, v),
		gorgonia.WithName("table"),
		gorgonia.WithValue(tensor.New(tensor.WithShape(v, v), tensor.WithBacking(weights))),
	)
	m.x = gorgonia.NewMatrix(m.g, tensor.Float64, gorgonia.WithShape(n, v), gorgonia.WithName("x"))
	m.y = gorgonia.NewMatrix(m.g, tensor.Float64, gorgonia.WithShape(n, v), gorgonia.WithName("y"))

	cost, err := m.buildLoss()
	if err != nil {
		return nil, fmt.Errorf("building bigram graph: %w", err)
	}
	gorgonia.Read(cost, &m.cost)

	if _, err := gorgonia.Grad(cost, m.table); err != nil {
		return nil, fmt.Errorf("bigram gradients: %w", err)
	}

	m.vm = gorgonia.NewTapeMachine(m.g, gorgonia.BindDualValues(m.table))
	m.solver = gorgonia.NewAdamSolver(gorgonia.WithLearnRate(cfg.LR))
	return m, nil
}

// buildLoss wires -mean(sum(y ⊙ log softmax(x·table))) where x and y are
// one-hot rows.
func (m *BigramModel) buildLoss() (*gorgonia.Node, error) {
	logits, err := gorgonia.Mul(m.x, m.table)
	if err != nil {
		return nil, err
	}
	probs, err := gorgonia.SoftMax(logits)
	if err != nil {
		return nil, err
	}
	logProbs, err := gorgonia.Log(probs)
	if err != nil {
		return nil, err
	}
	picked, err := gorgonia.HadamardProd(logProbs, m.y)
	if err != nil {
		return nil, err
	}
	total, err := gorgonia.Sum(picked)
	if err != nil {
		return nil, err
	}
	mean, err := gorgonia.Div(total, gorgonia.NewConstant(float64(m.n)))
	if err != nil {
		return nil, err
	}
	return gorgonia.Neg(mean)
}

func (m *BigramModel) ContextSize() int { return m.cfg.BlockSize }

func (m *BigramModel) Close() error { return m.vm.Close() }

// Table returns a copy of the current logit table.
func (m *BigramModel) Table() *mat.Dense {
	return mat.DenseCopyOf(m.tableView())
}

func (m *BigramModel) tableView() *mat.Dense {
	data := m.table.Value().Data().([]float64)
	return mat.NewDense(m.cfg.VocabSize, m.cfg.VocabSize, data)
}

func (m *BigramModel) Forward(inputs, targets [][]int) ([]*mat.Dense, float64, error) {
	table := m.tableView()
	v := m.cfg.VocabSize
	logits := make([]*mat.Dense, len(inputs))
	for i, ids := range inputs {
		if len(ids) == 0 {
			return nil, 0, fmt.Errorf("bigram forward: empty sequence")
		}
		l := mat.NewDense(len(ids), v, nil)
		for t, id := range ids {
			if id < 0 || id >= v {
				return nil, 0, fmt.Errorf("position %d: id %d: %w", t, id, ErrUnknownID)
			}
			copy(l.RawRowView(t), table.RawRowView(id))
		}
		logits[i] = l
	}
	if targets == nil {
		return logits, 0, nil
	}
	loss, err := meanLoss(logits, targets)
	return logits, loss, err
}

func (m *BigramModel) Step(b Batch) (float64, error) {
	v := m.cfg.VocabSize
	if b.Size()*m.cfg.BlockSize != m.n {
		return 0, fmt.Errorf("bigram step: batch of %d, graph built for %d", b.Size(), m.cfg.BatchSize)
	}

	xs := make([]float64, m.n*v)
	ys := make([]float64, m.n*v)
	row := 0
	for i, ids := range b.Inputs {
		if len(ids) != m.cfg.BlockSize || len(b.Targets[i]) != m.cfg.BlockSize {
			return 0, fmt.Errorf("bigram step: window %d has length %d, want %d", i, len(ids), m.cfg.BlockSize)
		}
		for t, id := range ids {
			target := b.Targets[i][t]
			if id < 0 || id >= v || target < 0 || target >= v {
				return 0, fmt.Errorf("bigram step: window %d position %d: %w", i, t, ErrUnknownID)
			}
			xs[row*v+id] = 1
			ys[row*v+target] = 1
			row++
		}
	}

	if err := gorgonia.Let(m.x, tensor.New(tensor.WithShape(m.n, v), tensor.WithBacking(xs))); err != nil {
		return 0, fmt.Errorf("setting input failed: %w", err)
	}
	if err := gorgonia.Let(m.y, tensor.New(tensor.WithShape(m.n, v), tensor.WithBacking(ys))); err != nil {
		return 0, fmt.Errorf("setting target failed: %w", err)
	}

	defer m.vm.Reset()
	if err := m.vm.RunAll(); err != nil {
		return 0, fmt.Errorf("bigram forward/backward: %w", err)
	}
	loss, ok := m.cost.Data().(float64)
	if !ok {
		return 0, fmt.Errorf("bigram loss has type %T", m.cost.Data())
	}
	if err := m.solver.Step(gorgonia.NodesToValueGrads(gorgonia.Nodes{m.table})); err != nil {
		return 0, fmt.Errorf("solver step failed: %w", err)
	}
	return loss, nil
}
