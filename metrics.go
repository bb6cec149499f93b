package main

import (
	"math"
	"time"
)

type Metrics struct {
	Model       string        `json:"model"`
	Granularity string        `json:"granularity"`
	VocabSize   int           `json:"vocab_size"`
	Seed        int64         `json:"seed"`
	TrainedAt   time.Time     `json:"trained_at"`
	Steps       []StepMetrics `json:"steps"`
}

type StepMetrics struct {
	Step       int     `json:"step"`
	TrainLoss  float64 `json:"train_loss"`
	ValLoss    float64 `json:"val_loss"`
	Perplexity float64 `json:"perplexity"`
}

func newMetrics(model string, cfg Config, vocabSize int, history []LossReport) Metrics {
	m := Metrics{
		Model:       model,
		Granularity: cfg.Granularity.String(),
		VocabSize:   vocabSize,
		Seed:        cfg.Seed,
		TrainedAt:   time.Now().UTC(),
		Steps:       make([]StepMetrics, len(history)),
	}
	for i, r := range history {
		m.Steps[i] = StepMetrics{
			Step:       r.Step,
			TrainLoss:  r.Train,
			ValLoss:    r.Val,
			Perplexity: math.Exp(r.Val),
		}
	}
	return m
}

func (m Metrics) Save(path string) error {
	return saveJSON(path, m)
}
