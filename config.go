package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const envPrefix = "TINYLM_"

// Config holds every path and hyperparameter of a run. Values come from
// DefaultConfig and can be overridden with TINYLM_* environment variables.
type Config struct {
	Command string

	InputPath       string
	CleanOutputPath string
	VocabPath       string
	TrainInputPath  string
	OutputPath      string
	MetricsPath     string

	Granularity  Granularity
	Seed         int64
	BatchSize    int
	BlockSize    int
	MaxIters     int
	EvalInterval int
	EvalIters    int
	LearningRate float64
	Clip         float64
	NEmbd        int
	NHead        int
	GenTokens    int
}

func DefaultConfig(command string) Config {
	cfg := Config{
		Command:         command,
		InputPath:       "input.txt",
		CleanOutputPath: "cleaned.txt",
		VocabPath:       "vocab.json",
		TrainInputPath:  "cleaned.txt",
		Granularity:     Char,
		Seed:            1337,
		BatchSize:       32,
		BlockSize:       8,
		EvalIters:       200,
		GenTokens:       500,
		NEmbd:           32,
		NHead:           4,
	}
	switch command {
	case "bigram":
		cfg.OutputPath = "bigram_output.txt"
		cfg.MetricsPath = "bigram_metrics.json"
		cfg.Granularity = Word
		cfg.MaxIters = 3000
		cfg.EvalInterval = 300
		cfg.LearningRate = 1e-2
	case "gpt":
		cfg.OutputPath = "gpt_output.txt"
		cfg.MetricsPath = "gpt_metrics.json"
		cfg.MaxIters = 5000
		cfg.EvalInterval = 500
		cfg.LearningRate = 1e-3
		cfg.Clip = 1.0
	}
	return cfg
}

// LoadConfig applies envFile (if it exists) and the environment on top of
// the defaults for command. Variables already set in the environment win
// over the file.
func LoadConfig(command, envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	cfg := DefaultConfig(command)
	l := envLoader{}
	l.strVar("INPUT", &cfg.InputPath)
	l.strVar("CLEAN_OUTPUT", &cfg.CleanOutputPath)
	l.strVar("VOCAB", &cfg.VocabPath)
	l.strVar("TRAIN_INPUT", &cfg.TrainInputPath)
	l.strVar("OUTPUT", &cfg.OutputPath)
	l.strVar("METRICS", &cfg.MetricsPath)
	l.granularityVar("GRANULARITY", &cfg.Granularity)
	l.int64Var("SEED", &cfg.Seed)
	l.intVar("BATCH_SIZE", &cfg.BatchSize)
	l.intVar("BLOCK_SIZE", &cfg.BlockSize)
	l.intVar("MAX_ITERS", &cfg.MaxIters)
	l.intVar("EVAL_INTERVAL", &cfg.EvalInterval)
	l.intVar("EVAL_ITERS", &cfg.EvalIters)
	l.floatVar("LEARNING_RATE", &cfg.LearningRate)
	l.floatVar("CLIP", &cfg.Clip)
	l.intVar("N_EMBD", &cfg.NEmbd)
	l.intVar("N_HEAD", &cfg.NHead)
	l.intVar("GEN_TOKENS", &cfg.GenTokens)
	if l.err != nil {
		return Config{}, l.err
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Command == "clean" {
		if c.InputPath == "" || c.CleanOutputPath == "" {
			return configErrorf("paths", "input and clean output paths are required")
		}
		return nil
	}
	if c.TrainInputPath == "" || c.OutputPath == "" {
		return configErrorf("paths", "train input and output paths are required")
	}
	if err := c.trainCfg().validate(); err != nil {
		return err
	}
	if c.LearningRate <= 0 {
		return configErrorf("learning rate", "must be positive, got %g", c.LearningRate)
	}
	if c.GenTokens < 0 {
		return configErrorf("gen tokens", "must not be negative, got %d", c.GenTokens)
	}
	if c.Command == "gpt" {
		if c.NEmbd <= 0 || c.NHead <= 0 {
			return configErrorf("n_embd/n_head", "must be positive, got %d/%d", c.NEmbd, c.NHead)
		}
		if c.NEmbd%c.NHead != 0 {
			return configErrorf("n_embd", "%d is not divisible by %d heads", c.NEmbd, c.NHead)
		}
	}
	return nil
}

func (c Config) trainCfg() TrainCfg {
	return TrainCfg{
		BatchSize:    c.BatchSize,
		BlockSize:    c.BlockSize,
		MaxIters:     c.MaxIters,
		EvalInterval: c.EvalInterval,
		EvalIters:    c.EvalIters,
	}
}

// envLoader keeps the first parse error so the call sites stay flat.
type envLoader struct {
	err error
}

func (l *envLoader) lookup(key string) (string, bool) {
	if l.err != nil {
		return "", false
	}
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (l *envLoader) strVar(key string, dst *string) {
	if v, ok := l.lookup(key); ok && v != "" {
		*dst = v
	}
}

func (l *envLoader) intVar(key string, dst *int) {
	v, ok := l.lookup(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		l.err = configErrorf(envPrefix+key, "not an integer: %q", v)
		return
	}
	*dst = n
}

func (l *envLoader) int64Var(key string, dst *int64) {
	v, ok := l.lookup(key)
	if !ok {
		return
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		l.err = configErrorf(envPrefix+key, "not an integer: %q", v)
		return
	}
	*dst = n
}

func (l *envLoader) floatVar(key string, dst *float64) {
	v, ok := l.lookup(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		l.err = configErrorf(envPrefix+key, "not a number: %q", v)
		return
	}
	*dst = f
}

func (l *envLoader) granularityVar(key string, dst *Granularity) {
	v, ok := l.lookup(key)
	if !ok {
		return
	}
	g, err := ParseGranularity(v)
	if err != nil {
		l.err = err
		return
	}
	*dst = g
}
