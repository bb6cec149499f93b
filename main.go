package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
)

const previewChars = 500

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1], os.Stdout)
	stop()
	if err != nil {
		if errors.Is(err, errUsage) {
			printUsage(os.Stderr)
			os.Exit(2)
		}
		slog.Error("tinylm failed", slog.String("command", os.Args[1]), slog.Any("err", err))
		os.Exit(1)
	}
}

var errUsage = errors.New("unknown command")

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "tinylm - toy language models on a text corpus")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  tinylm clean    Clean the raw corpus and build its character vocabulary")
	fmt.Fprintln(w, "  tinylm bigram   Train the bigram model and sample from it")
	fmt.Fprintln(w, "  tinylm gpt      Train the single-block transformer and sample from it")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Paths and hyperparameters are read from TINYLM_* variables or .env.")
}

func run(ctx context.Context, command string, w io.Writer) error {
	switch command {
	case "clean", "bigram", "gpt":
	default:
		return fmt.Errorf("%w %q", errUsage, command)
	}

	cfg, err := LoadConfig(command, ".env")
	if err != nil {
		return err
	}
	if command == "clean" {
		return runClean(cfg, w)
	}
	return runTrain(ctx, cfg, w)
}

func runClean(cfg Config, w io.Writer) error {
	fmt.Fprintln(w, titleStyle.Render("tinylm clean"))

	stats, cleaned, err := CleanFile(cfg.InputPath, cfg.CleanOutputPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s %d\n", labelStyle.Render("characters before:"), stats.CharsBefore)
	fmt.Fprintf(w, "%s %d\n", labelStyle.Render("characters after: "), stats.CharsAfter)
	fmt.Fprintf(w, "cleaned text written to %s\n", cfg.CleanOutputPath)

	vocab := BuildVocab(cleaned, Char)
	fmt.Fprintf(w, "%s %d\n", labelStyle.Render("vocabulary size:"), vocab.Size())
	fmt.Fprintf(w, "%q\n", strings.Join(vocab.Symbols(), ""))
	if cfg.VocabPath != "" {
		if err := vocab.Save(cfg.VocabPath); err != nil {
			return fmt.Errorf("saving vocab: %w", err)
		}
		fmt.Fprintf(w, "vocabulary written to %s\n", cfg.VocabPath)
	}
	return nil
}

func runTrain(ctx context.Context, cfg Config, w io.Writer) error {
	fmt.Fprintln(w, titleStyle.Render("tinylm "+cfg.Command))

	text, err := loadCorpus(cfg.TrainInputPath)
	if err != nil {
		return err
	}
	vocab := BuildVocab(text, cfg.Granularity)
	ids, err := vocab.Encode(text)
	if err != nil {
		return err
	}
	data, err := SplitDataset(ids, trainFraction)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s %d (%s)\n", labelStyle.Render("vocabulary size:"), vocab.Size(), cfg.Granularity)
	fmt.Fprintf(w, "%s %d train / %d val tokens\n", labelStyle.Render("dataset:"), len(data.Train()), len(data.Val()))

	rng := rand.New(rand.NewSource(cfg.Seed))
	model, err := newModel(cfg, vocab.Size(), rng)
	if err != nil {
		return err
	}
	if g, ok := model.(*GPT); ok {
		fmt.Fprintf(w, "%s %d\n", labelStyle.Render("parameters:"), g.NumParams())
	}

	session, err := NewSession(model, data, cfg.trainCfg(), rng, w)
	if err != nil {
		model.Close()
		return err
	}
	defer session.Close()

	history, err := session.Run(ctx)
	if err != nil {
		return err
	}

	generated, err := session.Generate([]int{0}, cfg.GenTokens)
	if err != nil {
		return err
	}
	out, err := vocab.Decode(generated)
	if err != nil {
		return err
	}
	if err := os.WriteFile(cfg.OutputPath, []byte(out), 0o644); err != nil {
		return fmt.Errorf("writing generated text: %w", err)
	}
	fmt.Fprintf(w, "generated text written to %s\n", cfg.OutputPath)

	if cfg.MetricsPath != "" {
		if err := newMetrics(cfg.Command, cfg, vocab.Size(), history).Save(cfg.MetricsPath); err != nil {
			return fmt.Errorf("saving metrics: %w", err)
		}
	}

	fmt.Fprintln(w, titleStyle.Render("sample"))
	fmt.Fprintln(w, preview(out, previewChars))
	return nil
}

func newModel(cfg Config, vocabSize int, rng *rand.Rand) (LanguageModel, error) {
	switch cfg.Command {
	case "bigram":
		return NewBigramModel(BigramConfig{
			VocabSize: vocabSize,
			BlockSize: cfg.BlockSize,
			BatchSize: cfg.BatchSize,
			LR:        cfg.LearningRate,
		}, rng)
	case "gpt":
		return NewGPT(GPTConfig{
			VocabSize: vocabSize,
			BlockSize: cfg.BlockSize,
			NEmbd:     cfg.NEmbd,
			NHead:     cfg.NHead,
			LR:        cfg.LearningRate,
			Clip:      cfg.Clip,
		}, rng)
	}
	return nil, fmt.Errorf("%w %q", errUsage, cfg.Command)
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
