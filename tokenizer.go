package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

type Granularity int

const (
	Char Granularity = iota
	Word
)

func (g Granularity) String() string {
	switch g {
	case Char:
		return "char"
	case Word:
		return "word"
	default:
		return fmt.Sprintf("Granularity(%d)", int(g))
	}
}

func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "char", "character":
		return Char, nil
	case "word":
		return Word, nil
	}
	return 0, configErrorf("granularity", "unknown value %q (want char or word)", s)
}

// Vocab maps the distinct symbols of a corpus to ids in sorted order.
type Vocab struct {
	granularity Granularity
	toID        map[string]int
	toSymbol    []string
}

// BuildVocab collects the distinct runes (Char) or whitespace separated
// words (Word) of text.
func BuildVocab(text string, g Granularity) *Vocab {
	seen := make(map[string]struct{})
	for _, s := range split(text, g) {
		seen[s] = struct{}{}
	}

	symbols := make([]string, 0, len(seen))
	for s := range seen {
		symbols = append(symbols, s)
	}
	// Single-rune strings sort by code point under byte order, so one
	// comparison covers both granularities.
	sort.Strings(symbols)
	return newVocab(g, symbols)
}

func newVocab(g Granularity, symbols []string) *Vocab {
	toID := make(map[string]int, len(symbols))
	for i, s := range symbols {
		toID[s] = i
	}
	return &Vocab{granularity: g, toID: toID, toSymbol: symbols}
}

func split(text string, g Granularity) []string {
	if g == Word {
		return strings.Fields(text)
	}
	out := make([]string, 0, len(text))
	for _, r := range text {
		out = append(out, string(r))
	}
	return out
}

func (v *Vocab) Size() int { return len(v.toSymbol) }

func (v *Vocab) Granularity() Granularity { return v.granularity }

// Symbols returns the vocabulary in id order.
func (v *Vocab) Symbols() []string {
	return append([]string(nil), v.toSymbol...)
}

// Encode converts text to token ids. It fails on the first symbol that is
// not in the vocabulary.
func (v *Vocab) Encode(text string) ([]int, error) {
	symbols := split(text, v.granularity)
	ids := make([]int, len(symbols))
	for i, s := range symbols {
		id, ok := v.toID[s]
		if !ok {
			return nil, &UnknownSymbolError{Symbol: s}
		}
		ids[i] = id
	}
	return ids, nil
}

// Decode converts ids back to text. Words are joined with a single space.
func (v *Vocab) Decode(ids []int) (string, error) {
	var sb strings.Builder
	for i, id := range ids {
		if id < 0 || id >= len(v.toSymbol) {
			return "", fmt.Errorf("decoding id %d: %w", id, ErrUnknownID)
		}
		if v.granularity == Word && i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(v.toSymbol[id])
	}
	return sb.String(), nil
}

type vocabFile struct {
	Granularity string   `json:"granularity"`
	Symbols     []string `json:"symbols"`
	Size        int      `json:"size"`
}

func (v *Vocab) Save(path string) error {
	return saveJSON(path, vocabFile{
		Granularity: v.granularity.String(),
		Symbols:     v.toSymbol,
		Size:        len(v.toSymbol),
	})
}

func LoadVocab(path string) (*Vocab, error) {
	var vf vocabFile
	if err := loadJSON(path, &vf); err != nil {
		return nil, fmt.Errorf("loading vocab: %w", err)
	}
	g, err := ParseGranularity(vf.Granularity)
	if err != nil {
		return nil, err
	}
	if vf.Size != len(vf.Symbols) {
		return nil, fmt.Errorf("vocab %s: size %d does not match %d symbols", path, vf.Size, len(vf.Symbols))
	}
	return newVocab(g, vf.Symbols), nil
}

func saveJSON(path string, data any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func loadJSON(path string, data any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return json.NewDecoder(f).Decode(data)
}
