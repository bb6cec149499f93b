package main

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Removed before the allow-list is applied; both are letters and would
// otherwise survive it.
var deniedChars = []string{"é", "ô"}

var disallowed = regexp.MustCompile(`[^\p{L}\p{Nd}\s,'"!?:;\-()\[\]{}.]`)

var denyReplacer = func() *strings.Replacer {
	pairs := make([]string, 0, 2*len(deniedChars))
	for _, c := range deniedChars {
		pairs = append(pairs, c, "")
	}
	return strings.NewReplacer(pairs...)
}()

type CleanStats struct {
	CharsBefore int
	CharsAfter  int
}

// Clean strips the denied characters and then everything outside the
// allow-list: letters, digits, whitespace and ,'"!?:;-()[]{}.
func Clean(text string) string {
	text = denyReplacer.Replace(text)
	return disallowed.ReplaceAllString(text, "")
}

// CleanFile reads src, cleans it and writes the result to dst. Nothing is
// written if src cannot be read.
func CleanFile(src, dst string) (CleanStats, string, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return CleanStats{}, "", fmt.Errorf("reading corpus: %w", err)
	}

	raw := string(data)
	cleaned := Clean(raw)
	stats := CleanStats{
		CharsBefore: utf8.RuneCountInString(raw),
		CharsAfter:  utf8.RuneCountInString(cleaned),
	}

	if err := os.WriteFile(dst, []byte(cleaned), 0o644); err != nil {
		return stats, "", fmt.Errorf("writing cleaned corpus: %w", err)
	}
	return stats, cleaned, nil
}

func loadCorpus(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading corpus: %w", err)
	}
	return string(data), nil
}
