package main

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownSymbol = errors.New("unknown symbol")
	ErrUnknownID     = errors.New("unknown token id")
	ErrSplitTooShort = errors.New("split too short for block size")
	ErrConfig        = errors.New("invalid configuration")
)

// UnknownSymbolError reports a symbol that was not seen when the vocabulary
// was built.
type UnknownSymbolError struct {
	Symbol string
}

func (e *UnknownSymbolError) Error() string {
	return fmt.Sprintf("unknown symbol %q", e.Symbol)
}

func (e *UnknownSymbolError) Is(target error) bool {
	return target == ErrUnknownSymbol
}

// ConfigError is returned when a hyperparameter or setting is rejected
// before any computation starts.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

func configErrorf(field, format string, args ...any) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
