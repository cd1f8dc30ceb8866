// Package simple implements a plain line-based chunking strategy, used as
// a fallback when tree-sitter is unavailable or a language has no grammar.
package simple

import (
	"github.com/codechisel/codechisel/pkg/chunk"
	"github.com/codechisel/codechisel/pkg/provider"
	"github.com/codechisel/codechisel/pkg/types"
)

// Config contains configuration for simple chunking.
type Config struct {
	Limits chunk.Limits
}

// Chunker implements line-based chunking for any text input. It needs no
// parser, so every file goes through the engine's line accumulator.
type Chunker struct {
	engine *chunk.Engine
}

var _ provider.ChunkingStrategy = (*Chunker)(nil)

// New creates a simple chunker. Zero limits fields fall back to the engine
// defaults.
func New(cfg Config) *Chunker {
	return &Chunker{engine: chunk.New(chunk.Config{Limits: cfg.Limits})}
}

// Name returns the strategy name.
func (c *Chunker) Name() string {
	return "simple"
}

// Chunk splits a file into size-bounded line runs.
func (c *Chunker) Chunk(file *types.SourceFile) ([]*types.CodeBlock, error) {
	f := chunk.File{
		Path:     file.Path,
		Content:  string(file.Content),
		Hash:     file.Hash,
		Language: file.Language,
	}
	if f.Hash == "" {
		f.Hash = file.ComputeHash()
	}
	return c.engine.ChunkText(f), nil
}

// SupportedLanguages returns an empty list; simple chunking is
// language-agnostic.
func (c *Chunker) SupportedLanguages() []string {
	return nil
}

// SupportsLanguage returns true for any language.
func (c *Chunker) SupportsLanguage(lang string) bool {
	return true
}

// Close releases resources.
func (c *Chunker) Close() error {
	return nil
}
