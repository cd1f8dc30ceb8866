// Package builtin registers all built-in providers with the default registry.
package builtin

import (
	simpleChunker "github.com/codechisel/codechisel/builtin/chunking/simple"
	tsChunker "github.com/codechisel/codechisel/builtin/chunking/treesitter"
	ollamaEmbed "github.com/codechisel/codechisel/builtin/embedding/ollama"
	openaiEmbed "github.com/codechisel/codechisel/builtin/embedding/openai"
	"github.com/codechisel/codechisel/builtin/reranker/none"
	ollamaRerank "github.com/codechisel/codechisel/builtin/reranker/ollama"
	"github.com/codechisel/codechisel/builtin/vectorstore/sqlitevec"
	"github.com/codechisel/codechisel/pkg/provider"
)

func init() {
	// Register embedding providers
	provider.RegisterEmbedding("ollama", func(cfg provider.EmbeddingConfig) (provider.EmbeddingProvider, error) {
		return ollamaEmbed.New(ollamaEmbed.Config{
			Endpoint:  cfg.Endpoint,
			Model:     cfg.Model,
			BatchSize: cfg.BatchSize,
		}), nil
	})

	provider.RegisterEmbedding("openai", func(cfg provider.EmbeddingConfig) (provider.EmbeddingProvider, error) {
		return openaiEmbed.New(openaiEmbed.Config{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			Endpoint:  cfg.Endpoint,
			BatchSize: cfg.BatchSize,
		}), nil
	})

	// Register rerankers
	provider.RegisterReranker("ollama", func(cfg provider.RerankerConfig) (provider.Reranker, error) {
		return ollamaRerank.New(ollamaRerank.Config{
			Endpoint:   cfg.Endpoint,
			Model:      cfg.Model,
			Candidates: cfg.Candidates,
		}), nil
	})

	provider.RegisterReranker("none", func(cfg provider.RerankerConfig) (provider.Reranker, error) {
		return none.New(), nil
	})

	// Register chunking strategies
	provider.RegisterChunking("treesitter", func(cfg provider.ChunkingConfig) (provider.ChunkingStrategy, error) {
		return tsChunker.New(tsChunker.Config{
			Limits:   cfg.Limits,
			Enricher: cfg.Enricher,
		}), nil
	})

	provider.RegisterChunking("simple", func(cfg provider.ChunkingConfig) (provider.ChunkingStrategy, error) {
		return simpleChunker.New(simpleChunker.Config{
			Limits: cfg.Limits,
		}), nil
	})

	// Register vector stores
	provider.RegisterVectorStore("sqlitevec", func() (provider.VectorStore, error) {
		return sqlitevec.New(), nil
	})
}
