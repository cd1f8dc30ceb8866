// Package openai implements EmbeddingProvider against the OpenAI API and
// any OpenAI-compatible endpoint.
package openai

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/sashabaranov/go-openai"

	"github.com/codechisel/codechisel/pkg/provider"
)

// Default values
const (
	DefaultModel      = string(openai.SmallEmbedding3)
	DefaultBatchSize  = 100
	DefaultDimensions = 1536
)

// Dimensions for known models. Unknown models fall back to the default and
// correct themselves from the first response.
var modelDimensions = map[string]int{
	"text-embedding-ada-002": 1536,
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	// Models commonly served behind OpenAI-compatible APIs
	"nomic-embed-text": 768,
	"nomic-embed-code": 3584,
	"voyage-code-2":    1536,
}

// Config contains OpenAI provider configuration.
type Config struct {
	Model      string
	APIKey     string // If empty, uses OPENAI_API_KEY env var
	Endpoint   string // Optional custom API endpoint (Azure, LiteLLM, vLLM)
	BatchSize  int
	Dimensions int // 0 uses the known dimension for the model
}

// Provider implements EmbeddingProvider for OpenAI.
type Provider struct {
	config Config
	client *openai.Client

	mu         sync.RWMutex
	dimensions int
}

var _ provider.EmbeddingProvider = (*Provider)(nil)

// New creates a new OpenAI embedding provider.
func New(cfg Config) *Provider {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultBatchSize
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if cfg.Endpoint != "" {
		clientConfig.BaseURL = cfg.Endpoint
	}

	dimensions := cfg.Dimensions
	if dimensions == 0 {
		if d, ok := modelDimensions[cfg.Model]; ok {
			dimensions = d
		} else {
			dimensions = DefaultDimensions
		}
	}

	return &Provider{
		config:     cfg,
		client:     openai.NewClientWithConfig(clientConfig),
		dimensions: dimensions,
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "openai"
}

// Embed generates embeddings for the given texts, batching requests per the
// configured batch size. Results keep input order.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))

	for i := 0; i < len(texts); i += p.config.BatchSize {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		end := i + p.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}

		req := openai.EmbeddingRequest{
			Input: texts[i:end],
			Model: openai.EmbeddingModel(p.config.Model),
		}
		resp, err := p.client.CreateEmbeddings(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("openai embedding failed: %w", err)
		}
		if len(resp.Data) != end-i {
			return nil, fmt.Errorf("openai returned %d embeddings for %d inputs", len(resp.Data), end-i)
		}

		for j, data := range resp.Data {
			results[i+j] = data.Embedding
		}
		p.observeDimensions(len(resp.Data[0].Embedding))
	}

	return results, nil
}

// observeDimensions corrects the advertised width when the endpoint serves
// a model the dimension table does not know.
func (p *Provider) observeDimensions(d int) {
	if d == 0 {
		return
	}
	p.mu.Lock()
	if p.config.Dimensions == 0 && p.dimensions != d {
		p.dimensions = d
	}
	p.mu.Unlock()
}

// Dimensions returns the embedding vector width.
func (p *Provider) Dimensions() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dimensions
}

// MaxBatchSize returns the maximum batch size.
func (p *Provider) MaxBatchSize() int {
	return p.config.BatchSize
}

// Warmup verifies the API is reachable with the configured credentials.
func (p *Provider) Warmup(ctx context.Context) error {
	if p.config.APIKey == "" && os.Getenv("OPENAI_API_KEY") == "" && p.config.Endpoint == "" {
		return fmt.Errorf("OPENAI_API_KEY not set")
	}
	if _, err := p.Embed(ctx, []string{"warmup"}); err != nil {
		return fmt.Errorf("openai API not accessible: %w", err)
	}
	return nil
}

// Close releases resources.
func (p *Provider) Close() error {
	return nil
}
