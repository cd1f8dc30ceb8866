// Package none implements a passthrough Reranker that keeps the original
// candidate order.
package none

import (
	"context"

	"github.com/codechisel/codechisel/pkg/provider"
)

// Reranker passes candidates through unchanged.
type Reranker struct{}

var _ provider.Reranker = (*Reranker)(nil)

// New creates a new passthrough reranker.
func New() *Reranker {
	return &Reranker{}
}

// Name returns the reranker name.
func (r *Reranker) Name() string {
	return "none"
}

// Rerank returns the documents in their original order, with scores
// decreasing by position so downstream sorting is stable.
func (r *Reranker) Rerank(ctx context.Context, query string, documents []string) ([]provider.RerankResult, error) {
	results := make([]provider.RerankResult, len(documents))
	for i := range documents {
		results[i] = provider.RerankResult{
			Index: i,
			Score: float32(len(documents)-i) / float32(len(documents)),
		}
	}
	return results, nil
}

// MaxDocuments returns a large number; passthrough has no real limit.
func (r *Reranker) MaxDocuments() int {
	return 10000
}

// Warmup does nothing.
func (r *Reranker) Warmup(ctx context.Context) error {
	return nil
}

// Close does nothing.
func (r *Reranker) Close() error {
	return nil
}
