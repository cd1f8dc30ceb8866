// Package ollama implements Reranker on top of Ollama's generate API,
// prompting a scoring model to rate each candidate against the query.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/codechisel/codechisel/pkg/provider"
)

// Default values
const (
	DefaultModel      = "qwen3-reranker"
	DefaultEndpoint   = "http://localhost:11434"
	DefaultMaxDocs    = 100
	DefaultCandidates = 100

	// neutralScore stands in for candidates whose score the model did not
	// produce in parseable form.
	neutralScore = 0.5
)

// Config contains Ollama reranker configuration.
type Config struct {
	Model      string
	Endpoint   string
	MaxDocs    int // Maximum documents per rerank call
	Candidates int // Number of candidates to consider
}

// Reranker implements reranking through an Ollama-served scoring model.
type Reranker struct {
	config Config
	client *http.Client
}

var _ provider.Reranker = (*Reranker)(nil)

// New creates a new Ollama reranker.
func New(cfg Config) *Reranker {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.MaxDocs == 0 {
		cfg.MaxDocs = DefaultMaxDocs
	}
	if cfg.Candidates == 0 {
		cfg.Candidates = DefaultCandidates
	}

	return &Reranker{
		config: cfg,
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

// Name returns the reranker name.
func (r *Reranker) Name() string {
	return "ollama"
}

// Rerank scores documents against the query and returns them sorted by
// score, highest first. Documents beyond MaxDocs are dropped from the
// result set.
func (r *Reranker) Rerank(ctx context.Context, query string, documents []string) ([]provider.RerankResult, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	docs := documents
	if len(docs) > r.config.MaxDocs {
		docs = docs[:r.config.MaxDocs]
	}

	reqBody := map[string]any{
		"model":  r.config.Model,
		"prompt": buildRerankPrompt(query, docs),
		"stream": false,
		"options": map[string]any{
			"temperature": 0,
			"num_predict": len(docs) * 20,
		},
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.config.Endpoint+"/api/generate", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	scores := parseScores(result.Response, len(docs))

	results := make([]provider.RerankResult, len(scores))
	for i, score := range scores {
		results[i] = provider.RerankResult{Index: i, Score: score}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results, nil
}

// buildRerankPrompt asks the model for one score per line, in input order.
func buildRerankPrompt(query string, documents []string) string {
	var buf bytes.Buffer

	buf.WriteString("Rate the relevance of each document to the query on a scale of 0.0 to 1.0.\n")
	buf.WriteString("Output only the scores in order, one per line, as decimal numbers.\n\n")
	fmt.Fprintf(&buf, "Query: %s\n\n", query)
	buf.WriteString("Documents:\n")

	for i, doc := range documents {
		content := doc
		if len(content) > 1000 {
			content = content[:1000] + "..."
		}
		fmt.Fprintf(&buf, "[%d] %s\n\n", i+1, content)
	}

	buf.WriteString("Relevance scores (0.0 to 1.0, one per line):\n")
	return buf.String()
}

var decimalPattern = regexp.MustCompile(`\d*\.\d+`)

// parseScores reads one score per response line, in document order. A line
// counts when it carries a decimal in [0,1], or is a bare 0 or 1; anything
// else leaves the neutral score in place, so a confused model degrades to
// the original ordering instead of scrambling it.
func parseScores(response string, numDocs int) []float32 {
	scores := make([]float32, numDocs)
	for i := range scores {
		scores[i] = neutralScore
	}

	doc := 0
	for _, line := range strings.Split(response, "\n") {
		if doc >= numDocs {
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		match := decimalPattern.FindString(line)
		if match == "" {
			if line != "0" && line != "1" {
				continue
			}
			match = line
		}
		score, err := strconv.ParseFloat(match, 32)
		if err != nil || score < 0 || score > 1 {
			continue
		}
		scores[doc] = float32(score)
		doc++
	}
	return scores
}

// MaxDocuments returns the maximum documents for reranking.
func (r *Reranker) MaxDocuments() int {
	return r.config.MaxDocs
}

// Warmup checks the model exists, then runs a minimal rerank to load it.
func (r *Reranker) Warmup(ctx context.Context) error {
	if err := r.checkModel(ctx); err != nil {
		return err
	}
	_, err := r.Rerank(ctx, "warmup", []string{"warmup document"})
	return err
}

// checkModel verifies the model exists on the server.
func (r *Reranker) checkModel(ctx context.Context) error {
	reqBody := map[string]any{"name": r.config.Model}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.config.Endpoint+"/api/show", bytes.NewReader(jsonBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama not available at %s: %w", r.config.Endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("model %s not found, run: ollama pull %s", r.config.Model, r.config.Model)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ollama show failed: %s", string(body))
	}
	return nil
}

// Close releases resources.
func (r *Reranker) Close() error {
	return nil
}
