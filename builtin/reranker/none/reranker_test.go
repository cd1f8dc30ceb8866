package none

import (
	"context"
	"testing"
)

func TestRerankPreservesOrder(t *testing.T) {
	r := New()
	results, err := r.Rerank(context.Background(), "anything", []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for i, res := range results {
		if res.Index != i {
			t.Errorf("results[%d].Index = %d, want %d", i, res.Index, i)
		}
		if i > 0 && results[i].Score >= results[i-1].Score {
			t.Errorf("scores not strictly decreasing at %d: %v then %v",
				i, results[i-1].Score, results[i].Score)
		}
	}
}
