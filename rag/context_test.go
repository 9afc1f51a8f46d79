package rag

import (
	"fmt"
	"strings"
	"testing"

	"rag-server/web/types"

	"github.com/google/uuid"
)

func result(score float64, content string) types.SearchResult {
	return types.SearchResult{
		ChunkID:         uuid.New(),
		DocumentID:      uuid.New(),
		Content:         content,
		SimilarityScore: score,
	}
}

func TestBuildContextOrdersByScore(t *testing.T) {
	results := []types.SearchResult{
		result(0.5, "middle"),
		result(0.9, "best"),
		result(0.1, "worst"),
	}

	opt := BuildContext(results, 1000)

	if len(opt.Sources) != 3 {
		t.Fatalf("got %d sources, want 3", len(opt.Sources))
	}
	if opt.Sources[0].Content != "best" || opt.Sources[2].Content != "worst" {
		t.Errorf("sources not sorted by score: %v", opt.Sources)
	}
	bestIdx := strings.Index(opt.Text, "best")
	worstIdx := strings.Index(opt.Text, "worst")
	if bestIdx == -1 || worstIdx == -1 || bestIdx > worstIdx {
		t.Errorf("context text not in score order:\n%s", opt.Text)
	}
}

func TestBuildContextHeaderFormat(t *testing.T) {
	r := result(0.8765, "some chunk")
	opt := BuildContext([]types.SearchResult{r}, 1000)

	want := fmt.Sprintf("[Source 1 | Score: 0.877 | Doc: %s]\nsome chunk", r.DocumentID)
	if opt.Text != want {
		t.Errorf("got %q, want %q", opt.Text, want)
	}
}

func TestBuildContextTokenBudget(t *testing.T) {
	big := strings.Repeat("word ", 200) // ~250 estimated tokens per entry
	results := []types.SearchResult{
		result(0.9, big),
		result(0.8, big),
		result(0.7, big),
	}

	opt := BuildContext(results, 300)

	if len(opt.Sources) != 1 {
		t.Errorf("got %d sources, want 1 within the budget", len(opt.Sources))
	}
}

func TestBuildContextAlwaysIncludesBest(t *testing.T) {
	// Even when the best result alone exceeds the budget it is included,
	// so the model never sees an empty knowledge base with results present.
	opt := BuildContext([]types.SearchResult{result(0.9, strings.Repeat("x", 4000))}, 10)

	if len(opt.Sources) != 1 {
		t.Errorf("got %d sources, want 1", len(opt.Sources))
	}
}

func TestBuildContextAvgSimilarity(t *testing.T) {
	opt := BuildContext([]types.SearchResult{result(0.8, "a"), result(0.6, "b")}, 1000)

	if opt.AvgSimilarity < 0.699 || opt.AvgSimilarity > 0.701 {
		t.Errorf("avg similarity = %v, want 0.7", opt.AvgSimilarity)
	}
}

func TestBuildContextEmpty(t *testing.T) {
	opt := BuildContext(nil, 1000)
	if opt.Text != "" || len(opt.Sources) != 0 {
		t.Errorf("got %+v, want empty context", opt)
	}
}
