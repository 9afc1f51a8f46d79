package rag

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"testing"

	"rag-server/config"

	"go.uber.org/zap"
)

// fakeEmbedClient returns a deterministic vector per text and records
// batch sizes.
type fakeEmbedClient struct {
	mu       sync.Mutex
	calls    int
	batches  []int
	lastText string
	fail     bool
}

func (f *fakeEmbedClient) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.batches = append(f.batches, len(texts))
	if len(texts) > 0 {
		f.lastText = texts[len(texts)-1]
	}
	f.mu.Unlock()

	if f.fail {
		return nil, fmt.Errorf("backend down")
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		// Encode the text's numeric suffix so order can be verified.
		n := 1.0
		if idx := strings.LastIndex(text, "-"); idx != -1 {
			if parsed, err := strconv.Atoi(text[idx+1:]); err == nil {
				n = float64(parsed)
			}
		}
		out[i] = []float32{float32(n), 0}
	}
	return out, nil
}

func testEmbedderConfig() *config.Config {
	return &config.Config{
		EmbeddingBatchSize:     4,
		EmbeddingMaxConcurrent: 2,
		EmbeddingCacheSize:     16,
		EmbeddingDim:           2,
		EmbeddingNormalize:     false,
	}
}

func TestEmbedDocumentsPreservesOrder(t *testing.T) {
	client := &fakeEmbedClient{}
	embedder, err := NewEmbedder(client, testEmbedderConfig(), zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	texts := make([]string, 10)
	for i := range texts {
		texts[i] = fmt.Sprintf("chunk-%d", i)
	}

	vectors, err := embedder.EmbedDocuments(context.Background(), texts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 10 {
		t.Fatalf("got %d vectors, want 10", len(vectors))
	}
	for i, v := range vectors {
		if int(v[0]) != i {
			t.Errorf("vector %d carries value %v, order not preserved", i, v[0])
		}
	}
}

func TestEmbedDocumentsBatching(t *testing.T) {
	client := &fakeEmbedClient{}
	embedder, err := NewEmbedder(client, testEmbedderConfig(), zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	texts := make([]string, 10)
	for i := range texts {
		texts[i] = fmt.Sprintf("chunk-%d", i)
	}
	if _, err := embedder.EmbedDocuments(context.Background(), texts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 10 texts at batch size 4 -> 4, 4, 2.
	if client.calls != 3 {
		t.Errorf("got %d batches, want 3", client.calls)
	}
	sum := 0
	for _, n := range client.batches {
		if n > 4 {
			t.Errorf("batch size %d exceeds configured 4", n)
		}
		sum += n
	}
	if sum != 10 {
		t.Errorf("batches cover %d texts, want 10", sum)
	}
}

func TestEmbedDocumentsPropagatesError(t *testing.T) {
	client := &fakeEmbedClient{fail: true}
	embedder, err := NewEmbedder(client, testEmbedderConfig(), zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := embedder.EmbedDocuments(context.Background(), []string{"a", "b"}); err == nil {
		t.Error("expected error from failing backend")
	}
}

func TestEmbedQueryCaches(t *testing.T) {
	client := &fakeEmbedClient{}
	embedder, err := NewEmbedder(client, testEmbedderConfig(), zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := embedder.EmbedQuery(context.Background(), "same query"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if client.calls != 1 {
		t.Errorf("got %d backend calls, want 1 with caching", client.calls)
	}
}

func TestEmbedQueryAppliesInstruction(t *testing.T) {
	client := &fakeEmbedClient{}
	cfg := testEmbedderConfig()
	cfg.EmbeddingQueryInstruction = "query: "
	embedder, err := NewEmbedder(client, cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := embedder.EmbedQuery(context.Background(), "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.lastText != "query: hello" {
		t.Errorf("backend saw %q, want instruction prefix applied", client.lastText)
	}
	if !embedder.cache.Contains("hello") {
		t.Error("cache should be keyed by the raw query, not the prefixed text")
	}
}

func TestL2Normalize(t *testing.T) {
	v := l2Normalize([]float32{3, 4})

	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if math.Abs(sum-1.0) > 1e-6 {
		t.Errorf("norm^2 = %v, want 1", sum)
	}

	zero := l2Normalize([]float32{0, 0})
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("zero vector changed: %v", zero)
	}
}
