package rag

import (
	"context"
	"fmt"
	"math"
	"sync"

	"rag-server/config"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
)

// EmbedClient is the slice of the LLM client the embedder needs.
type EmbedClient interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Embedder batches document texts through the embedding backend and caches
// query vectors. Results always come back in input order.
type Embedder struct {
	client        EmbedClient
	cache         *lru.Cache
	batchSize     int
	maxConcurrent int
	dim           int
	instruction   string
	normalize     bool
	logger        *zap.Logger
}

func NewEmbedder(client EmbedClient, cfg *config.Config, logger *zap.Logger) (*Embedder, error) {
	cache, err := lru.New(cfg.EmbeddingCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &Embedder{
		client:        client,
		cache:         cache,
		batchSize:     cfg.EmbeddingBatchSize,
		maxConcurrent: cfg.EmbeddingMaxConcurrent,
		dim:           cfg.EmbeddingDim,
		instruction:   cfg.EmbeddingQueryInstruction,
		normalize:     cfg.EmbeddingNormalize,
		logger:        logger,
	}, nil
}

// EmbedDocuments embeds texts in micro-batches, running up to
// maxConcurrent batches in parallel and stitching results back in order.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	batchSize := e.batchSize
	if batchSize <= 0 {
		batchSize = 32
	}
	type batch struct {
		start int
		texts []string
	}
	var batches []batch
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		batches = append(batches, batch{start: start, texts: texts[start:end]})
	}

	results := make([][]float32, len(texts))
	sem := make(chan struct{}, max(e.maxConcurrent, 1))
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, b := range batches {
		wg.Add(1)
		go func(b batch) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			mu.Lock()
			failed := firstErr != nil
			mu.Unlock()
			if failed {
				return
			}

			vectors, err := e.client.EmbedBatch(ctx, b.texts)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			for i, v := range vectors {
				if e.normalize {
					v = l2Normalize(v)
				}
				results[b.start+i] = v
			}
		}(b)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	for i, v := range results {
		if v == nil {
			return nil, fmt.Errorf("embedding backend returned no vector for text %d", i)
		}
	}
	return results, nil
}

// EmbedQuery embeds a single query, applying the configured instruction
// prefix and consulting the cache first. The cache is keyed by the raw
// query text.
func (e *Embedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if cached, ok := e.cache.Get(query); ok {
		return cached.([]float32), nil
	}

	text := query
	if e.instruction != "" {
		text = e.instruction + query
	}

	vectors, err := e.client.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedding backend returned %d vectors for one query", len(vectors))
	}

	v := vectors[0]
	if e.normalize {
		v = l2Normalize(v)
	}
	e.cache.Add(query, v)
	return v, nil
}

// Dim reports the configured embedding dimensionality.
func (e *Embedder) Dim() int {
	return e.dim
}

func l2Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
