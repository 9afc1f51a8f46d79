package rag

import (
	"context"
	"strings"
	"unicode"

	"rag-server/config"
	"rag-server/database"
	apperrors "rag-server/errors"
	"rag-server/web/types"

	"go.uber.org/zap"
)

// Searcher retrieves relevant chunks for a query, fusing vector and
// keyword relevance.
type Searcher struct {
	store    *database.Store
	embedder *Embedder
	cfg      *config.Config
	logger   *zap.Logger
}

func NewSearcher(store *database.Store, embedder *Embedder, cfg *config.Config, logger *zap.Logger) *Searcher {
	return &Searcher{store: store, embedder: embedder, cfg: cfg, logger: logger}
}

// Search embeds the query and runs hybrid retrieval scoped to the user.
// Queries with no keyword signal fall back to pure vector search.
func (s *Searcher) Search(ctx context.Context, userID, query string, topK int) ([]types.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.WrapError(apperrors.ErrInvalidInput, "query is empty")
	}
	if topK <= 0 {
		topK = s.cfg.TopK
	}

	queryVec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	if !hasKeywordSignal(query) {
		return s.store.VectorSearchOnly(ctx, queryVec, userID, topK)
	}

	results, err := s.store.HybridSearch(ctx, queryVec, query, userID, topK,
		s.cfg.VectorWeight, s.cfg.KeywordWeight)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("hybrid search",
		zap.String("user_id", userID),
		zap.Int("top_k", topK),
		zap.Int("results", len(results)))
	return results, nil
}

// hasKeywordSignal reports whether the query contains anything tsquery
// can work with.
func hasKeywordSignal(query string) bool {
	for _, r := range query {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
