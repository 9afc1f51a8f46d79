package database

import (
	"context"

	apperrors "rag-server/errors"
	"rag-server/web/types"

	"github.com/pgvector/pgvector-go"
)

// HybridSearch fuses vector similarity with keyword relevance via the
// hybrid_search SQL function and returns ranked chunk matches.
func (s *Store) HybridSearch(ctx context.Context, queryVec []float32, queryText, userID string, topK int, vectorWeight, keywordWeight float64) ([]types.SearchResult, error) {
	query := `SELECT chunk_id, document_id, content, similarity_score, rank
		FROM hybrid_search($1, $2, $3, $4, $5, $6)`

	rows, err := s.pool.Query(ctx, query,
		pgvector.NewVector(queryVec), queryText, userID, topK, vectorWeight, keywordWeight)
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
	}
	defer rows.Close()

	var results []types.SearchResult
	for rows.Next() {
		var r types.SearchResult
		if err := rows.Scan(&r.ChunkID, &r.DocumentID, &r.Content, &r.SimilarityScore, &r.Rank); err != nil {
			return nil, apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// VectorSearchOnly ranks chunks by cosine similarity alone. Used when the
// query has no usable keyword signal.
func (s *Store) VectorSearchOnly(ctx context.Context, queryVec []float32, userID string, topK int) ([]types.SearchResult, error) {
	query := `
		SELECT dc.id, dc.document_id, dc.content, 1 - (dc.embedding <=> $1) AS similarity
		FROM document_chunks dc
		JOIN documents d ON d.id = dc.document_id
		WHERE (d.user_id = $2 OR d.is_global) AND dc.embedding IS NOT NULL
		ORDER BY dc.embedding <=> $1 ASC, dc.id ASC
		LIMIT $3
	`
	rows, err := s.pool.Query(ctx, query, pgvector.NewVector(queryVec), userID, topK)
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
	}
	defer rows.Close()

	var results []types.SearchResult
	rank := 0
	for rows.Next() {
		var r types.SearchResult
		if err := rows.Scan(&r.ChunkID, &r.DocumentID, &r.Content, &r.SimilarityScore); err != nil {
			return nil, apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
		}
		rank++
		r.Rank = rank
		results = append(results, r)
	}
	return results, rows.Err()
}
