package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "rag-server/errors"
	"rag-server/web/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

// CreateDocument inserts a document row.
func (s *Store) CreateDocument(ctx context.Context, doc *types.Document) error {
	metadata, err := json.Marshal(orEmptyMap(doc.Metadata))
	if err != nil {
		return fmt.Errorf("marshal document metadata: %w", err)
	}

	query := `
		INSERT INTO documents (id, user_id, title, content, type, source_url, metadata, is_global, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, NOW(), NOW())
	`
	if _, err := s.pool.Exec(ctx, query,
		doc.ID, doc.UserID, doc.Title, doc.Content, string(doc.Type),
		doc.SourceURL, metadata, doc.IsGlobal); err != nil {
		return apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
	}
	return nil
}

// InsertChunks writes all chunks of one document inside a transaction.
// Embeddings are written later by UpdateChunkEmbeddings.
func (s *Store) InsertChunks(ctx context.Context, chunks []types.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO document_chunks (id, document_id, chunk_index, content, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`
	for _, chunk := range chunks {
		metadata, err := json.Marshal(orEmptyMap(chunk.Metadata))
		if err != nil {
			return fmt.Errorf("marshal chunk metadata: %w", err)
		}
		if _, err := tx.Exec(ctx, query,
			chunk.ID, chunk.DocumentID, chunk.ChunkIndex, chunk.Content, metadata); err != nil {
			return apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
		}
	}
	return tx.Commit(ctx)
}

// UpdateChunkEmbeddings writes vectors back to previously inserted chunks.
// ids and vectors are parallel slices.
func (s *Store) UpdateChunkEmbeddings(ctx context.Context, ids []uuid.UUID, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("id count %d does not match vector count %d", len(ids), len(vectors))
	}
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
	}
	defer tx.Rollback(ctx)

	for i, id := range ids {
		if _, err := tx.Exec(ctx,
			`UPDATE document_chunks SET embedding = $1 WHERE id = $2`,
			pgvector.NewVector(vectors[i]), id); err != nil {
			return apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
		}
	}
	return tx.Commit(ctx)
}

// GetDocument returns a document owned by userID.
func (s *Store) GetDocument(ctx context.Context, id uuid.UUID, userID string) (*types.Document, error) {
	query := `
		SELECT id, user_id, title, content, type, COALESCE(source_url, ''), metadata, is_global, created_at, updated_at
		FROM documents WHERE id = $1
	`
	var doc types.Document
	var docType string
	var metadata []byte
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&doc.ID, &doc.UserID, &doc.Title, &doc.Content, &docType,
		&doc.SourceURL, &metadata, &doc.IsGlobal, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.WrapErrorf(apperrors.ErrNotFound, "document %s", id)
	}
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
	}

	if doc.UserID != userID && !doc.IsGlobal {
		return nil, apperrors.WrapErrorf(apperrors.ErrUnauthorized, "document %s", id)
	}

	doc.Type = types.DocumentType(docType)
	if err := json.Unmarshal(metadata, &doc.Metadata); err != nil {
		doc.Metadata = map[string]string{}
	}
	return &doc, nil
}

// DeleteDocument removes a document and, through the cascade, its chunks.
// Returns the number of chunks removed.
func (s *Store) DeleteDocument(ctx context.Context, id uuid.UUID, userID string) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
	}
	defer tx.Rollback(ctx)

	var ownerID string
	err = tx.QueryRow(ctx, `SELECT user_id FROM documents WHERE id = $1`, id).Scan(&ownerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, apperrors.WrapErrorf(apperrors.ErrNotFound, "document %s", id)
	}
	if err != nil {
		return 0, apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
	}
	if ownerID != userID {
		return 0, apperrors.WrapErrorf(apperrors.ErrUnauthorized, "document %s", id)
	}

	var chunkCount int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM document_chunks WHERE document_id = $1`, id).Scan(&chunkCount); err != nil {
		return 0, apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
	}

	if _, err := tx.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id); err != nil {
		return 0, apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
	}
	return chunkCount, nil
}

// CountChunks reports how many chunks a document has.
func (s *Store) CountChunks(ctx context.Context, documentID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM document_chunks WHERE document_id = $1`, documentID).Scan(&count)
	if err != nil {
		return 0, apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
	}
	return count, nil
}

// ListResources returns the user's documents with per-resource chunk
// counts, newest first, plus the total count.
func (s *Store) ListResources(ctx context.Context, userID string, limit int) ([]types.ResourceItem, int, error) {
	if limit <= 0 {
		limit = 50
	}

	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM documents WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
	}

	query := `
		SELECT d.id, d.type, LEFT(d.content, 200), d.metadata, d.created_at,
		       (SELECT COUNT(*) FROM document_chunks dc WHERE dc.document_id = d.id) AS chunk_count
		FROM documents d
		WHERE d.user_id = $1
		ORDER BY d.created_at DESC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, 0, apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
	}
	defer rows.Close()

	var items []types.ResourceItem
	for rows.Next() {
		var item types.ResourceItem
		var docType string
		var metadata []byte
		var chunkCount int
		if err := rows.Scan(&item.ID, &docType, &item.Content, &metadata, &item.CreatedAt, &chunkCount); err != nil {
			return nil, 0, apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
		}
		item.Type = types.DocumentType(docType)
		if err := json.Unmarshal(metadata, &item.Metadata); err != nil {
			item.Metadata = map[string]string{}
		}
		item.Stats = types.ResourceStats{Documents: 1, Chunks: chunkCount}
		item.Status = "completed"
		if chunkCount == 0 {
			item.Status = "processing"
		}
		items = append(items, item)
	}
	return items, total, rows.Err()
}

// SyncResources returns documents changed since the given time, optionally
// filtered to specific resource ids.
func (s *Store) SyncResources(ctx context.Context, userID string, since time.Time, ids []uuid.UUID) ([]types.Document, error) {
	query := `
		SELECT id, user_id, title, type, COALESCE(source_url, ''), metadata, created_at, updated_at
		FROM documents
		WHERE user_id = $1 AND updated_at > $2
	`
	args := []any{userID, since}
	if len(ids) > 0 {
		query += ` AND id = ANY($3)`
		args = append(args, ids)
	}
	query += ` ORDER BY updated_at ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
	}
	defer rows.Close()

	var docs []types.Document
	for rows.Next() {
		var doc types.Document
		var docType string
		var metadata []byte
		if err := rows.Scan(&doc.ID, &doc.UserID, &doc.Title, &docType,
			&doc.SourceURL, &metadata, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
		}
		doc.Type = types.DocumentType(docType)
		if err := json.Unmarshal(metadata, &doc.Metadata); err != nil {
			doc.Metadata = map[string]string{}
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// FindDocumentByJobID locates the document whose metadata carries the
// given ingestion job id.
func (s *Store) FindDocumentByJobID(ctx context.Context, jobID uuid.UUID, userID string) (*types.Document, error) {
	query := `
		SELECT id, user_id, title, type, COALESCE(source_url, ''), metadata, created_at, updated_at
		FROM documents
		WHERE user_id = $1 AND metadata->>'job_id' = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	var doc types.Document
	var docType string
	var metadata []byte
	err := s.pool.QueryRow(ctx, query, userID, jobID.String()).Scan(
		&doc.ID, &doc.UserID, &doc.Title, &docType, &doc.SourceURL,
		&metadata, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.WrapErrorf(apperrors.ErrNotFound, "document for job %s", jobID)
	}
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
	}
	doc.Type = types.DocumentType(docType)
	if err := json.Unmarshal(metadata, &doc.Metadata); err != nil {
		doc.Metadata = map[string]string{}
	}
	return &doc, nil
}

func orEmptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
