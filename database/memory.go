package database

import (
	"context"
	"encoding/json"
	"errors"

	apperrors "rag-server/errors"
	"rag-server/web/types"

	"github.com/jackc/pgx/v5"
)

// GetMemory returns the user's memory row, or ErrNotFound when the user
// has none yet.
func (s *Store) GetMemory(ctx context.Context, userID string) (*types.UserMemory, error) {
	query := `SELECT user_id, memory, metadata, updated_at FROM user_memories WHERE user_id = $1`

	var mem types.UserMemory
	var metadata []byte
	err := s.pool.QueryRow(ctx, query, userID).Scan(
		&mem.UserID, &mem.Memory, &metadata, &mem.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.WrapErrorf(apperrors.ErrNotFound, "memory for user %s", userID)
	}
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
	}
	if err := json.Unmarshal(metadata, &mem.Metadata); err != nil {
		mem.Metadata = map[string]string{}
	}
	return &mem, nil
}

// UpsertMemory replaces the user's memory blob.
func (s *Store) UpsertMemory(ctx context.Context, userID, memory string) error {
	query := `
		INSERT INTO user_memories (user_id, memory, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET memory = EXCLUDED.memory, updated_at = NOW()
	`
	if _, err := s.pool.Exec(ctx, query, userID, memory); err != nil {
		return apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
	}
	return nil
}

// DeleteMemory removes the user's memory row. Deleting a missing row is
// not an error.
func (s *Store) DeleteMemory(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM user_memories WHERE user_id = $1`, userID); err != nil {
		return apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
	}
	return nil
}
