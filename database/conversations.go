package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	apperrors "rag-server/errors"
	"rag-server/web/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CreateConversation inserts a conversation with the caller-supplied id.
func (s *Store) CreateConversation(ctx context.Context, conv *types.Conversation) error {
	metadata, err := json.Marshal(orEmptyMap(conv.Metadata))
	if err != nil {
		return fmt.Errorf("marshal conversation metadata: %w", err)
	}

	query := `
		INSERT INTO conversations (id, user_id, title, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
	`
	if _, err := s.pool.Exec(ctx, query, conv.ID, conv.UserID, conv.Title, metadata); err != nil {
		return apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
	}
	return nil
}

// GetConversation fetches a conversation and enforces ownership.
func (s *Store) GetConversation(ctx context.Context, id uuid.UUID, userID string) (*types.Conversation, error) {
	query := `
		SELECT id, user_id, title, metadata, created_at, updated_at
		FROM conversations WHERE id = $1
	`
	var conv types.Conversation
	var metadata []byte
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&conv.ID, &conv.UserID, &conv.Title, &metadata, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.WrapErrorf(apperrors.ErrNotFound, "conversation %s", id)
	}
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
	}
	if conv.UserID != userID {
		return nil, apperrors.WrapErrorf(apperrors.ErrUnauthorized, "conversation %s", id)
	}
	if err := json.Unmarshal(metadata, &conv.Metadata); err != nil {
		conv.Metadata = map[string]string{}
	}
	return &conv, nil
}

// DeleteConversation removes a conversation and, through the cascade, its
// messages.
func (s *Store) DeleteConversation(ctx context.Context, id uuid.UUID, userID string) error {
	if _, err := s.GetConversation(ctx, id, userID); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id); err != nil {
		return apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
	}
	return nil
}

// UpdateConversationTitle sets the title of an existing conversation.
func (s *Store) UpdateConversationTitle(ctx context.Context, id uuid.UUID, title string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE conversations SET title = $1, updated_at = NOW() WHERE id = $2`, title, id)
	if err != nil {
		return apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
	}
	return nil
}

// AppendMessage inserts a message and touches the parent conversation so
// listing by recency stays correct.
func (s *Store) AppendMessage(ctx context.Context, msg *types.ChatMessage) error {
	sources, err := json.Marshal(orEmptySources(msg.Sources))
	if err != nil {
		return fmt.Errorf("marshal message sources: %w", err)
	}
	metadata, err := json.Marshal(orEmptyMap(msg.Metadata))
	if err != nil {
		return fmt.Errorf("marshal message metadata: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO chat_messages (id, conversation_id, role, content, sources, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`
	if _, err := tx.Exec(ctx, query,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, sources, metadata); err != nil {
		return apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
	}
	if _, err := tx.Exec(ctx,
		`UPDATE conversations SET updated_at = NOW() WHERE id = $1`, msg.ConversationID); err != nil {
		return apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
	}
	return tx.Commit(ctx)
}

// GetMessages returns every message of a conversation in insertion order.
func (s *Store) GetMessages(ctx context.Context, conversationID uuid.UUID) ([]types.ChatMessage, error) {
	return s.getMessages(ctx, conversationID, 0, 0)
}

// GetMessagesPage returns up to limit messages starting at offset, in
// insertion order. Callers probe with limit+1 to detect a next page.
func (s *Store) GetMessagesPage(ctx context.Context, conversationID uuid.UUID, offset, limit int) ([]types.ChatMessage, error) {
	return s.getMessages(ctx, conversationID, offset, limit)
}

func (s *Store) getMessages(ctx context.Context, conversationID uuid.UUID, offset, limit int) ([]types.ChatMessage, error) {
	query := `
		SELECT id, conversation_id, role, content, sources, metadata, created_at
		FROM chat_messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC
	`
	args := []any{conversationID}
	if limit > 0 {
		query += ` OFFSET $2 LIMIT $3`
		args = append(args, offset, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
	}
	defer rows.Close()

	var messages []types.ChatMessage
	for rows.Next() {
		var msg types.ChatMessage
		var sources, metadata []byte
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content,
			&sources, &metadata, &msg.CreatedAt); err != nil {
			return nil, apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
		}
		if err := json.Unmarshal(sources, &msg.Sources); err != nil {
			msg.Sources = nil
		}
		if err := json.Unmarshal(metadata, &msg.Metadata); err != nil {
			msg.Metadata = map[string]string{}
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func orEmptySources(sources []types.SourceRef) []types.SourceRef {
	if sources == nil {
		return []types.SourceRef{}
	}
	return sources
}
