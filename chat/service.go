package chat

import (
	"context"
	"strconv"
	"strings"

	"rag-server/config"
	"rag-server/database"
	apperrors "rag-server/errors"
	"rag-server/rag"
	"rag-server/utils"
	"rag-server/web/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service drives conversations: persistence, retrieval-augmented
// generation, title generation and memory maintenance.
type Service struct {
	store     *database.Store
	engine    *rag.Engine
	extractor *rag.MemoryExtractor
	llm       rag.LLMClient
	cfg       *config.Config
	logger    *zap.Logger
}

func NewService(store *database.Store, engine *rag.Engine, extractor *rag.MemoryExtractor, llm rag.LLMClient, cfg *config.Config, logger *zap.Logger) *Service {
	return &Service{
		store:     store,
		engine:    engine,
		extractor: extractor,
		llm:       llm,
		cfg:       cfg,
		logger:    logger,
	}
}

// turnContext is everything SendMessage and StreamChat share before
// generation starts.
type turnContext struct {
	conversation *types.Conversation
	history      []types.ChatMessage
	memory       string
	userMsg      types.ChatMessage
}

// beginTurn resolves the conversation, persists the user message and
// loads history plus memory. The user turn is durable before generation
// begins.
func (s *Service) beginTurn(ctx context.Context, req *types.ChatRequest) (*turnContext, error) {
	if err := utils.ValidateUserID(req.UserID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, apperrors.WrapError(apperrors.ErrInvalidInput, "message is empty")
	}

	conv, isNew, err := s.resolveConversation(ctx, req)
	if err != nil {
		return nil, err
	}

	history, err := s.store.GetMessages(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	memory := ""
	if mem, err := s.store.GetMemory(ctx, req.UserID); err == nil {
		memory = mem.Memory
	} else if !apperrors.IsNotFound(err) {
		return nil, err
	}

	userMsg := types.ChatMessage{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		Role:           "user",
		Content:        req.Message,
		Metadata:       req.Metadata,
	}
	if err := s.store.AppendMessage(ctx, &userMsg); err != nil {
		return nil, err
	}

	if isNew {
		if title := s.GenerateTitle(ctx, req.Message); title != "" {
			if err := s.store.UpdateConversationTitle(ctx, conv.ID, title); err != nil {
				s.logger.Warn("failed to store conversation title", zap.Error(err))
			}
		}
	}

	return &turnContext{
		conversation: conv,
		history:      history,
		memory:       memory,
		userMsg:      userMsg,
	}, nil
}

// resolveConversation finds the requested conversation, creates one under
// the requested id, or creates a fresh one.
func (s *Service) resolveConversation(ctx context.Context, req *types.ChatRequest) (*types.Conversation, bool, error) {
	if req.ConversationID == "" {
		conv := &types.Conversation{ID: uuid.New(), UserID: req.UserID}
		if err := s.store.CreateConversation(ctx, conv); err != nil {
			return nil, false, err
		}
		return conv, true, nil
	}

	id, err := uuid.Parse(req.ConversationID)
	if err != nil {
		return nil, false, apperrors.WrapErrorf(apperrors.ErrInvalidInput, "bad conversation id %q", req.ConversationID)
	}
	conv, err := s.store.GetConversation(ctx, id, req.UserID)
	if err == nil {
		return conv, false, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, false, err
	}
	conv = &types.Conversation{ID: id, UserID: req.UserID}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, false, err
	}
	return conv, true, nil
}

// SendMessage runs one full non-streaming turn.
func (s *Service) SendMessage(ctx context.Context, req *types.ChatRequest) (*types.ChatResponse, error) {
	turn, err := s.beginTurn(ctx, req)
	if err != nil {
		return nil, err
	}

	result, err := s.engine.Query(ctx, rag.QueryInput{
		UserID:   req.UserID,
		Question: req.Message,
		Memory:   turn.memory,
		History:  turn.history,
		Options:  req.Options,
	})
	if err != nil {
		return nil, err
	}

	assistantMsg := types.ChatMessage{
		ID:             uuid.New(),
		ConversationID: turn.conversation.ID,
		Role:           "assistant",
		Content:        result.Response,
		Sources:        result.Sources,
	}
	if err := s.store.AppendMessage(ctx, &assistantMsg); err != nil {
		return nil, err
	}

	s.updateMemory(ctx, req.UserID, turn, result.Response)

	return &types.ChatResponse{
		ConversationID: turn.conversation.ID,
		MessageID:      assistantMsg.ID,
		Response:       result.Response,
		Sources:        result.Sources,
		Metrics:        result.Metrics,
	}, nil
}

// StreamChat runs one streaming turn. The returned channel carries source
// chunks, token chunks and a terminal metrics or error chunk. A failed
// generation persists whatever tokens arrived, marked truncated.
func (s *Service) StreamChat(ctx context.Context, req *types.ChatRequest) (<-chan types.ChatStreamChunk, error) {
	turn, err := s.beginTurn(ctx, req)
	if err != nil {
		return nil, err
	}

	events, err := s.engine.QueryStream(ctx, rag.QueryInput{
		UserID:   req.UserID,
		Question: req.Message,
		Memory:   turn.memory,
		History:  turn.history,
		Options:  req.Options,
	})
	if err != nil {
		return nil, err
	}

	chunks := make(chan types.ChatStreamChunk)
	go func() {
		defer close(chunks)

		convID := turn.conversation.ID
		var answer strings.Builder
		var sources []types.SourceRef
		truncated := false

		for event := range events {
			switch event.Type {
			case types.StreamEventSources:
				sources = event.Sources
				for i := range event.Sources {
					if !send(ctx, chunks, types.ChatStreamChunk{
						ConversationID: convID,
						Source:         &event.Sources[i],
					}) {
						return
					}
				}
			case types.StreamEventToken:
				answer.WriteString(event.Token)
				if !send(ctx, chunks, types.ChatStreamChunk{
					ConversationID: convID,
					Token:          event.Token,
				}) {
					return
				}
			case types.StreamEventMetrics:
				if !send(ctx, chunks, types.ChatStreamChunk{
					ConversationID: convID,
					Metrics:        event.Metrics,
					IsFinal:        event.IsFinal,
				}) {
					return
				}
			case types.StreamEventError:
				truncated = true
				// Surface partial-progress metrics ahead of the terminal
				// error chunk.
				if event.Metrics != nil {
					if !send(ctx, chunks, types.ChatStreamChunk{
						ConversationID: convID,
						Metrics:        event.Metrics,
					}) {
						return
					}
				}
				send(ctx, chunks, types.ChatStreamChunk{
					ConversationID: convID,
					Error:          ClassifyLLMError(stringError(event.Error)),
					IsFinal:        true,
				})
			}
		}

		s.persistStreamedTurn(ctx, req.UserID, turn, answer.String(), sources, truncated)
	}()
	return chunks, nil
}

// persistStreamedTurn stores the assistant message after the stream ends.
// Partial answers from a failed stream are kept but flagged.
func (s *Service) persistStreamedTurn(ctx context.Context, userID string, turn *turnContext, answer string, sources []types.SourceRef, truncated bool) {
	if answer == "" && truncated {
		return
	}

	msg := types.ChatMessage{
		ID:             uuid.New(),
		ConversationID: turn.conversation.ID,
		Role:           "assistant",
		Content:        answer,
		Sources:        sources,
	}
	if truncated {
		msg.Metadata = map[string]string{"truncated": "true"}
	}
	if err := s.store.AppendMessage(ctx, &msg); err != nil {
		s.logger.Error("failed to persist streamed assistant message",
			zap.String("conversation_id", turn.conversation.ID.String()), zap.Error(err))
		return
	}
	if !truncated {
		s.updateMemory(ctx, userID, turn, answer)
	}
}

// updateMemory runs the extractor over the finished turn. Failures are
// logged, never surfaced; memory maintenance must not break the chat.
func (s *Service) updateMemory(ctx context.Context, userID string, turn *turnContext, answer string) {
	recent := append(append([]types.ChatMessage{}, turn.history...),
		turn.userMsg,
		types.ChatMessage{Role: "assistant", Content: answer})

	update, err := s.extractor.Extract(ctx, turn.memory, recent)
	if err != nil {
		s.logger.Warn("memory extraction failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	switch {
	case update.Forget:
		if err := s.store.DeleteMemory(ctx, userID); err != nil {
			s.logger.Warn("memory deletion failed", zap.String("user_id", userID), zap.Error(err))
		}
	case update.Memory != "":
		if err := s.store.UpsertMemory(ctx, userID, update.Memory); err != nil {
			s.logger.Warn("memory upsert failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
}

// ConversationPage is one page of a conversation's messages.
type ConversationPage struct {
	Conversation *types.Conversation `json:"conversation"`
	Messages     []types.ChatMessage `json:"messages"`
	NextCursor   string              `json:"next_cursor,omitempty"`
}

// GetConversation returns one page of messages using an offset cursor. A
// next_cursor is present only when another page exists.
func (s *Service) GetConversation(ctx context.Context, userID string, convID uuid.UUID, limit int, cursor string) (*ConversationPage, error) {
	conv, err := s.store.GetConversation(ctx, convID, userID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	offset, err := ParseCursor(cursor)
	if err != nil {
		return nil, err
	}

	// Probe one past the page to learn whether a next page exists.
	messages, err := s.store.GetMessagesPage(ctx, convID, offset, limit+1)
	if err != nil {
		return nil, err
	}

	page := &ConversationPage{Conversation: conv, Messages: messages}
	if len(messages) > limit {
		page.Messages = messages[:limit]
		page.NextCursor = strconv.Itoa(offset + limit)
	}
	return page, nil
}

// DeleteConversation removes a conversation and its messages.
func (s *Service) DeleteConversation(ctx context.Context, userID string, convID uuid.UUID) error {
	return s.store.DeleteConversation(ctx, convID, userID)
}

// SetConversationTitle stores a title on an existing conversation.
func (s *Service) SetConversationTitle(ctx context.Context, convID uuid.UUID, title string) error {
	return s.store.UpdateConversationTitle(ctx, convID, title)
}

// ParseCursor turns an offset cursor into an integer offset. Empty means
// the first page.
func ParseCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	offset, err := strconv.Atoi(cursor)
	if err != nil || offset < 0 {
		return 0, apperrors.WrapErrorf(apperrors.ErrInvalidInput, "bad cursor %q", cursor)
	}
	return offset, nil
}

func send(ctx context.Context, out chan<- types.ChatStreamChunk, chunk types.ChatStreamChunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// stringError restores an error value from its transported message.
type stringError string

func (e stringError) Error() string { return string(e) }
