package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"rag-server/chat"
	apperrors "rag-server/errors"
	"rag-server/web/types"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ChatHandler exposes the chat service over HTTP.
type ChatHandler struct {
	service *chat.Service
	logger  *zap.Logger
}

func NewChatHandler(service *chat.Service, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{service: service, logger: logger}
}

// SendMessage handles one non-streaming chat turn.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req types.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, apperrors.WrapErrorf(apperrors.ErrInvalidInput, "bad request body: %v", err))
		return
	}

	resp, err := h.service.SendMessage(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// StreamMessage handles one chat turn as a server-sent event stream of
// ChatStreamChunk payloads.
func (h *ChatHandler) StreamMessage(c *gin.Context) {
	var req types.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, apperrors.WrapErrorf(apperrors.ErrInvalidInput, "bad request body: %v", err))
		return
	}

	chunks, err := h.service.StreamChat(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		respondError(c, h.logger, fmt.Errorf("streaming unsupported by connection"))
		return
	}

	for chunk := range chunks {
		payload, err := json.Marshal(chunk)
		if err != nil {
			h.logger.Error("failed to marshal stream chunk", zap.Error(err))
			continue
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", payload)
		flusher.Flush()
	}
}

// GetConversation returns one page of a conversation's messages.
func (h *ChatHandler) GetConversation(c *gin.Context) {
	convID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, h.logger, apperrors.WrapErrorf(apperrors.ErrInvalidInput, "bad conversation id %q", c.Param("id")))
		return
	}
	userID := c.Query("user_id")
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		fmt.Sscanf(raw, "%d", &limit)
	}

	page, err := h.service.GetConversation(c.Request.Context(), userID, convID, limit, c.Query("cursor"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// DeleteConversation removes a conversation and all its messages.
func (h *ChatHandler) DeleteConversation(c *gin.Context) {
	convID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, h.logger, apperrors.WrapErrorf(apperrors.ErrInvalidInput, "bad conversation id %q", c.Param("id")))
		return
	}

	if err := h.service.DeleteConversation(c.Request.Context(), c.Query("user_id"), convID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

type titleRequest struct {
	ConversationID   string `json:"conversation_id,omitempty"`
	UserMessage      string `json:"user_message"`
	AssistantMessage string `json:"assistant_message,omitempty"`
}

// GenerateTitle produces a short title for a conversation opener. When a
// conversation id is supplied the title is stored on it as well.
func (h *ChatHandler) GenerateTitle(c *gin.Context) {
	var req titleRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserMessage == "" {
		respondError(c, h.logger, apperrors.WrapError(apperrors.ErrInvalidInput, "user_message required"))
		return
	}

	title := h.service.GenerateTitle(c.Request.Context(), req.UserMessage)

	if req.ConversationID != "" {
		convID, err := uuid.Parse(req.ConversationID)
		if err != nil {
			respondError(c, h.logger, apperrors.WrapErrorf(apperrors.ErrInvalidInput, "bad conversation id %q", req.ConversationID))
			return
		}
		if err := h.service.SetConversationTitle(c.Request.Context(), convID, title); err != nil {
			respondError(c, h.logger, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"title": title})
}
