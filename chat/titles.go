package chat

import (
	"context"
	"strings"

	"rag-server/llmclient"
	"rag-server/web/types"

	"go.uber.org/zap"
)

const (
	titleTemperature = 0.3
	titleMaxTokens   = 15
	titleMaxLength   = 100
	fallbackMaxLen   = 50
)

const titlePrompt = "Generate a 3-5 word title for this conversation, no quotes."

// GenerateTitle asks the model for a short conversation title based on
// the opening user message. Any failure falls back to the message's first
// line.
func (s *Service) GenerateTitle(ctx context.Context, userMessage string) string {
	temp := titleTemperature
	maxTokens := titleMaxTokens
	title, _, err := s.llm.Chat(ctx, []types.PromptMessage{
		{Role: "system", Content: titlePrompt},
		{Role: "user", Content: userMessage},
	}, &llmclient.GenerateOptions{Temperature: &temp, MaxTokens: &maxTokens})
	if err != nil {
		s.logger.Warn("title generation failed", zap.Error(err))
		return FallbackTitle(userMessage)
	}

	title = CleanTitle(title)
	if title == "" {
		return FallbackTitle(userMessage)
	}
	return title
}

// CleanTitle trims whitespace and surrounding quotes and caps the length.
func CleanTitle(title string) string {
	title = strings.TrimSpace(title)
	title = strings.Trim(title, `"'`)
	title = strings.TrimSpace(title)
	if len(title) > titleMaxLength {
		title = title[:titleMaxLength]
	}
	return title
}

// FallbackTitle derives a title from the first line of the user message.
func FallbackTitle(userMessage string) string {
	line := strings.TrimSpace(userMessage)
	if idx := strings.IndexByte(line, '\n'); idx != -1 {
		line = strings.TrimSpace(line[:idx])
	}
	if len(line) > fallbackMaxLen {
		line = line[:fallbackMaxLen]
	}
	if line == "" {
		return "New conversation"
	}
	return line
}
