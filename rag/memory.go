package rag

import (
	"context"
	"sort"
	"strings"

	"rag-server/llmclient"
	"rag-server/web/types"

	"go.uber.org/zap"
)

const (
	sentinelNoUpdate  = "NO_UPDATE"
	sentinelForgetAll = "FORGET_ALL"

	memoryHistoryWindow = 10
	memoryTemperature   = 0.1
)

// uncertaintyKeywords disqualify extracted lines that hedge instead of
// stating a fact.
var uncertaintyKeywords = []string{
	"unknown", "unspecified", "unclear", "not mentioned", "not stated",
	"not provided", "not given", "uncertain", "no information", "no data",
	"not sure", "maybe", "possibly",
}

const memoryExtractionPrompt = `You maintain a long-term memory of facts about the user.

Rules:
- Only extract facts from messages with role "user".
- Only extract facts the user directly stated about themselves.
- Output each fact on its own line, prefixed with "- ".
- If there is nothing new to remember, output exactly NO_UPDATE.
- If the user asked you to forget everything about them, output exactly FORGET_ALL.`

// MemoryUpdate is the outcome of one extraction pass.
type MemoryUpdate struct {
	// Forget signals the caller to delete the user's memory entirely.
	Forget bool
	// Memory is the new memory text; empty with Forget false means no
	// change.
	Memory string
}

// MemoryExtractor distills durable user facts out of recent conversation
// turns.
type MemoryExtractor struct {
	llm    LLMClient
	logger *zap.Logger
}

func NewMemoryExtractor(llm LLMClient, logger *zap.Logger) *MemoryExtractor {
	return &MemoryExtractor{llm: llm, logger: logger}
}

// Extract runs the extraction call over the last turns and merges the
// result with the current memory.
func (m *MemoryExtractor) Extract(ctx context.Context, currentMemory string, messages []types.ChatMessage) (MemoryUpdate, error) {
	recent := messages
	if len(recent) > memoryHistoryWindow {
		recent = recent[len(recent)-memoryHistoryWindow:]
	}

	var convo strings.Builder
	if currentMemory != "" {
		convo.WriteString("Current memory:\n")
		convo.WriteString(currentMemory)
		convo.WriteString("\n\n")
	}
	convo.WriteString("Conversation:\n")
	for _, msg := range recent {
		convo.WriteString(msg.Role)
		convo.WriteString(": ")
		convo.WriteString(msg.Content)
		convo.WriteString("\n")
	}

	temp := memoryTemperature
	output, _, err := m.llm.Chat(ctx, []types.PromptMessage{
		{Role: "system", Content: memoryExtractionPrompt},
		{Role: "user", Content: convo.String()},
	}, &llmclient.GenerateOptions{Temperature: &temp})
	if err != nil {
		return MemoryUpdate{}, err
	}

	return postProcess(currentMemory, output), nil
}

// postProcess applies the sentinel and cleanup rules to the raw extractor
// output.
func postProcess(currentMemory, output string) MemoryUpdate {
	trimmed := strings.TrimSpace(output)
	if strings.Contains(trimmed, sentinelForgetAll) {
		return MemoryUpdate{Forget: true}
	}
	if strings.Contains(trimmed, sentinelNoUpdate) {
		return MemoryUpdate{}
	}

	cleaned := stripCodeFences(trimmed)
	var kept []string
	for _, line := range strings.Split(cleaned, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || containsUncertainty(line) {
			continue
		}
		kept = append(kept, line)
	}
	result := strings.Join(kept, "\n")
	if len(result) < 5 {
		return MemoryUpdate{}
	}

	if currentMemory == "" {
		return MemoryUpdate{Memory: result}
	}
	return MemoryUpdate{Memory: mergeLines(currentMemory, result)}
}

// mergeLines unions the line sets of both memories and sorts ascending so
// repeated extraction passes are idempotent.
func mergeLines(current, extracted string) string {
	set := map[string]bool{}
	for _, block := range []string{current, extracted} {
		for _, line := range strings.Split(block, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				set[line] = true
			}
		}
	}
	lines := make([]string, 0, len(set))
	for line := range set {
		lines = append(lines, line)
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

func containsUncertainty(line string) bool {
	lower := strings.ToLower(line)
	for _, kw := range uncertaintyKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func stripCodeFences(s string) string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
