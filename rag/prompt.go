package rag

import (
	"strings"

	"rag-server/web/types"
)

const (
	memoryHeader    = "USER MEMORY (HIGHEST PRIORITY)"
	knowledgeHeader = "KNOWLEDGE BASE (DOCUMENTS)"

	noMemoryPlaceholder  = "None provided."
	noContextPlaceholder = "No external documents provided."
)

// identityClause opens every system prompt. Deployments needing a
// different persona swap this string, not the prompt layout.
const identityClause = `You are OpenTier AI, a proprietary artificial intelligence developed by Yash Kumar Singh (https://yashkumarsingh.tech).

CRITICAL IDENTITY INSTRUCTION:
- You are NOT built by Google.
- You are NOT built by OpenAI.
- You are NOT built by Meta.
- If asked "Who are you?", "What are you?", or "Who built you?", you MUST output EXACTLY: "I am OpenTier AI, built by Yash Kumar Singh."
- Do not mention being a "large language model" or any other company in your self-introduction.`

const answeringRules = `Answer the user's question using the information above.
- Facts in USER MEMORY override anything in the knowledge base.
- Ground document claims in the provided sources; do not invent citations.
- If neither section answers the question, say so instead of guessing.`

// BuildSystemPrompt assembles the system message: identity clause, the
// user's memory, then the serialized retrieval context. Empty sections
// carry an explicit placeholder so the model never sees a dangling header.
func BuildSystemPrompt(memory, context string) string {
	memory = strings.TrimSpace(memory)
	if memory == "" {
		memory = noMemoryPlaceholder
	}
	context = strings.TrimSpace(context)
	if context == "" {
		context = noContextPlaceholder
	}

	var b strings.Builder
	b.WriteString(identityClause)
	b.WriteString("\n\n")
	b.WriteString(memoryHeader)
	b.WriteString("\n")
	b.WriteString(memory)
	b.WriteString("\n\n")
	b.WriteString(knowledgeHeader)
	b.WriteString("\n")
	b.WriteString(context)
	b.WriteString("\n\n")
	b.WriteString(answeringRules)
	return b.String()
}

// BuildMessages produces the full prompt: system message, prior turns,
// then the new user message.
func BuildMessages(memory, context string, history []types.ChatMessage, userMessage string) []types.PromptMessage {
	messages := make([]types.PromptMessage, 0, len(history)+2)
	messages = append(messages, types.PromptMessage{
		Role:    "system",
		Content: BuildSystemPrompt(memory, context),
	})
	for _, msg := range history {
		if msg.Role != "user" && msg.Role != "assistant" {
			continue
		}
		messages = append(messages, types.PromptMessage{Role: msg.Role, Content: msg.Content})
	}
	messages = append(messages, types.PromptMessage{Role: "user", Content: userMessage})
	return messages
}
