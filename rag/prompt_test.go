package rag

import (
	"strings"
	"testing"

	"rag-server/web/types"
)

func TestBuildSystemPromptSectionOrder(t *testing.T) {
	prompt := BuildSystemPrompt("- User likes Go", "[Source 1 | Score: 0.900 | Doc: abc]\nchunk text")

	if !strings.HasPrefix(prompt, "You are OpenTier AI") {
		t.Errorf("prompt should open with the identity clause, got:\n%.80s", prompt)
	}

	idIdx := strings.Index(prompt, "I am OpenTier AI, built by Yash Kumar Singh.")
	memIdx := strings.Index(prompt, "USER MEMORY (HIGHEST PRIORITY)")
	kbIdx := strings.Index(prompt, "KNOWLEDGE BASE (DOCUMENTS)")
	if idIdx == -1 || memIdx == -1 || kbIdx == -1 {
		t.Fatalf("missing section headers in prompt:\n%s", prompt)
	}
	if idIdx > memIdx {
		t.Errorf("identity clause at %d should precede memory section at %d", idIdx, memIdx)
	}
	if memIdx > kbIdx {
		t.Errorf("memory section at %d should precede knowledge base at %d", memIdx, kbIdx)
	}
	if !strings.Contains(prompt, "- User likes Go") {
		t.Error("memory content missing from prompt")
	}
	if !strings.Contains(prompt, "chunk text") {
		t.Error("context content missing from prompt")
	}
}

func TestBuildSystemPromptPlaceholders(t *testing.T) {
	prompt := BuildSystemPrompt("", "")

	if !strings.Contains(prompt, "None provided.") {
		t.Error("empty memory should render the memory placeholder")
	}
	if !strings.Contains(prompt, "No external documents provided.") {
		t.Error("empty context should render the context placeholder")
	}
}

func TestBuildMessages(t *testing.T) {
	history := []types.ChatMessage{
		{Role: "user", Content: "first question"},
		{Role: "assistant", Content: "first answer"},
		{Role: "system", Content: "should be dropped"},
	}

	messages := BuildMessages("mem", "ctx", history, "new question")

	if len(messages) != 4 {
		t.Fatalf("got %d messages, want 4", len(messages))
	}
	if messages[0].Role != "system" {
		t.Errorf("first message role = %q, want system", messages[0].Role)
	}
	if messages[1].Content != "first question" || messages[2].Content != "first answer" {
		t.Error("history not preserved in order")
	}
	last := messages[len(messages)-1]
	if last.Role != "user" || last.Content != "new question" {
		t.Errorf("last message = %+v, want the new user turn", last)
	}
}
