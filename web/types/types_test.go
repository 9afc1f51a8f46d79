package types

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestChatOptionsRejectsUnknownKeys(t *testing.T) {
	var opts ChatOptions
	err := json.Unmarshal([]byte(`{"temperature": 0.5, "tempurature": 0.9}`), &opts)
	if err == nil {
		t.Fatal("expected error for unknown option key")
	}
	if !strings.Contains(err.Error(), "tempurature") {
		t.Errorf("error %q should name the offending key", err)
	}
}

func TestChatOptionsAcceptsKnownKeys(t *testing.T) {
	var opts ChatOptions
	body := `{"temperature": 0.2, "max_tokens": 64, "use_rag": false, "model": "small", "context_limit": 3}`
	if err := json.Unmarshal([]byte(body), &opts); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if opts.Temperature == nil || *opts.Temperature != 0.2 {
		t.Errorf("temperature = %v, want 0.2", opts.Temperature)
	}
	if opts.MaxTokens == nil || *opts.MaxTokens != 64 {
		t.Errorf("max_tokens = %v, want 64", opts.MaxTokens)
	}
	if opts.RAGEnabled() {
		t.Error("use_rag false should disable retrieval")
	}
	if opts.Model != "small" {
		t.Errorf("model = %q, want small", opts.Model)
	}
	if opts.ContextLimit == nil || *opts.ContextLimit != 3 {
		t.Errorf("context_limit = %v, want 3", opts.ContextLimit)
	}
}

func TestChatOptionsDefaultsRAGOn(t *testing.T) {
	var opts *ChatOptions
	if !opts.RAGEnabled() {
		t.Error("nil options should default to retrieval enabled")
	}
}
