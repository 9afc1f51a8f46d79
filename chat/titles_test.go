package chat

import (
	"strings"
	"testing"
)

func TestCleanTitle(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain title", "Vacation Planning Help", "Vacation Planning Help"},
		{"surrounding double quotes", `"Vacation Planning Help"`, "Vacation Planning Help"},
		{"surrounding single quotes", "'Tax Questions'", "Tax Questions"},
		{"whitespace trimmed", "  Notes on Go  ", "Notes on Go"},
		{"capped at 100 chars", strings.Repeat("a", 150), strings.Repeat("a", 100)},
		{"empty", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanTitle(tt.in); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFallbackTitle(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"first line only", "How do I file taxes?\nMore detail here.", "How do I file taxes?"},
		{"truncated to 50", strings.Repeat("x", 80), strings.Repeat("x", 50)},
		{"empty message", "  \n ", "New conversation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FallbackTitle(tt.in); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
