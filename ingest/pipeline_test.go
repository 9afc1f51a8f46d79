package ingest

import (
	"strings"
	"testing"
)

func TestResolveTitle(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "empty_gets_default",
			input: "",
			want:  "Untitled",
		},
		{
			name:  "whitespace_gets_default",
			input: "   \n\t ",
			want:  "Untitled",
		},
		{
			name:  "normal_title_trimmed",
			input: "  Release Notes  ",
			want:  "Release Notes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveTitle(tt.input)
			if err != nil {
				t.Fatalf("resolveTitle(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("resolveTitle(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestResolveTitleTruncatesLongTitles(t *testing.T) {
	long := strings.Repeat("chapter ", 100)

	got, err := resolveTitle(long)
	if err != nil {
		t.Fatalf("resolveTitle() error = %v", err)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("long title %q missing ellipsis", got)
	}
	if len(got) > 503 {
		t.Errorf("truncated title length %d exceeds limit", len(got))
	}
}
