package ingest

import (
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestChunkerIndicesAreDense(t *testing.T) {
	chunker := NewChunker(nil, zap.NewNop())

	text := strings.Repeat("Paragraph with some words in it.\n\n", 40)
	chunks, err := chunker.Split(text, 120, 20, nil)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	for i, chunk := range chunks {
		if chunk.Index != i {
			t.Errorf("chunk %d has index %d", i, chunk.Index)
		}
	}
}

func TestChunkerRespectsMaxLength(t *testing.T) {
	chunker := NewChunker(nil, zap.NewNop())

	size, overlap := 100, 30
	text := strings.Repeat("Some sentence here. Another one follows. ", 60)
	chunks, err := chunker.Split(text, size, overlap, nil)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}

	for _, chunk := range chunks {
		if len(chunk.Content) > size+overlap {
			t.Errorf("chunk %d length %d exceeds size+overlap %d",
				chunk.Index, len(chunk.Content), size+overlap)
		}
	}
}

func TestChunkerOverlapCarriedForward(t *testing.T) {
	chunker := NewChunker(nil, zap.NewNop())

	text := strings.Repeat("alpha beta gamma delta.\n\n", 20)
	overlap := 15
	chunks, err := chunker.Split(text, 60, overlap, nil)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1].Content
		tail := prev
		if len(tail) > overlap {
			tail = tail[len(tail)-overlap:]
		}
		if !strings.HasPrefix(chunks[i].Content, tail) {
			// The carry is dropped only when it cannot fit.
			if len(tail)+len(defaultSeparator)+len(chunks[i].Content) <= 60+overlap {
				t.Errorf("chunk %d does not start with overlap of chunk %d:\nprev tail %q\ncur %q",
					i, i-1, tail, chunks[i].Content)
			}
		}
	}
}

func TestChunkerSentenceFallbackForOversizeParagraph(t *testing.T) {
	chunker := NewChunker(nil, zap.NewNop())

	// One paragraph, far larger than the chunk size, no blank lines.
	text := strings.Repeat("This is a full sentence. ", 50)
	chunks, err := chunker.Split(text, 100, 0, nil)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("oversize paragraph was not split, got %d chunks", len(chunks))
	}
	for _, chunk := range chunks {
		if len(chunk.Content) > 100 {
			t.Errorf("chunk %d length %d exceeds size 100", chunk.Index, len(chunk.Content))
		}
	}
}

func TestChunkerOffsetsAreOrdered(t *testing.T) {
	chunker := NewChunker(nil, zap.NewNop())

	text := strings.Repeat("one two three four five.\n\n", 30)
	chunks, err := chunker.Split(text, 80, 10, nil)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}

	for i, chunk := range chunks {
		if chunk.EndChar != chunk.StartChar+len(chunk.Content) {
			t.Errorf("chunk %d end %d != start %d + len %d",
				i, chunk.EndChar, chunk.StartChar, len(chunk.Content))
		}
		if i > 0 && chunk.StartChar < chunks[i-1].StartChar {
			t.Errorf("chunk %d start %d precedes chunk %d start %d",
				i, chunk.StartChar, i-1, chunks[i-1].StartChar)
		}
	}
}

func TestChunkerMetadataIsCopied(t *testing.T) {
	chunker := NewChunker(nil, zap.NewNop())

	meta := map[string]string{"source": "test"}
	chunks, err := chunker.Split("short text", 100, 10, meta)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}

	chunks[0].Metadata["source"] = "mutated"
	if meta["source"] != "test" {
		t.Errorf("chunk metadata mutation leaked into the input map")
	}
}

func TestChunkerRejectsBadParams(t *testing.T) {
	chunker := NewChunker(nil, zap.NewNop())

	tests := []struct {
		name    string
		size    int
		overlap int
	}{
		{name: "size_below_minimum", size: 10, overlap: 0},
		{name: "overlap_not_below_size", size: 100, overlap: 100},
		{name: "negative_overlap", size: 100, overlap: -5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := chunker.Split("text", tt.size, tt.overlap, nil); err == nil {
				t.Errorf("Split(size=%d, overlap=%d) expected error", tt.size, tt.overlap)
			}
		})
	}
}

func TestChunkerEmptyInput(t *testing.T) {
	chunker := NewChunker(nil, zap.NewNop())

	chunks, err := chunker.Split("   \n\n  ", 100, 10, nil)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("expected no chunks for blank input, got %d", len(chunks))
	}
}

func TestRegexSentenceSplitter(t *testing.T) {
	splitter := NewRegexSentenceSplitter()

	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "simple_sentences",
			input: "First one. Second one! Third?",
			want:  []string{"First one.", "Second one!", "Third?"},
		},
		{
			name:  "no_terminator",
			input: "just a fragment",
			want:  []string{"just a fragment"},
		},
		{
			name:  "repeated_punctuation",
			input: "Wait... what happened? Nothing.",
			want:  []string{"Wait...", "what happened?", "Nothing."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitter.Split(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("Split(%q) = %v, want %v", tt.input, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("sentence %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}
