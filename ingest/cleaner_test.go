package ingest

import (
	"strings"
	"testing"

	"rag-server/web/types"

	"go.uber.org/zap"
)

func TestCleanHTML(t *testing.T) {
	cleaner := NewCleaner(zap.NewNop())

	tests := []struct {
		name     string
		input    string
		strategy Strategy
		contains []string
		excludes []string
	}{
		{
			name:     "tags_stripped",
			input:    "<p>Hello <b>world</b></p>",
			strategy: StrategyStandard,
			contains: []string{"Hello", "world"},
			excludes: []string{"<p>", "<b>"},
		},
		{
			name:     "aggressive_removes_nav_and_script",
			input:    `<nav>Menu items</nav><script>var x = 1;</script><p>Real content</p>`,
			strategy: StrategyAggressive,
			contains: []string{"Real content"},
			excludes: []string{"Menu items", "var x"},
		},
		{
			name:     "aggressive_removes_sidebar_class",
			input:    `<div class="sidebar-widget">Ads here</div><p>Article body</p>`,
			strategy: StrategyAggressive,
			contains: []string{"Article body"},
			excludes: []string{"Ads here"},
		},
		{
			name:     "entities_decoded",
			input:    "<p>Fish &amp; Chips</p>",
			strategy: StrategyStandard,
			contains: []string{"Fish & Chips"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, metrics := cleaner.Clean(tt.input, types.DocumentTypeHTML, tt.strategy)
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("cleaned output %q missing %q", got, want)
				}
			}
			for _, unwanted := range tt.excludes {
				if strings.Contains(got, unwanted) {
					t.Errorf("cleaned output %q still contains %q", got, unwanted)
				}
			}
			if metrics.OriginalLength != len(tt.input) {
				t.Errorf("metrics.OriginalLength = %d, want %d", metrics.OriginalLength, len(tt.input))
			}
		})
	}
}

func TestCleanPDF(t *testing.T) {
	cleaner := NewCleaner(zap.NewNop())

	input := "Intro text\n42\nhyphen-\nated word\n\n\n\n\nEnd"
	got, _ := cleaner.Clean(input, types.DocumentTypePDF, StrategyStandard)

	if strings.Contains(got, "42") {
		t.Errorf("page number line survived: %q", got)
	}
	if !strings.Contains(got, "hyphenated") {
		t.Errorf("hyphenation not repaired: %q", got)
	}
	if strings.Contains(got, "\n\n\n") {
		t.Errorf("blank run not collapsed: %q", got)
	}
}

func TestCleanCodePreservesIndentation(t *testing.T) {
	cleaner := NewCleaner(zap.NewNop())

	input := "func main() {\n\tx := 1   \n\tif x > 0 {\n\t\treturn\n\t}\n}"
	got, _ := cleaner.Clean(input, types.DocumentTypeCode, StrategyStandard)

	if !strings.Contains(got, "\tx := 1") {
		t.Errorf("indentation lost: %q", got)
	}
	if strings.Contains(got, "x := 1   ") {
		t.Errorf("trailing spaces survived: %q", got)
	}
}

func TestCleanMarkdownAggressive(t *testing.T) {
	cleaner := NewCleaner(zap.NewNop())

	input := "# Title\n\nSome *emphasized* text with a [link](https://example.com).\n"
	got, _ := cleaner.Clean(input, types.DocumentTypeMarkdown, StrategyAggressive)

	for _, syntax := range []string{"# ", "*emphasized*", "](", "https://example.com"} {
		if strings.Contains(got, syntax) {
			t.Errorf("markdown syntax %q survived aggressive cleaning: %q", syntax, got)
		}
	}
	for _, want := range []string{"Title", "emphasized", "link"} {
		if !strings.Contains(got, want) {
			t.Errorf("text content %q lost: %q", want, got)
		}
	}
}

func TestCleanTextStrategies(t *testing.T) {
	cleaner := NewCleaner(zap.NewNop())

	input := "Hello    world\r\nwith  ©  symbols"

	minimal, _ := cleaner.Clean(input, types.DocumentTypeText, StrategyMinimal)
	if strings.Contains(minimal, "\r\n") {
		t.Errorf("minimal cleaning left CRLF: %q", minimal)
	}
	if !strings.Contains(minimal, "Hello    world") {
		t.Errorf("minimal cleaning collapsed spaces: %q", minimal)
	}

	standard, _ := cleaner.Clean(input, types.DocumentTypeText, StrategyStandard)
	if strings.Contains(standard, "  ") {
		t.Errorf("standard cleaning left space runs: %q", standard)
	}

	aggressive, _ := cleaner.Clean(input, types.DocumentTypeText, StrategyAggressive)
	if strings.Contains(aggressive, "©") {
		t.Errorf("aggressive cleaning kept special char: %q", aggressive)
	}
}

func TestCleanIsIdempotent(t *testing.T) {
	cleaner := NewCleaner(zap.NewNop())

	inputs := map[types.DocumentType]string{
		types.DocumentTypeText:     "Plain text.\n\nSecond paragraph.",
		types.DocumentTypeMarkdown: "Heading\n\nBody text here.",
		types.DocumentTypePDF:      "Page content without artifacts.",
	}

	for docType, input := range inputs {
		once, _ := cleaner.Clean(input, docType, StrategyStandard)
		twice, _ := cleaner.Clean(once, docType, StrategyStandard)
		if once != twice {
			t.Errorf("%s cleaning not idempotent:\nonce  %q\ntwice %q", docType, once, twice)
		}
	}
}

func TestCleanEmptyInput(t *testing.T) {
	cleaner := NewCleaner(zap.NewNop())

	got, metrics := cleaner.Clean("", types.DocumentTypeHTML, StrategyAggressive)
	if got != "" {
		t.Errorf("Clean(\"\") = %q, want empty", got)
	}
	if metrics.OriginalLength != 0 || metrics.CleanedLength != 0 {
		t.Errorf("unexpected metrics for empty input: %+v", metrics)
	}
}
