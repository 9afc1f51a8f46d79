package ingest

import (
	"html"
	"regexp"
	"strings"

	"rag-server/web/types"

	"github.com/gomarkdown/markdown/ast"
	mdparser "github.com/gomarkdown/markdown/parser"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

// Strategy selects how aggressively content is normalized before chunking.
type Strategy string

const (
	StrategyMinimal    Strategy = "MINIMAL"
	StrategyStandard   Strategy = "STANDARD"
	StrategyAggressive Strategy = "AGGRESSIVE"
)

// CleaningMetrics reports what a cleaning pass changed.
type CleaningMetrics struct {
	OriginalLength       int  `json:"original_length"`
	CleanedLength        int  `json:"cleaned_length"`
	CharsRemoved         int  `json:"chars_removed"`
	HTMLTagsRemoved      int  `json:"html_tags_removed"`
	WhitespaceNormalized bool `json:"whitespace_normalized"`
	UnicodeNormalized    bool `json:"unicode_normalized"`
	BoilerplateRemoved   bool `json:"boilerplate_removed"`
}

var (
	htmlTagPattern     = regexp.MustCompile(`<[^>]+>`)
	spaceRunPattern    = regexp.MustCompile(`[ \t]+`)
	blankRunPattern    = regexp.MustCompile(`\n{3,}`)
	codeBlankRun       = regexp.MustCompile(`\n{5,}`)
	pageNumberPattern  = regexp.MustCompile(`(?m)^\s*\d+\s*$`)
	hyphenationPattern = regexp.MustCompile(`-\n(\w)`)
	mdLinkPattern      = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	mdEmphasisPattern  = regexp.MustCompile(`(\*|_)([^*_]+)(\*|_)`)
	mdHeadingPattern   = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	textPunctPattern   = regexp.MustCompile(`[^\w\s.,!?;:()\-"']`)

	boilerplatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?is)<nav\b[^>]*>.*?</nav>`),
		regexp.MustCompile(`(?is)<header\b[^>]*>.*?</header>`),
		regexp.MustCompile(`(?is)<footer\b[^>]*>.*?</footer>`),
		regexp.MustCompile(`(?is)<aside\b[^>]*>.*?</aside>`),
		regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script>`),
		regexp.MustCompile(`(?is)<noscript\b[^>]*>.*?</noscript>`),
		regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style>`),
		regexp.MustCompile(`(?is)<[a-z][a-z0-9]*\b[^>]*(?:class|id)\s*=\s*"[^"]*(?:ad|social|share|comment|sidebar)[^"]*"[^>]*>.*?</[a-z][a-z0-9]*>`),
	}
)

// Cleaner normalizes raw document content by type before chunking.
// Cleaning never fails: every input yields output, worst case unchanged.
type Cleaner struct {
	logger *zap.Logger
}

func NewCleaner(logger *zap.Logger) *Cleaner {
	return &Cleaner{logger: logger}
}

// Clean runs the type-specific pipeline and reports metrics.
func (c *Cleaner) Clean(content string, docType types.DocumentType, strategy Strategy) (string, CleaningMetrics) {
	metrics := CleaningMetrics{OriginalLength: len(content)}
	if content == "" {
		return content, metrics
	}

	var cleaned string
	switch docType {
	case types.DocumentTypeHTML, types.DocumentTypeWebsite:
		cleaned = c.cleanHTML(content, strategy, &metrics)
	case types.DocumentTypeMarkdown:
		cleaned = c.cleanMarkdown(content, strategy, &metrics)
	case types.DocumentTypeCode:
		cleaned = c.cleanCode(content, &metrics)
	case types.DocumentTypePDF:
		cleaned = c.cleanPDF(content, &metrics)
	default:
		cleaned = c.cleanText(content, strategy, &metrics)
	}

	metrics.CleanedLength = len(cleaned)
	if diff := metrics.OriginalLength - metrics.CleanedLength; diff > 0 {
		metrics.CharsRemoved = diff
	}
	return cleaned, metrics
}

func (c *Cleaner) cleanHTML(content string, strategy Strategy, metrics *CleaningMetrics) string {
	if strategy == StrategyAggressive {
		for _, pattern := range boilerplatePatterns {
			stripped := pattern.ReplaceAllString(content, "")
			if len(stripped) != len(content) {
				metrics.BoilerplateRemoved = true
			}
			content = stripped
		}
	}

	metrics.HTMLTagsRemoved = len(htmlTagPattern.FindAllString(content, -1))
	content = htmlTagPattern.ReplaceAllString(content, " ")
	content = html.UnescapeString(content)

	content = normalizeUnicode(content, metrics)
	return normalizeWhitespace(content, metrics)
}

func (c *Cleaner) cleanMarkdown(content string, strategy Strategy, metrics *CleaningMetrics) string {
	content = normalizeLineEndings(content)

	if strategy == StrategyAggressive {
		content = stripMarkdownSyntax(content)
		metrics.BoilerplateRemoved = true
	}

	content = blankRunPattern.ReplaceAllString(content, "\n\n")
	content = normalizeUnicode(content, metrics)
	return normalizeWhitespace(content, metrics)
}

func (c *Cleaner) cleanCode(content string, metrics *CleaningMetrics) string {
	content = normalizeLineEndings(content)
	// Indentation is significant in code, only trailing space and
	// excessive blank runs are touched.
	content = codeBlankRun.ReplaceAllString(content, "\n\n\n\n")
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	content = strings.Join(lines, "\n")
	return normalizeUnicode(content, metrics)
}

func (c *Cleaner) cleanPDF(content string, metrics *CleaningMetrics) string {
	content = normalizeLineEndings(content)
	content = pageNumberPattern.ReplaceAllString(content, "")
	content = hyphenationPattern.ReplaceAllString(content, "$1")
	content = normalizeUnicode(content, metrics)
	return normalizeWhitespace(content, metrics)
}

func (c *Cleaner) cleanText(content string, strategy Strategy, metrics *CleaningMetrics) string {
	content = normalizeLineEndings(content)
	content = normalizeUnicode(content, metrics)
	if strategy == StrategyMinimal {
		return content
	}
	content = normalizeWhitespace(content, metrics)
	if strategy == StrategyAggressive {
		content = textPunctPattern.ReplaceAllString(content, "")
	}
	return content
}

// stripMarkdownSyntax renders the markdown AST back to plain text,
// keeping only literal content.
func stripMarkdownSyntax(content string) (out string) {
	defer func() {
		// A malformed document must never abort cleaning.
		if recover() != nil {
			out = content
		}
	}()

	p := mdparser.NewWithExtensions(mdparser.CommonExtensions)
	doc := p.Parse([]byte(content))

	var b strings.Builder
	ast.WalkFunc(doc, func(node ast.Node, entering bool) ast.WalkStatus {
		if !entering {
			switch node.(type) {
			case *ast.Paragraph, *ast.Heading, *ast.ListItem, *ast.BlockQuote:
				b.WriteString("\n\n")
			}
			return ast.GoToNext
		}
		switch n := node.(type) {
		case *ast.Text:
			b.Write(n.Literal)
		case *ast.Code:
			b.Write(n.Literal)
		case *ast.CodeBlock:
			b.Write(n.Literal)
			b.WriteString("\n")
		}
		return ast.GoToNext
	})

	out = b.String()
	if strings.TrimSpace(out) == "" {
		// Fall back to regex stripping when the AST produced nothing.
		out = mdLinkPattern.ReplaceAllString(content, "$1")
		out = mdEmphasisPattern.ReplaceAllString(out, "$2")
		out = mdHeadingPattern.ReplaceAllString(out, "")
		out = strings.ReplaceAll(out, "`", "")
	}
	return out
}

func normalizeLineEndings(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	return strings.ReplaceAll(content, "\r", "\n")
}

func normalizeUnicode(content string, metrics *CleaningMetrics) string {
	normalized := norm.NFC.String(content)
	metrics.UnicodeNormalized = true
	return normalized
}

func normalizeWhitespace(content string, metrics *CleaningMetrics) string {
	content = normalizeLineEndings(content)
	content = spaceRunPattern.ReplaceAllString(content, " ")
	content = blankRunPattern.ReplaceAllString(content, "\n\n")

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	content = strings.Join(lines, "\n")

	metrics.WhitespaceNormalized = true
	return strings.TrimSpace(content)
}
