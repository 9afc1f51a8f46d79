package ingest

import (
	"regexp"
	"strings"

	"github.com/jdkato/prose/v2"
)

// SentenceSplitter breaks a paragraph into sentences when it is too large
// to chunk whole.
type SentenceSplitter interface {
	Split(text string) []string
}

var sentenceBoundary = regexp.MustCompile(`[.!?]+\s+`)

// RegexSentenceSplitter splits on terminal punctuation followed by
// whitespace. Fast and dependency-free, the default.
type RegexSentenceSplitter struct{}

func NewRegexSentenceSplitter() RegexSentenceSplitter {
	return RegexSentenceSplitter{}
}

func (RegexSentenceSplitter) Split(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	var sentences []string
	last := 0
	for _, loc := range sentenceBoundary.FindAllStringIndex(trimmed, -1) {
		sentence := strings.TrimSpace(trimmed[last:loc[1]])
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		last = loc[1]
	}
	if rest := strings.TrimSpace(trimmed[last:]); rest != "" {
		sentences = append(sentences, rest)
	}

	if len(sentences) == 0 {
		return []string{trimmed}
	}
	return sentences
}

// ProseSentenceSplitter uses a trained tokenizer for higher-quality
// boundaries on prose with abbreviations and decimal numbers.
type ProseSentenceSplitter struct{}

func NewProseSentenceSplitter() ProseSentenceSplitter {
	return ProseSentenceSplitter{}
}

func (ProseSentenceSplitter) Split(text string) []string {
	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return RegexSentenceSplitter{}.Split(text)
	}

	var sentences []string
	for _, s := range doc.Sentences() {
		if trimmed := strings.TrimSpace(s.Text); trimmed != "" {
			sentences = append(sentences, trimmed)
		}
	}
	if len(sentences) == 0 {
		return RegexSentenceSplitter{}.Split(text)
	}
	return sentences
}
