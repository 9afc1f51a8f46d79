package ingest

import (
	"strings"

	"rag-server/utils"

	"go.uber.org/zap"
)

const defaultSeparator = "\n\n"

// Chunk is one contiguous span of a document's text.
type Chunk struct {
	Index     int
	Content   string
	StartChar int
	EndChar   int
	Metadata  map[string]string
}

// Chunker splits text into overlap-preserving chunks. Paragraphs are the
// primary unit; a paragraph larger than the chunk size falls back to
// sentence packing.
type Chunker struct {
	separator string
	splitter  SentenceSplitter
	logger    *zap.Logger
}

func NewChunker(splitter SentenceSplitter, logger *zap.Logger) *Chunker {
	if splitter == nil {
		splitter = NewRegexSentenceSplitter()
	}
	return &Chunker{
		separator: defaultSeparator,
		splitter:  splitter,
		logger:    logger,
	}
}

// Split chunks text into pieces of at most size characters, carrying the
// last overlap characters of each chunk into the next. Indices are dense
// starting at 0.
func (c *Chunker) Split(text string, size, overlap int, metadata map[string]string) ([]Chunk, error) {
	if err := utils.ValidateChunkParams(size, overlap); err != nil {
		return nil, err
	}
	if err := utils.ValidateContentLength(text, utils.MaxContentLength); err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, nil
	}

	units := c.splitUnits(trimmed, size)

	var chunks []Chunk
	var buffer string
	start := 0

	emit := func() {
		chunks = append(chunks, Chunk{
			Index:     len(chunks),
			Content:   buffer,
			StartChar: start,
			EndChar:   start + len(buffer),
			Metadata:  cloneMetadata(metadata),
		})
	}

	for _, unit := range units {
		if unit == "" {
			continue
		}
		if buffer == "" {
			buffer = unit
			continue
		}
		if len(buffer)+len(c.separator)+len(unit) <= size {
			buffer += c.separator + unit
			continue
		}

		emit()
		end := start + len(buffer)

		carry := ""
		if overlap > 0 {
			carry = buffer
			if len(carry) > overlap {
				carry = carry[len(carry)-overlap:]
			}
		}
		if carry != "" && len(carry)+len(c.separator)+len(unit) <= size+overlap {
			start = end - len(carry)
			buffer = carry + c.separator + unit
		} else {
			start = end
			buffer = unit
		}
	}

	if strings.TrimSpace(buffer) != "" {
		emit()
	}
	return chunks, nil
}

// splitUnits breaks text into paragraph units, decomposing any paragraph
// larger than size into packed sentences.
func (c *Chunker) splitUnits(text string, size int) []string {
	parts := strings.Split(text, c.separator)

	var units []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if len(part) <= size {
			units = append(units, part)
			continue
		}

		for _, sentence := range c.splitter.Split(part) {
			for len(sentence) > size {
				// Pathological sentence with no boundary, hard cut.
				units = append(units, sentence[:size])
				sentence = sentence[size:]
			}
			if sentence != "" {
				units = append(units, sentence)
			}
		}
	}
	return units
}

func cloneMetadata(src map[string]string) map[string]string {
	if len(src) == 0 {
		return map[string]string{}
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
