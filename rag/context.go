package rag

import (
	"fmt"
	"sort"
	"strings"

	"rag-server/web/types"
)

// OptimizedContext is the serialized retrieval context handed to the
// prompt builder, plus the sources that made the cut.
type OptimizedContext struct {
	Text          string
	Sources       []types.SourceRef
	AvgSimilarity float64
}

// estimateTokens approximates token count as one token per four
// characters.
func estimateTokens(text string) int {
	return len(text) / 4
}

// BuildContext serializes search results into the prompt context, best
// scores first, dropping results once the token budget is spent.
func BuildContext(results []types.SearchResult, maxTokens int) OptimizedContext {
	if len(results) == 0 {
		return OptimizedContext{}
	}

	sorted := make([]types.SearchResult, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].SimilarityScore > sorted[j].SimilarityScore
	})

	var b strings.Builder
	var sources []types.SourceRef
	var scoreSum float64
	used := 0

	for _, r := range sorted {
		entry := fmt.Sprintf("[Source %d | Score: %.3f | Doc: %s]\n%s",
			len(sources)+1, r.SimilarityScore, r.DocumentID, r.Content)
		cost := estimateTokens(entry)
		if used+cost > maxTokens && len(sources) > 0 {
			break
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(entry)
		used += cost
		scoreSum += r.SimilarityScore
		sources = append(sources, types.SourceRef{
			ChunkID:        r.ChunkID,
			DocumentID:     r.DocumentID,
			RelevanceScore: r.SimilarityScore,
			Content:        r.Content,
		})
	}

	avg := 0.0
	if len(sources) > 0 {
		avg = scoreSum / float64(len(sources))
	}
	return OptimizedContext{Text: b.String(), Sources: sources, AvgSimilarity: avg}
}
